package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-hooks/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const activeWebhooksCacheKeyPrefix = "go-hooks::webhooks_active::v1"

// CachedWebhookStore serves ListActiveForEvent from a read-through cache and
// invalidates the affected event keys on every write.
type CachedWebhookStore struct {
	core.WebhookStore
	cache repositorycache.CacheService
}

func NewCachedWebhookStore(base core.WebhookStore, cacheService repositorycache.CacheService) (*CachedWebhookStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base webhook store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: webhook cache service is required")
	}
	return &CachedWebhookStore{WebhookStore: base, cache: cacheService}, nil
}

// ActiveWebhooksCacheKey returns
// go-hooks::webhooks_active::v1::<organization>::<event> with each segment
// URL-path escaped after normalization.
func ActiveWebhooksCacheKey(organizationID string, event string) (string, error) {
	organizationID = strings.TrimSpace(organizationID)
	event = core.NormalizeEventName(event)
	if organizationID == "" || event == "" {
		return "", fmt.Errorf("sqlstore: organization id and event are required for cache key")
	}
	return strings.Join([]string{
		activeWebhooksCacheKeyPrefix,
		url.PathEscape(organizationID),
		url.PathEscape(event),
	}, "::"), nil
}

func (s *CachedWebhookStore) ListActiveForEvent(ctx context.Context, organizationID string, event string) ([]core.Webhook, error) {
	if s == nil || s.WebhookStore == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	cacheKey, err := ActiveWebhooksCacheKey(organizationID, event)
	if err != nil {
		return nil, err
	}
	webhooks, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Webhook, error) {
		fetched, fetchErr := s.WebhookStore.ListActiveForEvent(ctx, organizationID, event)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneWebhooks(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneWebhooks(webhooks), nil
}

func (s *CachedWebhookStore) Create(ctx context.Context, in core.CreateWebhookInput) (core.Webhook, error) {
	if s == nil || s.WebhookStore == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	created, err := s.WebhookStore.Create(ctx, in)
	if err != nil {
		return core.Webhook{}, err
	}
	return created, s.invalidate(ctx, created.OrganizationID, created.Events)
}

func (s *CachedWebhookStore) Update(ctx context.Context, in core.UpdateWebhookInput) (core.Webhook, error) {
	if s == nil || s.WebhookStore == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	previous, err := s.WebhookStore.Get(ctx, in.OrganizationID, in.ID)
	if err != nil {
		return core.Webhook{}, err
	}
	updated, err := s.WebhookStore.Update(ctx, in)
	if err != nil {
		return core.Webhook{}, err
	}
	events := append(append([]string(nil), previous.Events...), updated.Events...)
	return updated, s.invalidate(ctx, updated.OrganizationID, events)
}

func (s *CachedWebhookStore) UpdateSecret(ctx context.Context, organizationID string, id string, secret string) (core.Webhook, error) {
	if s == nil || s.WebhookStore == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	updated, err := s.WebhookStore.UpdateSecret(ctx, organizationID, id, secret)
	if err != nil {
		return core.Webhook{}, err
	}
	return updated, s.invalidate(ctx, updated.OrganizationID, updated.Events)
}

func (s *CachedWebhookStore) Delete(ctx context.Context, organizationID string, id string) error {
	if s == nil || s.WebhookStore == nil {
		return fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	existing, err := s.WebhookStore.Get(ctx, organizationID, id)
	if err != nil {
		return err
	}
	if err := s.WebhookStore.Delete(ctx, organizationID, id); err != nil {
		return err
	}
	return s.invalidate(ctx, existing.OrganizationID, existing.Events)
}

func (s *CachedWebhookStore) invalidate(ctx context.Context, organizationID string, events []string) error {
	for _, event := range core.NormalizeEvents(events) {
		cacheKey, err := ActiveWebhooksCacheKey(organizationID, event)
		if err != nil {
			return err
		}
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return nil
}

func cloneWebhooks(input []core.Webhook) []core.Webhook {
	out := make([]core.Webhook, 0, len(input))
	for _, webhook := range input {
		cloned := webhook
		cloned.Events = append([]string(nil), webhook.Events...)
		out = append(out, cloned)
	}
	return out
}
