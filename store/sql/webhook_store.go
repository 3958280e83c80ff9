package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type WebhookStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookRecord]
}

func NewWebhookStore(db *bun.DB) (*WebhookStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookRecord](db, webhookHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook repository wiring: %w", err)
		}
	}
	return &WebhookStore{db: db, repo: repo}, nil
}

func (s *WebhookStore) Create(ctx context.Context, in core.CreateWebhookInput) (core.Webhook, error) {
	if s == nil || s.repo == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	organizationID := strings.TrimSpace(in.OrganizationID)
	if organizationID == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: organization id is required")
	}
	if strings.TrimSpace(in.URL) == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook url is required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	} else if parseUUID(id) == uuid.Nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: invalid webhook id %q", id)
	}

	now := time.Now().UTC()
	record := &webhookRecord{
		ID:             id,
		OrganizationID: organizationID,
		Name:           strings.TrimSpace(in.Name),
		URL:            strings.TrimSpace(in.URL),
		Secret:         in.Secret,
		Events:         core.NormalizeEvents(in.Events),
		IsActive:       in.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if record.Events == nil {
		record.Events = []string{}
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Webhook{}, err
	}
	return created.toDomain(), nil
}

func (s *WebhookStore) Get(ctx context.Context, organizationID string, id string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	record, err := s.find(ctx, s.db, strings.TrimSpace(id))
	if err != nil {
		return core.Webhook{}, err
	}
	if record.OrganizationID != strings.TrimSpace(organizationID) {
		return core.Webhook{}, core.ErrWebhookNotFound
	}
	return record.toDomain(), nil
}

func (s *WebhookStore) GetByID(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	record, err := s.find(ctx, s.db, strings.TrimSpace(id))
	if err != nil {
		return core.Webhook{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookStore) List(ctx context.Context, organizationID string) ([]core.Webhook, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("organization_id", "=", strings.TrimSpace(organizationID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Webhook, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// ListActiveForEvent filters subscriptions in memory so the events column can
// stay a plain JSON list on every dialect.
func (s *WebhookStore) ListActiveForEvent(ctx context.Context, organizationID string, event string) ([]core.Webhook, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("organization_id", "=", strings.TrimSpace(organizationID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_active = ?", true)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Webhook, 0, len(records))
	for _, record := range records {
		webhook := record.toDomain()
		if webhook.Subscribes(event) {
			out = append(out, webhook)
		}
	}
	return out, nil
}

func (s *WebhookStore) Update(ctx context.Context, in core.UpdateWebhookInput) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	var out core.Webhook
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.find(ctx, tx, strings.TrimSpace(in.ID))
		if err != nil {
			return err
		}
		if record.OrganizationID != strings.TrimSpace(in.OrganizationID) {
			return core.ErrWebhookNotFound
		}
		if in.Name != nil {
			record.Name = strings.TrimSpace(*in.Name)
		}
		if in.URL != nil {
			record.URL = strings.TrimSpace(*in.URL)
		}
		if in.Events != nil {
			record.Events = core.NormalizeEvents(in.Events)
		}
		if in.IsActive != nil {
			record.IsActive = *in.IsActive
		}
		record.UpdatedAt = time.Now().UTC()

		if _, err := tx.NewUpdate().
			Model(record).
			Column("name", "url", "events", "is_active", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Webhook{}, err
	}
	return out, nil
}

func (s *WebhookStore) UpdateSecret(ctx context.Context, organizationID string, id string, secret string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*webhookRecord)(nil)).
		Set("secret = ?", secret).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("organization_id = ?", strings.TrimSpace(organizationID)).
		Exec(ctx)
	if err != nil {
		return core.Webhook{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return core.Webhook{}, core.ErrWebhookNotFound
	}
	return s.Get(ctx, organizationID, id)
}

// Delete removes the webhook. Its delivery history is kept; deliveries still
// pending are failed in the same transaction so no worker posts them.
func (s *WebhookStore) Delete(ctx context.Context, organizationID string, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook store is not configured")
	}
	id = strings.TrimSpace(id)
	organizationID = strings.TrimSpace(organizationID)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*webhookRecord)(nil)).
			Where("id = ?", id).
			Where("organization_id = ?", organizationID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return core.ErrWebhookNotFound
		}
		_, err = tx.NewUpdate().
			Model((*deliveryRecord)(nil)).
			Set("status = ?", string(core.DeliveryStatusFailed)).
			Set("last_error = ?", core.ReasonWebhookDeleted).
			Set("next_attempt_at = NULL").
			Set("updated_at = ?", time.Now().UTC()).
			Where("webhook_id = ?", id).
			Where("organization_id = ?", organizationID).
			Where("status = ?", string(core.DeliveryStatusPending)).
			Exec(ctx)
		return err
	})
}

func (s *WebhookStore) find(ctx context.Context, db bun.IDB, id string) (*webhookRecord, error) {
	if id == "" {
		return nil, core.ErrWebhookNotFound
	}
	record := &webhookRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrWebhookNotFound
		}
		return nil, err
	}
	return record, nil
}
