package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DispatchService turns one event into one pending delivery per subscribed
// webhook and schedules each on the job queue. It never performs network I/O.
type DispatchService struct {
	webhooks   WebhookStore
	deliveries DeliveryStore
	enqueuer   JobEnqueuer
	deps       componentDeps
}

func NewDispatchService(
	webhooks WebhookStore,
	deliveries DeliveryStore,
	enqueuer JobEnqueuer,
	opts ...ComponentOption,
) (*DispatchService, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("core: webhook store is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("core: delivery store is required")
	}
	return &DispatchService{
		webhooks:   webhooks,
		deliveries: deliveries,
		enqueuer:   enqueuer,
		deps:       newComponentDeps(opts),
	}, nil
}

// Dispatch creates a pending delivery for every active webhook of the
// organization subscribed to event. A failure to persist one delivery does not
// stop the others; the failures are joined into the returned error. Enqueue
// failures are logged only, the sweeper reschedules those deliveries.
func (d *DispatchService) Dispatch(
	ctx context.Context,
	event string,
	payload any,
	organizationID string,
) (DispatchResult, error) {
	if d == nil || d.webhooks == nil || d.deliveries == nil {
		return DispatchResult{}, fmt.Errorf("core: dispatch service is not configured")
	}
	event = NormalizeEventName(event)
	organizationID = strings.TrimSpace(organizationID)
	if event == "" {
		return DispatchResult{}, fmt.Errorf("core: event name is required")
	}
	if organizationID == "" {
		return DispatchResult{}, fmt.Errorf("core: organization id is required")
	}

	webhooks, err := d.webhooks.ListActiveForEvent(ctx, organizationID, event)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("core: dispatch lookup webhooks: %w", err)
	}

	result := DispatchResult{DeliveryIDs: []string{}}
	var dispatchErr error
	for _, webhook := range webhooks {
		if !webhook.Subscribes(event) {
			continue
		}
		result.Matched++
		delivery, enqueued, createErr := d.createAndEnqueue(ctx, webhook, event, payload)
		if createErr != nil {
			dispatchErr = errors.Join(dispatchErr, createErr)
			continue
		}
		result.Created++
		result.DeliveryIDs = append(result.DeliveryIDs, delivery.ID)
		if enqueued {
			result.Enqueued++
		}
	}

	recordCounter(ctx, d.deps.metrics, "hooks.dispatch.total", 1, map[string]string{
		"event":  event,
		"status": statusTag(dispatchErr),
	})
	return result, dispatchErr
}

// DispatchTo creates and schedules a delivery for a single webhook regardless
// of its subscriptions. Used for synthetic test events.
func (d *DispatchService) DispatchTo(
	ctx context.Context,
	webhook Webhook,
	event string,
	payload any,
) (WebhookDelivery, error) {
	if d == nil || d.deliveries == nil {
		return WebhookDelivery{}, fmt.Errorf("core: dispatch service is not configured")
	}
	event = NormalizeEventName(event)
	if event == "" {
		return WebhookDelivery{}, fmt.Errorf("core: event name is required")
	}
	delivery, _, err := d.createAndEnqueue(ctx, webhook, event, payload)
	return delivery, err
}

// Enqueue schedules the next attempt of an existing delivery. A queue that
// already holds the job reports ErrJobAlreadyQueued.
func (d *DispatchService) Enqueue(ctx context.Context, delivery WebhookDelivery) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("core: job enqueuer is not configured")
	}
	return d.enqueuer.Enqueue(ctx, NewScheduledDeliveryJobMessage(delivery))
}

func (d *DispatchService) createAndEnqueue(
	ctx context.Context,
	webhook Webhook,
	event string,
	payload any,
) (WebhookDelivery, bool, error) {
	now := d.deps.now()
	deliveryID := d.deps.newID()
	body, err := json.Marshal(Envelope{
		ID:        deliveryID,
		Event:     event,
		Payload:   payload,
		Timestamp: now,
	})
	if err != nil {
		return WebhookDelivery{}, false, fmt.Errorf("core: dispatch encode envelope for webhook %q: %w", webhook.ID, err)
	}

	delivery, err := d.deliveries.Create(ctx, CreateDeliveryInput{
		ID:             deliveryID,
		OrganizationID: webhook.OrganizationID,
		WebhookID:      webhook.ID,
		Event:          event,
		Payload:        body,
		NextAttemptAt:  now,
	})
	if err != nil {
		logWithLevel(ctx, d.deps.logger, "error", "webhook delivery persist failed", map[string]any{
			"event":           event,
			"organization_id": webhook.OrganizationID,
			"webhook_id":      webhook.ID,
			"error":           err.Error(),
		})
		return WebhookDelivery{}, false, fmt.Errorf("core: dispatch persist delivery for webhook %q: %w", webhook.ID, err)
	}

	if err := d.Enqueue(ctx, delivery); err != nil && !errors.Is(err, ErrJobAlreadyQueued) {
		logWithLevel(ctx, d.deps.logger, "warn", "webhook delivery enqueue failed", map[string]any{
			"event":           event,
			"organization_id": webhook.OrganizationID,
			"webhook_id":      webhook.ID,
			"delivery_id":     delivery.ID,
			"error":           err.Error(),
		})
		return delivery, false, nil
	}
	return delivery, true, nil
}

func statusTag(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
