package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) (page DeliveryPage, err error) {
	startedAt := time.Now().UTC()
	filter = filter.Normalize()
	fields := map[string]any{
		"organization_id": filter.OrganizationID,
		"webhook_id":      filter.WebhookID,
		"page":            filter.Page,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_deliveries", err, fields)
	}()
	if err = requireScope(filter.OrganizationID, filter.WebhookID, "webhook"); err != nil {
		err = s.mapError(err)
		return DeliveryPage{}, err
	}
	if filter.Status != "" {
		if _, err = ParseDeliveryStatus(string(filter.Status)); err != nil {
			err = s.mapError(err)
			return DeliveryPage{}, err
		}
	}
	if _, err = s.webhookStore.Get(ctx, filter.OrganizationID, filter.WebhookID); err != nil {
		err = s.mapError(err)
		return DeliveryPage{}, err
	}
	page, err = s.deliveryStore.ListByWebhook(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return DeliveryPage{}, err
	}
	return page, nil
}

func (s *Service) GetDelivery(ctx context.Context, organizationID string, id string) (delivery WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID, "delivery_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_delivery", err, fields)
	}()
	if err = requireScope(organizationID, id, "delivery"); err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	delivery, err = s.deliveryStore.GetForOrganization(ctx, strings.TrimSpace(organizationID), strings.TrimSpace(id))
	if err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	return delivery, nil
}

// RetryDelivery resets a failed or exhausted delivery to pending with zero
// attempts and schedules it immediately.
func (s *Service) RetryDelivery(ctx context.Context, organizationID string, id string) (delivery WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID, "delivery_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "retry_delivery", err, fields)
	}()
	if err = requireScope(organizationID, id, "delivery"); err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	organizationID = strings.TrimSpace(organizationID)
	id = strings.TrimSpace(id)

	current, err := s.deliveryStore.GetForOrganization(ctx, organizationID, id)
	if err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	if !current.Status.Retryable() {
		err = s.mapError(fmt.Errorf("%w: status %s", ErrDeliveryNotRetryable, current.Status))
		return WebhookDelivery{}, err
	}
	if err = s.deliveryStore.Reset(ctx, id, time.Now().UTC()); err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	delivery, err = s.deliveryStore.GetForOrganization(ctx, organizationID, id)
	if err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	// The reset moved next_attempt_at, so this job is distinct from any the
	// queue kept from earlier attempts. The sweeper covers a failed enqueue.
	if enqueueErr := s.dispatcher.Enqueue(ctx, delivery); enqueueErr != nil {
		fields["enqueue_error"] = enqueueErr.Error()
	}
	return delivery, nil
}

// AttemptDelivery runs one delivery attempt inline. Queue consumers call the
// worker directly; this is for operators and tests.
func (s *Service) AttemptDelivery(ctx context.Context, id string) (outcome AttemptOutcome, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"delivery_id": id}
	defer func() {
		fields["status"] = string(outcome.Status)
		s.observeOperation(ctx, startedAt, "attempt_delivery", err, fields)
	}()
	if s == nil || s.worker == nil {
		err = s.mapError(fmt.Errorf("core: delivery transport is not configured"))
		return AttemptOutcome{}, err
	}
	outcome, err = s.worker.Attempt(ctx, id)
	if err != nil {
		err = s.mapError(err)
		return outcome, err
	}
	return outcome, nil
}

func (s *Service) SweepDueDeliveries(ctx context.Context) (stats SweepStats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["scanned"] = stats.Scanned
		fields["enqueued"] = stats.Enqueued
		s.observeOperation(ctx, startedAt, "sweep_deliveries", err, fields)
	}()
	stats, err = s.sweeper.Sweep(ctx)
	if err != nil {
		err = s.mapError(err)
		return stats, err
	}
	return stats, nil
}
