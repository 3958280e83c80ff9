package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	maxRecordedErrorBytes = 1024
	// claimGrace is added to the request timeout when leasing a delivery, so
	// the lease outlives the POST and the store write that follows it.
	claimGrace = 30 * time.Second
)

// Reasons recorded on deliveries failed without an attempt.
const (
	ReasonWebhookDeleted  = "webhook deleted"
	ReasonWebhookInactive = "webhook inactive"
)

// DeliveryWorker performs one attempt of a delivery and records the outcome.
// Before posting it claims the delivery in the store, so duplicate jobs and
// other processes skip a delivery that is already in flight.
type DeliveryWorker struct {
	webhooks   WebhookStore
	deliveries DeliveryStore
	transport  DeliveryTransport
	config     DeliveryConfig
	deps       componentDeps
	inflight   sync.Map
}

func NewDeliveryWorker(
	webhooks WebhookStore,
	deliveries DeliveryStore,
	transport DeliveryTransport,
	config DeliveryConfig,
	opts ...ComponentOption,
) (*DeliveryWorker, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("core: webhook store is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("core: delivery store is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("core: delivery transport is required")
	}
	return &DeliveryWorker{
		webhooks:   webhooks,
		deliveries: deliveries,
		transport:  transport,
		config:     config.withDefaults(),
		deps:       newComponentDeps(opts),
	}, nil
}

func (w *DeliveryWorker) Config() DeliveryConfig {
	if w == nil {
		return DeliveryConfig{}
	}
	return w.config
}

// NextBackoff is the delay scheduled after the given number of failed attempts.
func (w *DeliveryWorker) NextBackoff(attempts int) time.Duration {
	if w == nil {
		return 0
	}
	return NextBackoff(w.config.InitialBackoff, w.config.MaxBackoff, attempts)
}

func (w *DeliveryWorker) Attempt(ctx context.Context, deliveryID string) (AttemptOutcome, error) {
	if w == nil || w.deliveries == nil || w.webhooks == nil || w.transport == nil {
		return AttemptOutcome{}, fmt.Errorf("core: delivery worker is not configured")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return AttemptOutcome{}, fmt.Errorf("core: delivery id is required")
	}
	outcome := AttemptOutcome{DeliveryID: deliveryID}
	if _, busy := w.inflight.LoadOrStore(deliveryID, struct{}{}); busy {
		outcome.Skipped = true
		return outcome, nil
	}
	defer w.inflight.Delete(deliveryID)

	delivery, err := w.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return outcome, err
	}
	outcome.Status = delivery.Status
	outcome.Attempts = delivery.Attempts
	if delivery.Status != DeliveryStatusPending {
		outcome.Skipped = true
		return outcome, nil
	}
	// A duplicate job for an attempt that is not due yet is dropped; the
	// scheduled job or the sweeper picks the delivery up on time.
	if delivery.NextAttemptAt != nil && delivery.NextAttemptAt.After(w.deps.now()) {
		outcome.Skipped = true
		return outcome, nil
	}

	webhook, err := w.webhooks.GetByID(ctx, delivery.WebhookID)
	switch {
	case errors.Is(err, ErrWebhookNotFound):
		return w.fail(ctx, delivery, outcome, ReasonWebhookDeleted)
	case err != nil:
		return outcome, err
	case !webhook.IsActive:
		return w.fail(ctx, delivery, outcome, ReasonWebhookInactive)
	}

	secret, err := openSecret(ctx, w.deps.secrets, webhook.Secret)
	if err != nil {
		return outcome, err
	}

	claimedAt := w.deps.now()
	if err := w.deliveries.Claim(ctx, delivery.ID, delivery.Attempts, claimedAt, claimedAt.Add(w.config.RequestTimeout+claimGrace)); err != nil {
		if errors.Is(err, ErrDeliveryConflict) {
			outcome.Skipped = true
			return outcome, nil
		}
		return outcome, err
	}

	attemptedAt := w.deps.now()
	headers := deliveryHeaders(secret, delivery.Payload, signatureHeaderOptions{
		Header:    w.config.SignatureHeader,
		UserAgent: w.config.UserAgent,
		Event:     delivery.Event,
		Delivery:  delivery.ID,
		Timestamp: attemptedAt,
	})
	response, postErr := w.transport.Post(ctx, DeliveryRequest{
		URL:     webhook.URL,
		Body:    delivery.Payload,
		Headers: headers,
		Timeout: w.config.RequestTimeout,
	})
	elapsed := w.deps.now().Sub(attemptedAt)

	result := DeliveryAttemptResult{
		Attempts:     delivery.Attempts + 1,
		ResponseCode: response.StatusCode,
		ResponseBody: truncateString(string(response.Body), w.config.ResponseBodyLimit),
		AttemptedAt:  attemptedAt,
	}
	succeeded := postErr == nil && response.StatusCode >= 200 && response.StatusCode < 300
	switch {
	case postErr != nil:
		result.Error = truncateString(postErr.Error(), maxRecordedErrorBytes)
	case !succeeded:
		result.Error = fmt.Sprintf("unexpected status %d", response.StatusCode)
	}

	outcome.Attempts = result.Attempts
	outcome.ResponseCode = response.StatusCode
	var markErr error
	switch {
	case succeeded:
		outcome.Status = DeliveryStatusSuccess
		markErr = w.deliveries.MarkSuccess(ctx, delivery.ID, result)
	case result.Attempts >= w.config.MaxAttempts:
		outcome.Status = DeliveryStatusExhausted
		markErr = w.deliveries.MarkExhausted(ctx, delivery.ID, result)
	default:
		delay := w.retryDelay(result.Attempts, response.Headers, attemptedAt)
		outcome.Status = DeliveryStatusPending
		outcome.RetryAfter = delay
		markErr = w.deliveries.MarkRetry(ctx, delivery.ID, result, attemptedAt.Add(delay))
	}
	if markErr != nil {
		if errors.Is(markErr, ErrDeliveryConflict) {
			outcome.Skipped = true
			logWithLevel(ctx, w.deps.logger, "warn", "webhook delivery changed during attempt", map[string]any{
				"delivery_id": delivery.ID,
				"webhook_id":  delivery.WebhookID,
			})
			return outcome, nil
		}
		return outcome, markErr
	}

	w.observeAttempt(ctx, delivery, outcome, result, elapsed)
	return outcome, nil
}

func (w *DeliveryWorker) fail(
	ctx context.Context,
	delivery WebhookDelivery,
	outcome AttemptOutcome,
	reason string,
) (AttemptOutcome, error) {
	if err := w.deliveries.MarkFailed(ctx, delivery.ID, reason, w.deps.now()); err != nil {
		if errors.Is(err, ErrDeliveryConflict) {
			outcome.Skipped = true
			return outcome, nil
		}
		return outcome, err
	}
	outcome.Status = DeliveryStatusFailed
	recordCounter(ctx, w.deps.metrics, "hooks.delivery.attempt.total", 1, map[string]string{
		"event":  delivery.Event,
		"status": string(DeliveryStatusFailed),
	})
	logWithLevel(ctx, w.deps.logger, "warn", "webhook delivery failed without attempt", map[string]any{
		"delivery_id":     delivery.ID,
		"webhook_id":      delivery.WebhookID,
		"organization_id": delivery.OrganizationID,
		"reason":          reason,
	})
	return outcome, nil
}

// retryDelay applies the exponential backoff and lets a Retry-After header
// extend it, never beyond MaxBackoff.
func (w *DeliveryWorker) retryDelay(attempts int, headers map[string]string, now time.Time) time.Duration {
	delay := w.NextBackoff(attempts)
	if requested, ok := parseRetryAfter(headerLookup(headers, "Retry-After"), now); ok {
		if requested > w.config.MaxBackoff {
			requested = w.config.MaxBackoff
		}
		if requested > delay {
			delay = requested
		}
	}
	return delay
}

func (w *DeliveryWorker) observeAttempt(
	ctx context.Context,
	delivery WebhookDelivery,
	outcome AttemptOutcome,
	result DeliveryAttemptResult,
	elapsed time.Duration,
) {
	tags := map[string]string{
		"event":  delivery.Event,
		"status": string(outcome.Status),
	}
	recordCounter(ctx, w.deps.metrics, "hooks.delivery.attempt.total", 1, tags)
	recordHistogram(ctx, w.deps.metrics, "hooks.delivery.duration_ms", float64(elapsed.Milliseconds()), tags)

	fields := map[string]any{
		"delivery_id":     delivery.ID,
		"webhook_id":      delivery.WebhookID,
		"organization_id": delivery.OrganizationID,
		"event":           delivery.Event,
		"status":          string(outcome.Status),
		"attempts":        outcome.Attempts,
		"response_code":   outcome.ResponseCode,
		"duration_ms":     elapsed.Milliseconds(),
	}
	switch outcome.Status {
	case DeliveryStatusSuccess:
		logWithLevel(ctx, w.deps.logger, "info", "webhook delivered", fields)
	case DeliveryStatusExhausted:
		fields["error"] = result.Error
		logWithLevel(ctx, w.deps.logger, "error", "webhook delivery exhausted", fields)
	default:
		fields["error"] = result.Error
		fields["retry_in_ms"] = outcome.RetryAfter.Milliseconds()
		logWithLevel(ctx, w.deps.logger, "warn", "webhook delivery attempt failed", fields)
	}
}
