package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultConsumerPollInterval    = time.Second
	defaultConsumerErrorDelay      = 5 * time.Second
	defaultConsumerMaxRedeliveries = 10
)

// DeliveryConsumer pulls delivery jobs from a JobDequeuer and runs them
// through a DeliveryAttempter. Retries are expressed as delayed nacks so the
// queue owns the schedule; the sweeper covers messages the queue lost.
type DeliveryConsumer struct {
	dequeuer     JobDequeuer
	attempter    DeliveryAttempter
	hook         JobWorkerHook
	pollInterval time.Duration
	errorDelay   time.Duration
	maxRedeliver int
	deps         componentDeps
}

// DeliveryConsumerConfig tunes the consumer. MaxRedeliveries bounds how many
// times a job that keeps erroring is handed out before it is dead-lettered;
// it only applies to queues whose deliveries report Attempts.
type DeliveryConsumerConfig struct {
	Hook            JobWorkerHook
	PollInterval    time.Duration
	ErrorDelay      time.Duration
	MaxRedeliveries int
}

// RedeliveryCounter is implemented by job deliveries that know how many
// times the queue has handed them out, starting at 1.
type RedeliveryCounter interface {
	Attempts() int
}

func NewDeliveryConsumer(
	dequeuer JobDequeuer,
	attempter DeliveryAttempter,
	config DeliveryConsumerConfig,
	opts ...ComponentOption,
) (*DeliveryConsumer, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("core: job dequeuer is required")
	}
	if attempter == nil {
		return nil, fmt.Errorf("core: delivery attempter is required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultConsumerPollInterval
	}
	if config.ErrorDelay <= 0 {
		config.ErrorDelay = defaultConsumerErrorDelay
	}
	if config.MaxRedeliveries <= 0 {
		config.MaxRedeliveries = defaultConsumerMaxRedeliveries
	}
	return &DeliveryConsumer{
		dequeuer:     dequeuer,
		attempter:    attempter,
		hook:         config.Hook,
		pollInterval: config.PollInterval,
		errorDelay:   config.ErrorDelay,
		maxRedeliver: config.MaxRedeliveries,
		deps:         newComponentDeps(opts),
	}, nil
}

// RunOnce processes at most one job and reports whether a job was consumed.
func (c *DeliveryConsumer) RunOnce(ctx context.Context) (bool, error) {
	if c == nil || c.dequeuer == nil || c.attempter == nil {
		return false, fmt.Errorf("core: delivery consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	event := JobWorkerEvent{
		Message:   msg,
		Attempt:   AttemptFromMessage(msg),
		StartedAt: c.deps.now(),
	}
	c.onStart(ctx, event)

	deliveryID, err := DeliveryIDFromMessage(msg)
	if err != nil {
		event.Err = err
		c.finish(ctx, &event)
		c.onFailure(ctx, event)
		return true, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}

	outcome, err := c.attempter.Attempt(ctx, deliveryID)
	if errors.Is(err, ErrDeliveryNotFound) {
		// Nothing left to deliver.
		event.Err = err
		c.finish(ctx, &event)
		c.onFailure(ctx, event)
		logWithLevel(ctx, c.deps.logger, "warn", "webhook delivery job dropped", map[string]any{
			"delivery_id": deliveryID,
			"error":       err.Error(),
		})
		return true, delivery.Ack(ctx)
	}
	if err != nil {
		event.Err = err
		c.finish(ctx, &event)
		fields := map[string]any{
			"delivery_id": deliveryID,
			"error":       err.Error(),
		}
		if redeliveries(delivery) >= c.maxRedeliver {
			c.onFailure(ctx, event)
			fields["redeliveries"] = redeliveries(delivery)
			logWithLevel(ctx, c.deps.logger, "error", "webhook delivery job dead-lettered", fields)
			return true, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()})
		}
		event.Delay = c.errorDelay
		c.onRetry(ctx, event)
		logWithLevel(ctx, c.deps.logger, "error", "webhook delivery job failed", fields)
		return true, delivery.Nack(ctx, JobNackOptions{Requeue: true, Delay: c.errorDelay, Reason: err.Error()})
	}

	c.finish(ctx, &event)
	if outcome.Status == DeliveryStatusPending && !outcome.Skipped {
		event.Delay = outcome.RetryAfter
		c.onRetry(ctx, event)
		return true, delivery.Nack(ctx, JobNackOptions{
			Requeue: true,
			Delay:   outcome.RetryAfter,
			Reason:  fmt.Sprintf("delivery attempt %d failed with status %d", outcome.Attempts, outcome.ResponseCode),
		})
	}
	c.onSuccess(ctx, event)
	return true, delivery.Ack(ctx)
}

// Run consumes until ctx is done, sleeping PollInterval when the queue is idle.
func (c *DeliveryConsumer) Run(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("core: delivery consumer is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		processed, err := c.RunOnce(ctx)
		if err != nil {
			logWithLevel(ctx, c.deps.logger, "error", "webhook delivery consumer error", map[string]any{
				"error": err.Error(),
			})
		}
		if processed && err == nil {
			continue
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// redeliveries returns 0 when the queue does not count hand-outs.
func redeliveries(delivery JobDelivery) int {
	if counter, ok := delivery.(RedeliveryCounter); ok {
		return counter.Attempts()
	}
	return 0
}

func (c *DeliveryConsumer) finish(_ context.Context, event *JobWorkerEvent) {
	event.Duration = c.deps.now().Sub(event.StartedAt)
}

func (c *DeliveryConsumer) onStart(ctx context.Context, event JobWorkerEvent) {
	if c.hook != nil {
		c.hook.OnStart(ctx, event)
	}
}

func (c *DeliveryConsumer) onSuccess(ctx context.Context, event JobWorkerEvent) {
	if c.hook != nil {
		c.hook.OnSuccess(ctx, event)
	}
}

func (c *DeliveryConsumer) onFailure(ctx context.Context, event JobWorkerEvent) {
	if c.hook != nil {
		c.hook.OnFailure(ctx, event)
	}
}

func (c *DeliveryConsumer) onRetry(ctx context.Context, event JobWorkerEvent) {
	if c.hook != nil {
		c.hook.OnRetry(ctx, event)
	}
}
