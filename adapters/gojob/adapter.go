package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const JobIDWebhookDeliver = core.JobIDWebhookDeliver

// RetryPolicy bounds queue-level redelivery. Delivery state is owned by the
// delivery worker; the policy only stops a broken message from looping.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// RetryPolicyFromConfig allows one queue attempt beyond the delivery budget so
// the worker always gets to record exhaustion itself.
func RetryPolicyFromConfig(cfg core.DeliveryConfig) RetryPolicy {
	policy := RetryPolicy{MaxDelay: cfg.MaxBackoff, DeadLetterOnMax: true}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts + 1
	}
	return policy
}

func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	out := queue.NackOptions{Reason: opts.Reason}
	switch {
	case opts.DeadLetter:
		out.Disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		out.Disposition = queue.NackDispositionRetry
		out.Delay = opts.Delay
	default:
		out.Disposition = queue.NackDispositionFailed
	}
	return out
}

// EnqueuerAdapter lets the dispatch service publish delivery jobs to any
// go-job queue backend.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempts int
	done     func()
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

// Attempts is the number of times the backend has handed out this message,
// starting at 1. Backends that do not track it fall back to the count kept
// by the dequeuer adapter.
func (d *DeliveryAdapter) Attempts() int {
	if d == nil || d.delivery == nil {
		return 0
	}
	if reader, ok := d.delivery.(attemptsReader); ok {
		if attempts := reader.Attempts(); attempts > 0 {
			return attempts
		}
	}
	if d.attempts > 0 {
		return d.attempts
	}
	return 1
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	if err := d.delivery.Ack(ctx); err != nil {
		return err
	}
	d.release()
	return nil
}

// Nack applies the retry policy against the redelivery count of this message.
func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, d.Attempts())
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	if err := d.delivery.Nack(ctx, ToNackOptions(normalized)); err != nil {
		return err
	}
	if !normalized.Requeue {
		d.release()
	}
	return nil
}

func (d *DeliveryAdapter) release() {
	if d.done != nil {
		d.done()
		d.done = nil
	}
}

type attemptsReader interface {
	Attempts() int
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy, attempts: map[string]int{}}
}

// Dequeue returns (nil, nil) when the backend has nothing ready.
func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, nil
	}
	adapter := NewDeliveryAdapter(delivery, a.policy)
	if _, tracked := delivery.(attemptsReader); !tracked {
		a.track(adapter)
	}
	return adapter, nil
}

// track counts redeliveries per idempotency key for backends that do not
// report attempts. The count is dropped once the message leaves the queue.
func (a *DequeuerAdapter) track(delivery *DeliveryAdapter) {
	msg := delivery.delivery.Message()
	if msg == nil {
		return
	}
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key == "" {
		return
	}
	a.mu.Lock()
	if a.attempts == nil {
		a.attempts = map[string]int{}
	}
	a.attempts[key]++
	delivery.attempts = a.attempts[key]
	a.mu.Unlock()
	delivery.done = func() {
		a.mu.Lock()
		delete(a.attempts, key)
		a.mu.Unlock()
	}
}

type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
)
