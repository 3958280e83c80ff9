package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SecretProvider encrypts webhook signing secrets at rest. When no provider is
// configured secrets are stored as given.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type WebhookStore interface {
	Create(ctx context.Context, in CreateWebhookInput) (Webhook, error)
	Get(ctx context.Context, organizationID string, id string) (Webhook, error)
	GetByID(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context, organizationID string) ([]Webhook, error)
	ListActiveForEvent(ctx context.Context, organizationID string, event string) ([]Webhook, error)
	Update(ctx context.Context, in UpdateWebhookInput) (Webhook, error)
	UpdateSecret(ctx context.Context, organizationID string, id string, secret string) (Webhook, error)
	Delete(ctx context.Context, organizationID string, id string) error
}

type DeliveryStore interface {
	Create(ctx context.Context, in CreateDeliveryInput) (WebhookDelivery, error)
	Get(ctx context.Context, id string) (WebhookDelivery, error)
	GetForOrganization(ctx context.Context, organizationID string, id string) (WebhookDelivery, error)
	ListByWebhook(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error)
	// Claim leases a due pending delivery with the given attempt count by
	// pushing next_attempt_at to until. A lost race returns ErrDeliveryConflict.
	Claim(ctx context.Context, id string, attempts int, now time.Time, until time.Time) error
	MarkSuccess(ctx context.Context, id string, result DeliveryAttemptResult) error
	MarkRetry(ctx context.Context, id string, result DeliveryAttemptResult, nextAttemptAt time.Time) error
	MarkExhausted(ctx context.Context, id string, result DeliveryAttemptResult) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
	Reset(ctx context.Context, id string, at time.Time) error
	ListDue(ctx context.Context, before time.Time, limit int) ([]WebhookDelivery, error)
}

type StoreProvider interface {
	WebhookStore() WebhookStore
	DeliveryStore() DeliveryStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type DeliveryRequest struct {
	URL     string
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

type DeliveryResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// DeliveryTransport performs the outbound HTTP POST. Non-2xx responses are
// returned as responses, not errors; errors are reserved for network failures.
type DeliveryTransport interface {
	Post(ctx context.Context, req DeliveryRequest) (DeliveryResponse, error)
}

type WebhookDispatcher interface {
	Dispatch(ctx context.Context, event string, payload any, organizationID string) (DispatchResult, error)
}

type DeliveryAttempter interface {
	Attempt(ctx context.Context, deliveryID string) (AttemptOutcome, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

// JobDequeuer returns (nil, nil) when no message is ready.
type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
