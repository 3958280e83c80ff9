package riverqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	KindWebhookDeliver = "hooks_webhook_deliver"
	QueueWebhooks      = "webhooks"
)

// DeliveryArgs is the river payload for one attempt of a delivery. The
// delivery row holds the body; the job only carries its id. DueAt is the
// scheduled time in unix milliseconds; a manual retry moves it, so the reset
// delivery is not matched against the completed job of its first run.
type DeliveryArgs struct {
	DeliveryID string `json:"delivery_id" river:"unique"`
	Attempt    int    `json:"attempt" river:"unique"`
	DueAt      int64  `json:"due_at,omitempty" river:"unique"`
}

func (DeliveryArgs) Kind() string { return KindWebhookDeliver }

func (DeliveryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:      QueueWebhooks,
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// Inserter is satisfied by *river.Client[pgx.Tx].
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer publishes delivery jobs to river.
type Enqueuer struct {
	inserter Inserter
	queue    string
}

func NewEnqueuer(inserter Inserter, queue string) *Enqueuer {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = QueueWebhooks
	}
	return &Enqueuer{inserter: inserter, queue: queue}
}

func (e *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil || e.inserter == nil {
		return fmt.Errorf("riverqueue: inserter is not configured")
	}
	deliveryID, err := core.DeliveryIDFromMessage(msg)
	if err != nil {
		return err
	}
	args := DeliveryArgs{
		DeliveryID: deliveryID,
		Attempt:    core.AttemptFromMessage(msg),
	}
	if dueAt := core.DueAtFromMessage(msg); !dueAt.IsZero() {
		args.DueAt = dueAt.UnixMilli()
	}
	opts := args.InsertOpts()
	opts.Queue = e.queue
	res, err := e.inserter.Insert(ctx, args, &opts)
	if err != nil {
		return fmt.Errorf("riverqueue: insert delivery job: %w", err)
	}
	if res != nil && res.UniqueSkippedAsDuplicate {
		return fmt.Errorf("riverqueue: delivery %q attempt %d: %w", deliveryID, args.Attempt, core.ErrJobAlreadyQueued)
	}
	return nil
}

// Worker runs delivery attempts from river. Failed attempts that are still
// pending are snoozed until the scheduled retry; attempt bookkeeping stays in
// the delivery store rather than river's own retry counter.
type Worker struct {
	river.WorkerDefaults[DeliveryArgs]
	attempter core.DeliveryAttempter
	timeout   time.Duration
}

func NewWorker(attempter core.DeliveryAttempter, timeout time.Duration) *Worker {
	return &Worker{attempter: attempter, timeout: timeout}
}

func (w *Worker) Timeout(*river.Job[DeliveryArgs]) time.Duration {
	if w == nil || w.timeout <= 0 {
		return 0
	}
	return w.timeout
}

func (w *Worker) Work(ctx context.Context, job *river.Job[DeliveryArgs]) error {
	if w == nil || w.attempter == nil {
		return fmt.Errorf("riverqueue: delivery attempter is not configured")
	}
	if job == nil || strings.TrimSpace(job.Args.DeliveryID) == "" {
		return river.JobCancel(fmt.Errorf("riverqueue: delivery id is required"))
	}
	outcome, err := w.attempter.Attempt(ctx, job.Args.DeliveryID)
	if errors.Is(err, core.ErrDeliveryNotFound) {
		return river.JobCancel(err)
	}
	if err != nil {
		return err
	}
	if outcome.Status == core.DeliveryStatusPending && !outcome.Skipped && outcome.RetryAfter > 0 {
		return river.JobSnooze(outcome.RetryAfter)
	}
	return nil
}

type ClientConfig struct {
	Queue      string
	MaxWorkers int
	// Timeout bounds one attempt; zero keeps river's default.
	Timeout time.Duration
}

// NewClient builds a river client with the delivery worker registered on
// the webhooks queue.
func NewClient(pool *pgxpool.Pool, attempter core.DeliveryAttempter, cfg ClientConfig) (*river.Client[pgx.Tx], error) {
	if pool == nil {
		return nil, fmt.Errorf("riverqueue: pgx pool is required")
	}
	if attempter == nil {
		return nil, fmt.Errorf("riverqueue: delivery attempter is required")
	}
	queue := strings.TrimSpace(cfg.Queue)
	if queue == "" {
		queue = QueueWebhooks
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely[DeliveryArgs](workers, NewWorker(attempter, cfg.Timeout)); err != nil {
		return nil, fmt.Errorf("riverqueue: register worker: %w", err)
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			queue: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("riverqueue: create client: %w", err)
	}
	return client, nil
}

var (
	_ core.JobEnqueuer            = (*Enqueuer)(nil)
	_ river.Worker[DeliveryArgs]  = (*Worker)(nil)
	_ river.JobArgsWithInsertOpts = DeliveryArgs{}
	_ Inserter                    = (*river.Client[pgx.Tx])(nil)
)
