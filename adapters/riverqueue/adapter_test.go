package riverqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

type insertCall struct {
	args river.JobArgs
	opts *river.InsertOpts
}

// stubInserter mimics river's unique insert: a second insert with the same
// args reports UniqueSkippedAsDuplicate, as a completed job would.
type stubInserter struct {
	calls []insertCall
	seen  map[DeliveryArgs]bool
	err   error
}

func (s *stubInserter) Insert(_ context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	s.calls = append(s.calls, insertCall{args: args, opts: opts})
	if s.err != nil {
		return nil, s.err
	}
	if delivery, ok := args.(DeliveryArgs); ok && opts != nil && opts.UniqueOpts.ByArgs {
		if s.seen == nil {
			s.seen = map[DeliveryArgs]bool{}
		}
		if s.seen[delivery] {
			return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: 1}, UniqueSkippedAsDuplicate: true}, nil
		}
		s.seen[delivery] = true
	}
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: int64(len(s.calls))}}, nil
}

type stubAttempter struct {
	outcome core.AttemptOutcome
	err     error
	ids     []string
}

func (s *stubAttempter) Attempt(_ context.Context, id string) (core.AttemptOutcome, error) {
	s.ids = append(s.ids, id)
	return s.outcome, s.err
}

func job(args DeliveryArgs) *river.Job[DeliveryArgs] {
	return &river.Job[DeliveryArgs]{JobRow: &rivertype.JobRow{ID: 1, Attempt: 1, Kind: KindWebhookDeliver}, Args: args}
}

func TestEnqueuer_InsertsDeliveryArgs(t *testing.T) {
	inserter := &stubInserter{}
	enqueuer := NewEnqueuer(inserter, "")

	if err := enqueuer.Enqueue(context.Background(), core.NewDeliveryJobMessage("dlv_1", 2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(inserter.calls) != 1 {
		t.Fatalf("expected one insert, got %d", len(inserter.calls))
	}
	args, ok := inserter.calls[0].args.(DeliveryArgs)
	if !ok {
		t.Fatalf("expected DeliveryArgs, got %T", inserter.calls[0].args)
	}
	if args.DeliveryID != "dlv_1" || args.Attempt != 2 {
		t.Fatalf("unexpected args %#v", args)
	}
	opts := inserter.calls[0].opts
	if opts == nil || opts.Queue != QueueWebhooks || !opts.UniqueOpts.ByArgs {
		t.Fatalf("unexpected insert opts %#v", opts)
	}
	if args.Kind() != KindWebhookDeliver {
		t.Fatalf("unexpected kind %q", args.Kind())
	}
}

func TestEnqueuer_CustomQueueAndErrors(t *testing.T) {
	inserter := &stubInserter{}
	enqueuer := NewEnqueuer(inserter, "priority")
	if err := enqueuer.Enqueue(context.Background(), core.NewDeliveryJobMessage("dlv_1", 0)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if inserter.calls[0].opts.Queue != "priority" {
		t.Fatalf("expected custom queue, got %q", inserter.calls[0].opts.Queue)
	}

	if err := enqueuer.Enqueue(context.Background(), &core.JobExecutionMessage{JobID: core.JobIDWebhookDeliver}); err == nil {
		t.Fatalf("expected missing delivery id error")
	}

	inserter.err = errors.New("pool closed")
	if err := enqueuer.Enqueue(context.Background(), core.NewDeliveryJobMessage("dlv_2", 0)); !errors.Is(err, inserter.err) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}

	if err := NewEnqueuer(nil, "").Enqueue(context.Background(), core.NewDeliveryJobMessage("dlv_3", 0)); err == nil {
		t.Fatalf("expected unconfigured inserter error")
	}
}

func TestEnqueuer_ResetDeliveryIsNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	inserter := &stubInserter{}
	enqueuer := NewEnqueuer(inserter, "")
	dispatchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delivery := core.WebhookDelivery{ID: "dlv_1", NextAttemptAt: &dispatchedAt}

	if err := enqueuer.Enqueue(ctx, core.NewScheduledDeliveryJobMessage(delivery)); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	args := inserter.calls[0].args.(DeliveryArgs)
	if args.DueAt != dispatchedAt.UnixMilli() {
		t.Fatalf("expected due at to be carried, got %#v", args)
	}

	// The first job is still known to river, so a repeat is skipped.
	err := enqueuer.Enqueue(ctx, core.NewScheduledDeliveryJobMessage(delivery))
	if !errors.Is(err, core.ErrJobAlreadyQueued) {
		t.Fatalf("expected duplicate to be reported, got %v", err)
	}

	// Manual retry: attempts back to 0 and a new schedule.
	resetAt := dispatchedAt.Add(3 * time.Hour)
	delivery.NextAttemptAt = &resetAt
	if err := enqueuer.Enqueue(ctx, core.NewScheduledDeliveryJobMessage(delivery)); err != nil {
		t.Fatalf("expected reset delivery to be inserted, got %v", err)
	}
	if len(inserter.seen) != 2 {
		t.Fatalf("expected two distinct jobs, got %d", len(inserter.seen))
	}
}

func TestWorker_SuccessAndSkipComplete(t *testing.T) {
	attempter := &stubAttempter{outcome: core.AttemptOutcome{DeliveryID: "dlv_1", Status: core.DeliveryStatusSuccess, Attempts: 1}}
	worker := NewWorker(attempter, 0)

	if err := worker.Work(context.Background(), job(DeliveryArgs{DeliveryID: "dlv_1"})); err != nil {
		t.Fatalf("expected success to complete, got %v", err)
	}
	if len(attempter.ids) != 1 || attempter.ids[0] != "dlv_1" {
		t.Fatalf("unexpected attempts %v", attempter.ids)
	}

	attempter.outcome = core.AttemptOutcome{DeliveryID: "dlv_1", Status: core.DeliveryStatusPending, Skipped: true, RetryAfter: time.Minute}
	if err := worker.Work(context.Background(), job(DeliveryArgs{DeliveryID: "dlv_1"})); err != nil {
		t.Fatalf("expected skipped attempt to complete, got %v", err)
	}

	attempter.outcome = core.AttemptOutcome{DeliveryID: "dlv_1", Status: core.DeliveryStatusExhausted, Attempts: 5}
	if err := worker.Work(context.Background(), job(DeliveryArgs{DeliveryID: "dlv_1"})); err != nil {
		t.Fatalf("expected exhausted delivery to complete, got %v", err)
	}
}

func TestWorker_PendingOutcomeSnoozes(t *testing.T) {
	attempter := &stubAttempter{outcome: core.AttemptOutcome{DeliveryID: "dlv_1", Status: core.DeliveryStatusPending, Attempts: 1, RetryAfter: 30 * time.Second}}
	worker := NewWorker(attempter, 0)

	err := worker.Work(context.Background(), job(DeliveryArgs{DeliveryID: "dlv_1"}))
	if err == nil {
		t.Fatalf("expected snooze for pending retry")
	}
	if len(attempter.ids) != 1 {
		t.Fatalf("expected a single attempt, got %v", attempter.ids)
	}
}

func TestWorker_AttemptErrorIsReturned(t *testing.T) {
	attempter := &stubAttempter{err: errors.New("database down")}
	worker := NewWorker(attempter, 0)

	if err := worker.Work(context.Background(), job(DeliveryArgs{DeliveryID: "dlv_1"})); !errors.Is(err, attempter.err) {
		t.Fatalf("expected attempt error to reach river, got %v", err)
	}
	if err := worker.Work(context.Background(), job(DeliveryArgs{})); err == nil {
		t.Fatalf("expected cancel for missing delivery id")
	}
	if len(attempter.ids) != 1 {
		t.Fatalf("expected malformed job not to be attempted")
	}
	attempter.err = core.ErrDeliveryNotFound
	var cancel *river.JobCancelError
	if err := worker.Work(context.Background(), job(DeliveryArgs{DeliveryID: "dlv_gone"})); !errors.As(err, &cancel) {
		t.Fatalf("expected cancel for a missing delivery, got %v", err)
	}
	if err := NewWorker(nil, 0).Work(context.Background(), job(DeliveryArgs{DeliveryID: "dlv_1"})); err == nil {
		t.Fatalf("expected unconfigured attempter error")
	}
}

func TestWorker_Timeout(t *testing.T) {
	if got := NewWorker(nil, 0).Timeout(nil); got != 0 {
		t.Fatalf("expected default timeout, got %s", got)
	}
	if got := NewWorker(nil, 15*time.Second).Timeout(nil); got != 15*time.Second {
		t.Fatalf("expected configured timeout, got %s", got)
	}
}

func TestNewClient_RequiresDependencies(t *testing.T) {
	if _, err := NewClient(nil, &stubAttempter{}, ClientConfig{}); err == nil {
		t.Fatalf("expected missing pool error")
	}
}
