package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryJobQueue is an in-process JobEnqueuer and JobDequeuer with delayed
// visibility. Messages sharing an idempotency key are enqueued once while
// queued; later copies return ErrJobAlreadyQueued. It keeps nothing across restarts; production deployments use the
// go-job or river adapters.
type MemoryJobQueue struct {
	mu    sync.Mutex
	seq   uint64
	items []*memoryJob
	keys  map[string]struct{}
	clock func() time.Time
}

type memoryJob struct {
	seq       uint64
	msg       *JobExecutionMessage
	visibleAt time.Time
	leased    bool
	handouts  int
}

func NewMemoryJobQueue() *MemoryJobQueue {
	return &MemoryJobQueue{
		keys: map[string]struct{}{},
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (q *MemoryJobQueue) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("core: memory job queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("core: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" {
		if _, exists := q.keys[key]; exists {
			return ErrJobAlreadyQueued
		}
		q.keys[key] = struct{}{}
	}
	q.seq++
	q.items = append(q.items, &memoryJob{
		seq:       q.seq,
		msg:       cloneJobMessage(msg),
		visibleAt: q.now(),
	})
	return nil
}

func (q *MemoryJobQueue) Dequeue(context.Context) (JobDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("core: memory job queue is not configured")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var next *memoryJob
	for _, item := range q.items {
		if item.leased || item.visibleAt.After(now) {
			continue
		}
		if next == nil || item.visibleAt.Before(next.visibleAt) ||
			(item.visibleAt.Equal(next.visibleAt) && item.seq < next.seq) {
			next = item
		}
	}
	if next == nil {
		return nil, nil
	}
	next.leased = true
	next.handouts++
	return &memoryDelivery{queue: q, job: next, attempts: next.handouts}, nil
}

// Len counts queued messages, including leased and delayed ones.
func (q *MemoryJobQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns queued messages ordered by visibility time.
func (q *MemoryJobQueue) Pending() []JobExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	items := append([]*memoryJob(nil), q.items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].visibleAt.Before(items[j].visibleAt)
	})
	out := make([]JobExecutionMessage, 0, len(items))
	for _, item := range items {
		out = append(out, *cloneJobMessage(item.msg))
	}
	return out
}

// SetClock replaces the clock used for delayed visibility.
func (q *MemoryJobQueue) SetClock(now func() time.Time) {
	if q == nil || now == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = now
}

func (q *MemoryJobQueue) now() time.Time {
	return q.clock()
}

func (q *MemoryJobQueue) remove(job *memoryJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item != job {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		break
	}
	if key := strings.TrimSpace(job.msg.IdempotencyKey); key != "" {
		delete(q.keys, key)
	}
}

func (q *MemoryJobQueue) release(job *memoryJob, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	job.leased = false
	job.visibleAt = q.now().Add(delay)
}

type memoryDelivery struct {
	queue    *MemoryJobQueue
	job      *memoryJob
	attempts int
	once     sync.Once
}

// Attempts counts how many times this message has been dequeued.
func (d *memoryDelivery) Attempts() int {
	if d == nil {
		return 0
	}
	return d.attempts
}

func (d *memoryDelivery) Message() *JobExecutionMessage {
	if d == nil || d.job == nil {
		return nil
	}
	return cloneJobMessage(d.job.msg)
}

func (d *memoryDelivery) Ack(context.Context) error {
	if d == nil || d.job == nil {
		return fmt.Errorf("core: delivery is not configured")
	}
	d.once.Do(func() { d.queue.remove(d.job) })
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	if d == nil || d.job == nil {
		return fmt.Errorf("core: delivery is not configured")
	}
	d.once.Do(func() {
		if opts.DeadLetter || !opts.Requeue {
			d.queue.remove(d.job)
			return
		}
		d.queue.release(d.job, opts.Delay)
	})
	return nil
}

func cloneJobMessage(msg *JobExecutionMessage) *JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := *msg
	out.Parameters = make(map[string]any, len(msg.Parameters))
	for key, value := range msg.Parameters {
		out.Parameters[key] = value
	}
	return &out
}
