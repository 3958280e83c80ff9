package core

import (
	"context"
	"errors"
	"fmt"
)

// DeliverySweeper re-enqueues pending deliveries whose next attempt is due.
// Delivery state lives in the store, so a lost or expired queue message never
// strands a delivery.
type DeliverySweeper struct {
	deliveries DeliveryStore
	enqueuer   JobEnqueuer
	batchSize  int
	deps       componentDeps
}

func NewDeliverySweeper(
	deliveries DeliveryStore,
	enqueuer JobEnqueuer,
	batchSize int,
	opts ...ComponentOption,
) (*DeliverySweeper, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("core: delivery store is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("core: job enqueuer is required")
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &DeliverySweeper{
		deliveries: deliveries,
		enqueuer:   enqueuer,
		batchSize:  batchSize,
		deps:       newComponentDeps(opts),
	}, nil
}

func (s *DeliverySweeper) Sweep(ctx context.Context) (SweepStats, error) {
	if s == nil || s.deliveries == nil || s.enqueuer == nil {
		return SweepStats{}, fmt.Errorf("core: delivery sweeper is not configured")
	}
	due, err := s.deliveries.ListDue(ctx, s.deps.now(), s.batchSize)
	if err != nil {
		return SweepStats{}, err
	}
	stats := SweepStats{Scanned: len(due)}
	var sweepErr error
	for _, delivery := range due {
		if delivery.Status != DeliveryStatusPending {
			continue
		}
		err := s.enqueuer.Enqueue(ctx, NewScheduledDeliveryJobMessage(delivery))
		if errors.Is(err, ErrJobAlreadyQueued) {
			stats.AlreadyQueued++
			continue
		}
		if err != nil {
			sweepErr = errors.Join(sweepErr, fmt.Errorf("core: sweep enqueue delivery %q: %w", delivery.ID, err))
			continue
		}
		stats.Enqueued++
	}
	if stats.Scanned > 0 {
		logWithLevel(ctx, s.deps.logger, "info", "webhook delivery sweep completed", map[string]any{
			"scanned":  stats.Scanned,
			"enqueued": stats.Enqueued,
		})
	}
	return stats, sweepErr
}
