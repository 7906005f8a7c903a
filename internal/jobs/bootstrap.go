package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderbookSync/internal/model"
	"orderbookSync/internal/queue"
)

// Locker takes cluster-wide locks.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// Consumer drives a handler from a named queue.
type Consumer interface {
	Consume(ctx context.Context, name string, concurrency int, handler queue.Handler) error
}

// BootstrapSweep starts the one-time orders resync sweep unless another
// instance already holds its lock. It reports whether the sweep was started.
func BootstrapSweep(ctx context.Context, locker Locker, q queue.Enqueuer, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ok, err := locker.AcquireLock(ctx, LockName(QueueOrdersResyncSweep), SweepLockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		logger.Debug("orders sweep already started elsewhere")
		return false, nil
	}
	if err := StartSweep(ctx, q); err != nil {
		return false, err
	}
	logger.Info("orders sweep started")
	return true, nil
}

// StartSweep enqueues the first page of a cursor sweep over all orders.
func StartSweep(ctx context.Context, q queue.Enqueuer) error {
	if _, err := q.Enqueue(ctx, QueueOrdersResyncSweep, model.SweepInfo{}, queue.Options{}); err != nil {
		return fmt.Errorf("enqueue sweep: %w", err)
	}
	return nil
}

// Run consumes every registered queue until ctx is cancelled.
func Run(ctx context.Context, consumer Consumer, regs []Registration) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, reg := range regs {
		reg := reg
		g.Go(func() error {
			return consumer.Consume(gctx, reg.Queue, reg.Concurrency, reg.Handler)
		})
	}
	return g.Wait()
}
