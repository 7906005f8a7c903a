package jobs

import (
	"context"
	"fmt"

	"orderbookSync/internal/model"
	"orderbookSync/internal/queue"
)

// EnqueueOrderInfos schedules reconciliation of each order.
func EnqueueOrderInfos(ctx context.Context, q queue.Enqueuer, infos []model.OrderInfo) error {
	for _, info := range infos {
		if _, err := q.Enqueue(ctx, QueueOrderUpdatesByHash, info, queue.Options{JobID: info.JobID()}); err != nil {
			return fmt.Errorf("enqueue order %s: %w", info.Hash, err)
		}
	}
	return nil
}

// EnqueueFillInfos schedules fill accounting.
func EnqueueFillInfos(ctx context.Context, q queue.Enqueuer, infos []model.FillInfo) error {
	for _, info := range infos {
		if _, err := q.Enqueue(ctx, QueueOrderFills, info, queue.Options{JobID: info.Context}); err != nil {
			return fmt.Errorf("enqueue fill %s: %w", info.Context, err)
		}
	}
	return nil
}

// EnqueueNonceInfos schedules maker-wide cancellations.
func EnqueueNonceInfos(ctx context.Context, q queue.Enqueuer, infos []model.NonceInfo) error {
	for _, info := range infos {
		if _, err := q.Enqueue(ctx, QueueNonceCancels, info, queue.Options{JobID: info.Context}); err != nil {
			return fmt.Errorf("enqueue nonce cancel %s: %w", info.Context, err)
		}
	}
	return nil
}

// EnqueueTokenRefs hands tokens to the attribute resync consumer, at most one
// pending item per token.
func EnqueueTokenRefs(ctx context.Context, q queue.Enqueuer, refs []model.TokenRef) error {
	for _, ref := range refs {
		opts := queue.Options{Delay: TokenResyncDelay, JobID: ref.JobID()}
		if _, err := q.Enqueue(ctx, QueueTokenAttributesResync, ref, opts); err != nil {
			return fmt.Errorf("enqueue token %s: %w", ref.JobID(), err)
		}
	}
	return nil
}

// EnqueueOrderUpdates notifies listeners of status transitions.
func EnqueueOrderUpdates(ctx context.Context, q queue.Enqueuer, updates []model.OrderUpdate) error {
	for _, update := range updates {
		if _, err := q.Enqueue(ctx, QueueOrderUpdatesByID, update, queue.Options{JobID: update.JobID()}); err != nil {
			return fmt.Errorf("enqueue order update %s: %w", update.ID, err)
		}
	}
	return nil
}
