package indexer

import (
	"context"
	"time"

	"orderbookSync/internal/queue"
)

const maxRetryDelay = 30 * time.Second

// withRetry retries fn on the same doubling curve the work queue uses.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > maxRetries {
			return err
		}

		timer := time.NewTimer(queue.Backoff(attempt, baseDelay, maxRetryDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
