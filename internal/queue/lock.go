package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AcquireLock takes a cluster-wide lock that expires after ttl. It reports
// false, without error, when another holder already owns it. Locks are not
// released; they guard one-time work for the whole ttl.
func (q *Queue) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("lock name is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("lock ttl must be positive")
	}
	ok, err := q.client.SetNX(ctx, q.lockKey(name), uuid.NewString(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

func (q *Queue) lockKey(name string) string {
	return q.cfg.KeyPrefix + "lock:" + name
}
