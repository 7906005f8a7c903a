package jobs

import "time"

// Queue names shared by producers and consumers.
const (
	QueueOrderUpdatesByHash    = "order-updates-by-hash"
	QueueOrderUpdatesByID      = "order-updates-by-id"
	QueueOrderFills            = "order-fills"
	QueueNonceCancels          = "nonce-cancels"
	QueueOrdersResyncSweep     = "orders-resync-sweep"
	QueueTokenAttributesResync = "token-attributes-resync"
)

const (
	// TokenResyncDelay batches attribute refreshes for busy tokens.
	TokenResyncDelay = 60 * time.Minute
	// SweepLockTTL outlasts a full sweep of the orders table.
	SweepLockTTL = 30 * 24 * time.Hour

	sweepContext = "resync-sweep"
)

// LockName is the cluster lock guarding one-time work on queue.
func LockName(queue string) string {
	return queue + "-lock"
}
