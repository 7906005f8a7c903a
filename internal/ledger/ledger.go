package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"orderbookSync/internal/model"
)

// Store persists ledger events. InsertEvents must be atomic and ignore events
// whose (tx hash, log index, batch index) is already present.
// DeleteEventsByBlock records the references it removes as pending for the
// block, in the same transaction, and returns everything pending until
// ClearPendingReorg is called.
type Store interface {
	InsertEvents(ctx context.Context, batch model.EventBatch) (int, error)
	DeleteEventsByBlock(ctx context.Context, blockHash string) (model.RemovedEvents, error)
	ClearPendingReorg(ctx context.Context, blockHash string) error
	OrderIDsByMaker(ctx context.Context, kind, maker string) ([]string, error)
}

// Ledger is the append-only record of cancel, fill and nonce events.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

// New builds a Ledger over store.
func New(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// Append stores the batch under kind and returns the number of new events.
func (l *Ledger) Append(ctx context.Context, kind string, batch model.EventBatch) (int, error) {
	if batch.Len() == 0 {
		return 0, nil
	}
	inserted, err := l.store.InsertEvents(ctx, batch.WithKind(kind))
	if err != nil {
		return 0, fmt.Errorf("append %s events: %w", kind, err)
	}
	l.logger.Debug("ledger append",
		zap.String("kind", kind),
		zap.Int("events", batch.Len()),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}

// RemoveForBlock deletes every event recorded for an orphaned block and returns
// the reconciliation items for each order those events could have affected.
// Nonce events affect every order of their maker. The items keep being
// returned for the block until CompleteRemoval confirms they were queued.
func (l *Ledger) RemoveForBlock(ctx context.Context, blockHash string) ([]model.OrderInfo, error) {
	blockHash = strings.ToLower(blockHash)
	if blockHash == "" {
		return nil, fmt.Errorf("block hash is required")
	}
	removed, err := l.store.DeleteEventsByBlock(ctx, blockHash)
	if err != nil {
		return nil, fmt.Errorf("remove block %s: %w", blockHash, err)
	}

	hashes := make(map[string]struct{}, len(removed.OrderHashes))
	for _, hash := range removed.OrderHashes {
		hashes[hash] = struct{}{}
	}
	for _, ref := range removed.Makers {
		ids, err := l.store.OrderIDsByMaker(ctx, ref.OrderKind, ref.Maker)
		if err != nil {
			return nil, fmt.Errorf("orders of maker %s: %w", ref.Maker, err)
		}
		for _, id := range ids {
			hashes[id] = struct{}{}
		}
	}

	reorgContext := ReorgContext(blockHash)
	infos := make([]model.OrderInfo, 0, len(hashes))
	for hash := range hashes {
		infos = append(infos, model.OrderInfo{Context: reorgContext, Hash: hash})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Hash < infos[j].Hash })

	l.logger.Info("ledger block removed",
		zap.String("block_hash", blockHash),
		zap.Int("events", removed.Count),
		zap.Int("orders", len(infos)),
	)
	return infos, nil
}

// CompleteRemoval marks the block's rollback as fully handed off.
func (l *Ledger) CompleteRemoval(ctx context.Context, blockHash string) error {
	blockHash = strings.ToLower(blockHash)
	if err := l.store.ClearPendingReorg(ctx, blockHash); err != nil {
		return fmt.Errorf("complete removal of %s: %w", blockHash, err)
	}
	return nil
}

// ReorgContext is the work-item context used for orders re-checked after a reorg.
func ReorgContext(blockHash string) string {
	return "reorg-" + blockHash
}
