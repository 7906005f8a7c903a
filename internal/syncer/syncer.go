package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orderbookSync/internal/jobs"
	"orderbookSync/internal/ledger"
	"orderbookSync/internal/model"
	"orderbookSync/internal/protocol"
	"orderbookSync/internal/queue"
	"orderbookSync/internal/storage"
)


// Summary describes what one batch produced.
type Summary struct {
	Logs       int
	Unrouted   int
	Events     int
	Inserted   int
	Failures   int
	OrderItems int
	FillItems  int
	NonceItems int
	TokenItems int
}

// Syncer routes raw logs to protocol adapters, records the resulting events in
// the ledger and schedules the follow-up work.
type Syncer struct {
	protocols []protocol.Protocol
	ledger    *ledger.Ledger
	queue     queue.Enqueuer
	failures  storage.DecodeErrorSink
	logger    *zap.Logger
}

// New builds a Syncer routing logs to protocols in order.
func New(protocols []protocol.Protocol, l *ledger.Ledger, q queue.Enqueuer, failures storage.DecodeErrorSink, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		protocols: protocols,
		ledger:    l,
		queue:     q,
		failures:  failures,
		logger:    logger,
	}
}

// HandleBatch processes one ordered batch of logs. Events are always appended;
// work items are only scheduled when backfill is false. Events reach the
// ledger before any work item that reads them is enqueued.
func (s *Syncer) HandleBatch(ctx context.Context, logs []model.RawLog, backfill bool) (*Summary, error) {
	summary := &Summary{Logs: len(logs)}

	groups := make([][]model.RawLog, len(s.protocols))
	for _, log := range logs {
		routed := false
		for i, p := range s.protocols {
			if p.Handles(log) {
				groups[i] = append(groups[i], log)
				routed = true
				break
			}
		}
		if !routed {
			summary.Unrouted++
		}
	}

	for i, p := range s.protocols {
		if len(groups[i]) == 0 {
			continue
		}
		res := p.ParseBatch(groups[i], backfill)
		if err := s.apply(ctx, res, summary); err != nil {
			return summary, err
		}
	}

	s.logger.Debug("batch handled",
		zap.Int("logs", summary.Logs),
		zap.Int("events", summary.Events),
		zap.Int("inserted", summary.Inserted),
		zap.Int("failures", summary.Failures),
		zap.Bool("backfill", backfill),
	)
	return summary, nil
}

func (s *Syncer) apply(ctx context.Context, res *protocol.Result, summary *Summary) error {
	if len(res.Failures) > 0 {
		summary.Failures += len(res.Failures)
		for _, f := range res.Failures {
			s.logger.Warn("decode failed",
				zap.String("kind", f.OrderKind),
				zap.String("tx_hash", f.TxHash),
				zap.Uint64("log_index", f.LogIndex),
				zap.String("error", f.Error),
			)
		}
		if s.failures != nil {
			if err := s.failures.PutDecodeErrors(res.Failures); err != nil {
				s.logger.Warn("write decode errors failed", zap.Error(err))
			}
		}
	}

	inserted, err := s.ledger.Append(ctx, res.Kind, res.Events)
	if err != nil {
		return err
	}
	summary.Events += res.Events.Len()
	summary.Inserted += inserted

	if err := jobs.EnqueueOrderInfos(ctx, s.queue, res.OrderInfos); err != nil {
		return err
	}
	if err := jobs.EnqueueFillInfos(ctx, s.queue, res.FillInfos); err != nil {
		return err
	}
	if err := jobs.EnqueueNonceInfos(ctx, s.queue, res.NonceInfos); err != nil {
		return err
	}
	if err := jobs.EnqueueTokenRefs(ctx, s.queue, res.TokenRefs); err != nil {
		return err
	}
	summary.OrderItems += len(res.OrderInfos)
	summary.FillItems += len(res.FillInfos)
	summary.NonceItems += len(res.NonceInfos)
	summary.TokenItems += len(res.TokenRefs)
	return nil
}

// HandleReorg removes the orphaned block from the ledger and re-checks every
// order its events touched. On error it is safe to call again: the affected
// orders are returned until they have been queued.
func (s *Syncer) HandleReorg(ctx context.Context, blockHash string) (int, error) {
	infos, err := s.ledger.RemoveForBlock(ctx, blockHash)
	if err != nil {
		return 0, err
	}
	if err := jobs.EnqueueOrderInfos(ctx, s.queue, infos); err != nil {
		return 0, fmt.Errorf("requeue orders after reorg: %w", err)
	}
	if err := s.ledger.CompleteRemoval(ctx, blockHash); err != nil {
		return 0, err
	}
	return len(infos), nil
}
