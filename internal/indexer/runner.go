package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"orderbookSync/internal/model"
	"orderbookSync/internal/syncer"
)

// LogSource is the slice of the chain client the runner reads from.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, blockHash common.Hash) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// LogHandler consumes decoded-ready log batches and reorg notifications.
type LogHandler interface {
	HandleBatch(ctx context.Context, logs []model.RawLog, backfill bool) (*syncer.Summary, error)
	HandleReorg(ctx context.Context, blockHash string) (int, error)
}

// RunConfig controls a single ingestion run.
type RunConfig struct {
	FromBlock     uint64
	ToBlock       uint64
	Confirmations uint64
	Addresses     []common.Address
	Topic0        []common.Hash
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	Backfill      bool
}

// Runner pulls exchange logs block range by block range and hands them to
// the sync engine.
type Runner struct {
	source     LogSource
	handler    LogHandler
	checkpoint CheckpointStore
	logger     *zap.Logger
}

func NewRunner(source LogSource, handler LogHandler, checkpoint CheckpointStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{source: source, handler: handler, checkpoint: checkpoint, logger: logger}
}

// Run ingests [FromBlock, ToBlock], resuming after the checkpoint when one
// exists. A zero ToBlock means the confirmed chain head.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) error {
	if cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	var chainID *big.Int
	if err := withRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		chainID, err = r.source.GetChainID(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	toBlock := cfg.ToBlock
	if toBlock == 0 {
		var latest uint64
		if err := withRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			latest, err = r.source.LatestBlockNumber(ctx)
			return err
		}); err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		toBlock = SafeHead(latest, cfg.Confirmations)
	}

	fromBlock := cfg.FromBlock
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedBlock+1 > fromBlock {
			fromBlock = cp.LastProcessedBlock + 1
		}
	}
	if fromBlock > toBlock {
		r.logger.Info("nothing to ingest", zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		return nil
	}

	ranges, err := SplitRange(fromBlock, toBlock, cfg.BatchSize)
	if err != nil {
		return err
	}

	r.logger.Info("starting ingestion",
		zap.String("chain_id", chainID.String()),
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
		zap.Int("batches", len(ranges)),
		zap.Bool("backfill", cfg.Backfill),
	)

	for _, br := range ranges {
		if err := r.processRange(ctx, chainID.Uint64(), br, cfg); err != nil {
			return err
		}
		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, br.To); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) processRange(ctx context.Context, chainID uint64, br BlockRange, cfg RunConfig) error {
	var logs []types.Log
	if err := withRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, br.From, br.To, cfg.Addresses, cfg.Topic0)
		return err
	}); err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", br.From, br.To, err)
	}

	var (
		rawLogs    = make([]model.RawLog, 0, len(logs))
		orphaned   []string
		seen       = make(map[string]struct{}, len(logs))
		seenOrphan = make(map[common.Hash]struct{})
		timestamps = make(map[common.Hash]uint64)
	)
	for _, log := range logs {
		if log.Removed {
			if _, ok := seenOrphan[log.BlockHash]; !ok {
				seenOrphan[log.BlockHash] = struct{}{}
				orphaned = append(orphaned, log.BlockHash.Hex())
			}
			continue
		}

		key := fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		ts, ok := timestamps[log.BlockHash]
		if !ok {
			if err := withRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
				var err error
				ts, err = r.source.BlockTimestamp(ctx, log.BlockHash)
				return err
			}); err != nil {
				return fmt.Errorf("get block timestamp %s: %w", log.BlockHash.Hex(), err)
			}
			timestamps[log.BlockHash] = ts
		}
		rawLogs = append(rawLogs, buildRawLog(chainID, log, ts))
	}

	for _, blockHash := range orphaned {
		requeued, err := r.handler.HandleReorg(ctx, blockHash)
		if err != nil {
			return fmt.Errorf("handle reorg %s: %w", blockHash, err)
		}
		r.logger.Warn("orphaned block rolled back", zap.String("block_hash", blockHash), zap.Int("requeued", requeued))
	}

	summary, err := r.handler.HandleBatch(ctx, rawLogs, cfg.Backfill)
	if err != nil {
		return fmt.Errorf("handle batch %d-%d: %w", br.From, br.To, err)
	}

	r.logger.Info("batch processed",
		zap.Uint64("from", br.From),
		zap.Uint64("to", br.To),
		zap.Int("logs", summary.Logs),
		zap.Int("events", summary.Events),
		zap.Int("inserted", summary.Inserted),
		zap.Int("failures", summary.Failures),
	)
	return nil
}
