package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderbookSync/internal/config"
	"orderbookSync/internal/indexer"
	"orderbookSync/internal/ledger"
	"orderbookSync/internal/protocol"
	"orderbookSync/internal/storage"
	"orderbookSync/internal/syncer"
)

const ingestCheckpointName = "ingest"

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, always)
	if err != nil {
		return err
	}
	defer e.close()

	if len(e.cfg.Contracts) == 0 {
		return fmt.Errorf("at least one contract (kind=address) is required")
	}
	protocols, err := buildProtocols(e.cfg.Contracts)
	if err != nil {
		return err
	}
	addresses, topics, err := indexer.LogFilter(e.cfg.Contracts)
	if err != nil {
		return err
	}

	var checkpoint indexer.CheckpointStore
	if e.cfg.CheckpointEnabled {
		if e.cfg.Checkpoint == config.CheckpointDB {
			checkpoint = indexer.NewStateCheckpoint(e.store, ingestCheckpointName)
		} else {
			checkpoint = indexer.NewFileCheckpoint(e.cfg.Checkpoint)
		}
	}

	var failures storage.DecodeErrorSink = storage.Discard{}
	if e.cfg.Errors != "" {
		failures = storage.NewJsonlStorage(e.cfg.Errors)
	}

	engine := syncer.New(protocols, ledger.New(e.store, e.logger), e.queue, failures, e.logger)
	runner := indexer.NewRunner(e.chain, engine, checkpoint, e.logger)

	e.logger.Info("ingest start",
		zap.String("rpc", e.cfg.RPCURL),
		zap.Uint64("from", e.cfg.FromBlock),
		zap.Uint64("to", e.cfg.ToBlock),
		zap.Int("protocols", len(protocols)),
		zap.Int("addresses", len(addresses)),
		zap.Bool("backfill", e.cfg.Backfill),
		zap.Bool("checkpoint_enabled", e.cfg.CheckpointEnabled),
		zap.String("checkpoint", e.cfg.Checkpoint),
	)

	return runner.Run(ctx, indexer.RunConfig{
		FromBlock:     e.cfg.FromBlock,
		ToBlock:       e.cfg.ToBlock,
		Confirmations: e.cfg.Confirmations,
		Addresses:     addresses,
		Topic0:        topics,
		BatchSize:     e.cfg.BatchSize,
		MaxRetries:    e.cfg.MaxRetries,
		RetryBackoff:  e.cfg.RetryBackoff,
		Backfill:      e.cfg.Backfill,
	})
}

func buildProtocols(contracts map[string][]string) ([]protocol.Protocol, error) {
	kinds := make([]string, 0, len(contracts))
	for kind := range contracts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	protocols := make([]protocol.Protocol, 0, len(kinds))
	for _, kind := range kinds {
		p, err := protocol.New(kind, contracts[kind])
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, p)
	}
	return protocols, nil
}
