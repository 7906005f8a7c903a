package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderbookSync/internal/jobs"
	"orderbookSync/internal/ledger"
	"orderbookSync/internal/storage"
	"orderbookSync/internal/syncer"
)

func runReorg(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, never)
	if err != nil {
		return err
	}
	defer e.close()

	if e.cfg.BlockHash == "" {
		return fmt.Errorf("block-hash is required")
	}

	engine := syncer.New(nil, ledger.New(e.store, e.logger), e.queue, storage.Discard{}, e.logger)
	requeued, err := engine.HandleReorg(ctx, e.cfg.BlockHash)
	if err != nil {
		return err
	}
	e.logger.Info("reorg applied", zap.String("block_hash", e.cfg.BlockHash), zap.Int("requeued", requeued))
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, never)
	if err != nil {
		return err
	}
	defer e.close()

	if err := jobs.StartSweep(ctx, e.queue); err != nil {
		return err
	}
	counts, err := e.queue.Counts(ctx, jobs.QueueOrdersResyncSweep)
	if err != nil {
		return err
	}
	e.logger.Info("sweep enqueued", zap.Int64("waiting", counts.Waiting))
	return nil
}
