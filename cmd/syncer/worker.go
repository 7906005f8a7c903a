package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderbookSync/internal/chain"
	"orderbookSync/internal/config"
	"orderbookSync/internal/jobs"
	"orderbookSync/internal/orderbook"
)

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, func(cfg config.Config) bool {
		return cfg.StateSource == config.StateSourceRPC || cfg.ChainID == 0
	})
	if err != nil {
		return err
	}
	defer e.close()

	chainID, err := e.chainID(ctx)
	if err != nil {
		return err
	}

	var state orderbook.StateReader = e.store
	if e.cfg.StateSource == config.StateSourceRPC {
		state = chain.NewStateReader(e.chain)
	}

	reconciler := orderbook.NewReconciler(orderbook.Config{ChainID: chainID}, e.store, state, e.logger)
	accountant := orderbook.NewAccountant(reconciler, e.logger)
	handlers := jobs.NewHandlers(
		jobs.Config{SweepPageSize: e.cfg.SweepPageSize},
		e.queue,
		reconciler,
		accountant,
		e.store,
		e.logger,
	)

	if e.cfg.Bootstrap {
		if _, err := jobs.BootstrapSweep(ctx, e.queue, e.queue, e.logger); err != nil {
			return fmt.Errorf("bootstrap sweep: %w", err)
		}
	}

	regs := handlers.Registrations()
	for _, reg := range regs {
		recovered, err := e.queue.RecoverStale(ctx, reg.Queue)
		if err != nil {
			return fmt.Errorf("recover %s: %w", reg.Queue, err)
		}
		if recovered > 0 {
			e.logger.Info("recovered stale jobs", zap.String("queue", reg.Queue), zap.Int("count", recovered))
		}
	}

	e.logger.Info("worker start",
		zap.Uint64("chain_id", chainID),
		zap.String("state_source", e.cfg.StateSource),
		zap.Int("queues", len(regs)),
		zap.Int("sweep_page_size", e.cfg.SweepPageSize),
	)

	if err := jobs.Run(ctx, e.queue, regs); err != nil && ctx.Err() == nil {
		return err
	}
	e.logger.Info("worker stopped")
	return nil
}
