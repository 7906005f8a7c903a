package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "syncer",
		Short:        "NFT marketplace order book sync engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume order book work queues",
		RunE:  runWorker,
	}
	addCommonFlags(workerCmd)
	addQueueFlags(workerCmd)
	workerCmd.Flags().Uint64("chain-id", 0, "chain id, 0 asks the RPC node")
	workerCmd.Flags().Int("sweep-page-size", 1, "orders per resync sweep page")
	workerCmd.Flags().Bool("bootstrap-sweep", true, "start the one-time order resync sweep")
	workerCmd.Flags().String("state-source", "db", "balance and approval source (db, rpc)")
	root.AddCommand(workerCmd)

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Pull exchange logs and feed them through the event ledger",
		RunE:  runIngest,
	}
	addCommonFlags(ingestCmd)
	addQueueFlags(ingestCmd)
	ingestCmd.Flags().StringSlice("contracts", nil, "exchange contracts as kind=address (comma-separated)")
	ingestCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	ingestCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means confirmed head")
	ingestCmd.Flags().Uint64("confirmations", 0, "blocks to stay behind the head")
	ingestCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	ingestCmd.Flags().Bool("backfill", false, "historical replay, record events without scheduling work")
	ingestCmd.Flags().String("checkpoint", "db", "checkpoint file path, or db for the sync_state table")
	ingestCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	ingestCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	ingestCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	ingestCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	root.AddCommand(ingestCmd)

	reorgCmd := &cobra.Command{
		Use:   "reorg",
		Short: "Roll back events from an orphaned block",
		RunE:  runReorg,
	}
	addCommonFlags(reorgCmd)
	addQueueFlags(reorgCmd)
	reorgCmd.Flags().String("block-hash", "", "orphaned block hash")
	root.AddCommand(reorgCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Enqueue a fresh resync sweep over all orders",
		RunE:  runSweep,
	}
	addCommonFlags(sweepCmd)
	addQueueFlags(sweepCmd)
	root.AddCommand(sweepCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "JSON-RPC URL")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addQueueFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("redis-addr", []string{"127.0.0.1:6379"}, "Redis addresses (comma-separated, several for cluster)")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("queue-prefix", "orderbook:", "Redis key prefix for queues and locks")
	cmd.Flags().Int("max-attempts", 10, "deliveries before a job is quarantined")
	cmd.Flags().Int64("dead-limit", 1000, "quarantined jobs kept per queue")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
