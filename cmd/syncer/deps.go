package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderbookSync/internal/chain"
	"orderbookSync/internal/config"
	"orderbookSync/internal/queue"
	"orderbookSync/internal/storage/postgres"
)

// env holds the shared dependencies every subcommand opens.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	store  *postgres.Store
	redis  redis.UniversalClient
	queue  *queue.Queue
	chain  *chain.Client
}

// needRPC decides from the loaded config whether an RPC connection is opened.
func setup(ctx context.Context, cmd *cobra.Command, needRPC func(config.Config) bool) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	if needRPC(cfg) {
		if cfg.RPCURL == "" {
			e.close()
			return nil, fmt.Errorf("rpc url is required")
		}
		e.chain, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
	}

	e.store, err = postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		e.close()
		return nil, err
	}

	e.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.RedisAddrs,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := e.redis.Ping(ctx).Err(); err != nil {
		e.close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	e.queue = queue.New(e.redis, queue.Config{
		KeyPrefix:   cfg.QueuePrefix,
		MaxAttempts: cfg.MaxAttempts,
		DeadLimit:   cfg.DeadLimit,
	}, logger)
	return e, nil
}

// chainID prefers the configured id and falls back to the RPC node.
func (e *env) chainID(ctx context.Context) (uint64, error) {
	if e.cfg.ChainID != 0 {
		return e.cfg.ChainID, nil
	}
	if e.chain == nil {
		return 0, fmt.Errorf("chain-id is required without rpc")
	}
	id, err := e.chain.GetChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	return id.Uint64(), nil
}

func (e *env) close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
	if e.chain != nil {
		e.chain.Close()
	}
	_ = e.logger.Sync()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func always(config.Config) bool { return true }

func never(config.Config) bool { return false }
