package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CheckpointDB selects the Postgres sync_state table as ingest checkpoint.
const CheckpointDB = "db"

// State sources for balances and approvals.
const (
	StateSourceDB  = "db"
	StateSourceRPC = "rpc"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	ChainID  uint64
	LogLevel string

	PgDSN         string
	RedisAddrs    []string
	RedisPassword string
	RedisDB       int

	QueuePrefix   string
	MaxAttempts   int
	DeadLimit     int64
	SweepPageSize int
	Bootstrap     bool
	StateSource   string

	// Contracts maps an order kind to the exchange addresses it decodes.
	Contracts map[string][]string

	FromBlock         uint64
	ToBlock           uint64
	Confirmations     uint64
	BatchSize         uint64
	Backfill          bool
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	Errors            string

	BlockHash string
}

// Load merges config file, environment variables, and flags into Config.
// Flags only override keys the calling command registered.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYNCER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("redis-addr", "127.0.0.1:6379")
	v.SetDefault("redis-db", 0)
	v.SetDefault("queue-prefix", "orderbook:")
	v.SetDefault("max-attempts", 10)
	v.SetDefault("dead-limit", int64(1000))
	v.SetDefault("sweep-page-size", 1)
	v.SetDefault("bootstrap-sweep", true)
	v.SetDefault("state-source", StateSourceDB)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("confirmations", uint64(0))
	v.SetDefault("checkpoint", CheckpointDB)
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("errors", "./data/decode_errors.jsonl")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	contracts, err := getContracts(v, "contracts")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		ChainID:           v.GetUint64("chain-id"),
		LogLevel:          v.GetString("log-level"),
		PgDSN:             v.GetString("pg-dsn"),
		RedisAddrs:        getStringSlice(v, "redis-addr"),
		RedisPassword:     v.GetString("redis-password"),
		RedisDB:           v.GetInt("redis-db"),
		QueuePrefix:       v.GetString("queue-prefix"),
		MaxAttempts:       v.GetInt("max-attempts"),
		DeadLimit:         v.GetInt64("dead-limit"),
		SweepPageSize:     v.GetInt("sweep-page-size"),
		Bootstrap:         v.GetBool("bootstrap-sweep"),
		StateSource:       strings.ToLower(v.GetString("state-source")),
		Contracts:         contracts,
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Confirmations:     v.GetUint64("confirmations"),
		BatchSize:         v.GetUint64("batch-size"),
		Backfill:          v.GetBool("backfill"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Errors:            v.GetString("errors"),
		BlockHash:         v.GetString("block-hash"),
	}

	if cfg.StateSource != StateSourceDB && cfg.StateSource != StateSourceRPC {
		return Config{}, fmt.Errorf("invalid state-source %q (want %s or %s)", cfg.StateSource, StateSourceDB, StateSourceRPC)
	}
	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
