package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stableMirror/internal/config"
	"stableMirror/internal/storage"
	"stableMirror/internal/storage/memory"
	"stableMirror/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "projector",
		Short:        "0xUSD protocol state projector",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch protocol logs into a JSONL file",
		RunE:  runFetch,
	}
	addFetchFlags(fetchCmd.Flags())
	fetchCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	root.AddCommand(fetchCmd)

	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Project a raw log JSONL file into entities",
		RunE:  runProject,
	}
	addContractFlags(projectCmd.Flags())
	addProjectFlags(projectCmd.Flags())
	projectCmd.Flags().String("in", "./data/logs.jsonl", "input raw logs JSONL")
	projectCmd.Flags().Int("apply-batch-size", 5000, "events per projection batch")
	projectCmd.Flags().String("export", "", "write every entity to this JSONL path when done")
	root.AddCommand(projectCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch and project in one process",
		RunE:  runPipeline,
	}
	addFetchFlags(runCmd.Flags())
	addProjectFlags(runCmd.Flags())
	root.AddCommand(runCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Reconcile projected aggregates against their histories",
		RunE:  runCheck,
	}
	addStoreFlags(checkCmd.Flags(), config.StorePostgres)
	checkCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(checkCmd)

	syncCmd := &cobra.Command{
		Use:   "sync-routes",
		Short: "Refresh PSM route buffers, decimals and halt flags from chain",
		RunE:  runSyncRoutes,
	}
	syncCmd.Flags().String("rpc", "", "RPC URL")
	syncCmd.Flags().String("psm", "", "PSM address")
	addStoreFlags(syncCmd.Flags(), config.StorePostgres)
	addRetryFlags(syncCmd.Flags())
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(syncCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addContractFlags(flags *pflag.FlagSet) {
	flags.String("token", "", "0xUSD token address")
	flags.String("psm", "", "PSM address")
	flags.String("allocator-vault", "", "allocator vault address")
	flags.String("savings-vault", "", "savings vault address")
	flags.String("param-registry", "", "parameter registry address")
}

func addStoreFlags(flags *pflag.FlagSet, defaultKind string) {
	flags.String("store", defaultKind, "entity store (memory, postgres)")
	flags.String("pg-dsn", "", "Postgres DSN")
}

func addRetryFlags(flags *pflag.FlagSet) {
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
}

func addFetchFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL")
	addContractFlags(flags)
	flags.Uint64("from", 0, "start block (inclusive)")
	flags.Uint64("to", 0, "end block (inclusive), 0 means safe head")
	flags.Uint64("confirmations", 12, "blocks behind head treated as final")
	flags.Uint64("batch-size", 2000, "blocks per batch")
	flags.String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	flags.Bool("checkpoint-enabled", true, "enable checkpointing")
	flags.Int("dedup-cache-size", 100_000, "recently seen logs kept for dedup")
	addRetryFlags(flags)
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// addProjectFlags registers flags shared by project and run. Contract flags
// are registered by the caller.
func addProjectFlags(flags *pflag.FlagSet) {
	addStoreFlags(flags, config.StoreMemory)
	flags.String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	flags.Int("workers", 4, "streams projected concurrently")
	flags.Bool("check", false, "reconcile aggregates after projecting")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	if flags.Lookup("log-level") == nil {
		flags.String("log-level", "info", "log level (debug, info, warn, error)")
	}
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

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (storage.EntityStore, error) {
	switch cfg.Kind {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("store ready", zap.String("kind", cfg.Kind))
		return store, nil
	default:
		logger.Info("store ready", zap.String("kind", config.StoreMemory))
		return memory.NewStore(), nil
	}
}
