package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stableMirror/internal/chain"
	"stableMirror/internal/config"
	"stableMirror/internal/indexer"
)

func runSyncRoutes(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSyncRoutes(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	syncer := indexer.NewRouteSyncer(indexer.RouteSyncConfig{
		PSM:          cfg.Contracts.PSM,
		MaxRetries:   cfg.Retry.MaxRetries,
		RetryBackoff: cfg.Retry.RetryBackoff,
	}, chainClient, store, logger)

	updated, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	logger.Info("routes synced", zap.Int("updated", updated))
	return nil
}
