package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stableMirror/internal/config"
	"stableMirror/internal/metrics"
	"stableMirror/internal/model"
	"stableMirror/internal/projector"
	"stableMirror/internal/protocol"
	"stableMirror/internal/reconcile"
	"stableMirror/internal/storage"
)

func runProject(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProject(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("project start",
		zap.String("in", cfg.In),
		zap.String("errors", cfg.Errors),
		zap.String("store", cfg.Store.Kind),
		zap.Int("workers", cfg.Workers),
	)

	if err := projectFile(ctx, cfg.In, cfg.ApplyBatchSize, p.sink); err != nil {
		return err
	}
	return p.finish(ctx)
}

// pipeline is the projecting half shared by project and run.
type pipeline struct {
	cfg     config.ProjectConfig
	logger  *zap.Logger
	store   storage.EntityStore
	metrics *metrics.Projector
	server  *metrics.Server
	errors  *storage.JSONLWriter
	sink    *projector.Sink
}

func newPipeline(ctx context.Context, cfg config.ProjectConfig, logger *zap.Logger) (*pipeline, error) {
	decoder, err := protocol.NewDecoder()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	p := &pipeline{cfg: cfg, logger: logger, store: store}

	registry := prometheus.NewRegistry()
	p.metrics = metrics.NewProjector(registry)
	if cfg.MetricsAddr != "" {
		p.server = metrics.NewServer(cfg.MetricsAddr, registry, logger)
		p.server.Start()
	}

	var errs projector.DecodeErrorWriter
	if cfg.Errors != "" {
		p.errors, err = storage.OpenJSONL(cfg.Errors, false)
		if err != nil {
			p.Close()
			return nil, err
		}
		errs = p.errors
	}

	dispatcher := projector.NewDispatcher(projector.Config{
		Contracts: cfg.Contracts,
		Workers:   cfg.Workers,
	}, store, projector.NewLogReporter(logger), logger, p.metrics)
	p.sink = projector.NewSink(decoder, dispatcher, errs, logger)
	return p, nil
}

// finish logs totals, then runs the optional export and reconciliation.
func (p *pipeline) finish(ctx context.Context) error {
	stats := p.sink.Stats()
	p.logger.Info("project complete",
		zap.Int("logs", stats.Logs),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("applied", stats.Applied),
		zap.Int("duplicate", stats.Duplicate),
		zap.Int("rejected", stats.Rejected),
	)

	if p.cfg.Export != "" {
		n, err := storage.Export(ctx, p.store, p.cfg.Export)
		if err != nil {
			return err
		}
		p.logger.Info("export complete", zap.String("path", p.cfg.Export), zap.Int("entities", n))
	}

	if p.cfg.Check {
		return reconcileStore(ctx, p.store, p.metrics, p.logger)
	}
	return nil
}

func (p *pipeline) Close() {
	if p.errors != nil {
		if err := p.errors.Close(); err != nil {
			p.logger.Warn("close decode errors", zap.Error(err))
		}
	}
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		p.server.Stop(ctx)
		cancel()
	}
	p.store.Close()
}

// projectFile feeds a raw log JSONL file to sink in batches of batchSize.
func projectFile(ctx context.Context, path string, batchSize int, sink *projector.Sink) error {
	if batchSize <= 0 {
		batchSize = 5000
	}

	inputFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.LogRecord, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := sink.PutLogBatch(ctx, batch)
		batch = batch[:0]
		return err
	}

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			if err := sink.DecodeFailed(model.DecodeError{Error: err.Error()}); err != nil {
				return err
			}
			continue
		}

		batch = append(batch, record)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return flush()
}

func reconcileStore(ctx context.Context, reader storage.Reader, m *metrics.Projector, logger *zap.Logger) error {
	report, err := reconcile.Check(ctx, reader)
	if err != nil {
		return err
	}
	m.SetViolations(len(report.Violations))
	report.Log(logger)
	if !report.OK() {
		return fmt.Errorf("reconciliation found %d violations", len(report.Violations))
	}
	return nil
}
