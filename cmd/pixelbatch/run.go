package main

import (
	"context"
	"fmt"

	"github.com/dunamismax/pixelbatch/internal/app"
	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/logging"
	"github.com/dunamismax/pixelbatch/internal/metrics"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/runner"
	"github.com/dunamismax/pixelbatch/internal/telemetry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) runBatch(cmd *cobra.Command) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, "pixelbatch")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	summary, err := runBatch(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return err
	}
	if cfg.Batch.FailOnError && summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Discovered)
	}
	return nil
}

func runBatch(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.RunSummary, error) {
	shutdownTracing, err := telemetry.SetupTracing(ctx, app.TraceConfig(cfg.Telemetry), logger)
	if err != nil {
		return domain.RunSummary{}, err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := pipeline.Startup(); err != nil {
		return domain.RunSummary{}, err
	}
	defer pipeline.Shutdown()

	runID := uuid.NewString()
	deps, err := app.Build(ctx, cfg, runID, logger)
	if err != nil {
		return domain.RunSummary{}, err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("closing backends failed", zap.Error(err))
		}
	}()

	m := metrics.New()
	if srv := app.ServeMetrics(cfg.Metrics.Addr, m.Handler(), logger); srv != nil {
		defer func() { _ = srv.Close() }()
	}

	opts := append(deps.RunnerOptions(cfg), runner.WithMetrics(m))
	r := runner.New(logger, runner.Options{
		RunID:     runID,
		Input:     cfg.Batch.Input,
		OutputDir: cfg.Batch.Output,
		Recursive: cfg.Batch.Recursive,
		Workers:   cfg.Batch.Workers,
		Transform: cfg.Transform.Options(),
	}, opts...)

	return r.Run(ctx)
}
