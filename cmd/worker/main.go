package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dunamismax/pixelbatch/internal/app"
	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/logging"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/telemetry"
	"github.com/dunamismax/pixelbatch/internal/worker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMetricsAddr = ":9091"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.New(), os.Getenv("PIXELBATCH_CONFIG"))
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, "pixelbatch-worker")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, app.TraceConfig(cfg.Telemetry), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := pipeline.Startup(); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	hostname, _ := os.Hostname()
	deps, err := app.Build(ctx, cfg, hostname+"/"+uuid.NewString(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("closing backends failed", zap.Error(err))
		}
	}()

	workerDeps := worker.Deps{Claimer: deps.Claimer, Store: deps.Store}
	if deps.Mirror != nil {
		workerDeps.Mirror = deps.Mirror
	}

	logger.Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Queue.RedisAddr),
		zap.String("backend", pipeline.Backend()),
	)

	srv := worker.NewServer(logger, cfg.Queue, cfg.Worker, workerDeps)

	metricsAddr := cfg.Metrics.Addr
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}
	if httpSrv := app.ServeMetrics(metricsAddr, srv.MetricsHandler(), logger); httpSrv != nil {
		defer func() { _ = httpSrv.Close() }()
	}

	if err := srv.Run(); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}
