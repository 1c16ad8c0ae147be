// Package app wires configuration into the optional backends shared by the
// batch CLI and the queue worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelbatch/internal/claim"
	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/runner"
	"github.com/dunamismax/pixelbatch/internal/storage"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/dunamismax/pixelbatch/internal/telemetry"
	"github.com/dunamismax/pixelbatch/internal/webhook"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Dependencies struct {
	Store   store.ResultStore
	Claimer claim.Claimer
	Mirror  *storage.Client
	Webhook *webhook.Client

	closers []func() error
}

// Build connects every backend the configuration enables. owner identifies
// this process in Redis name claims.
func Build(ctx context.Context, cfg config.Config, owner string, logger *zap.Logger) (*Dependencies, error) {
	d := &Dependencies{
		Store:   store.NewMemoryResultStore(),
		Claimer: claim.Local{},
	}

	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresResultStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("initialize result store: %w", err)
		}
		d.Store = pg
		d.closers = append(d.closers, pg.Close)
		logger.Info("result store enabled", zap.String("backend", "postgres"))
	}

	if cfg.Claim.Enabled {
		client := redis.NewClient(cfg.Queue.RedisOptions())
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = d.Close()
			return nil, fmt.Errorf("connect claim redis: %w", err)
		}
		d.Claimer = claim.NewRedis(client, cfg.Claim.Prefix, owner, cfg.Claim.TTL)
		d.closers = append(d.closers, client.Close)
		logger.Info("output name claims enabled", zap.String("redis", cfg.Queue.RedisAddr))
	}

	if cfg.Storage.Enabled() {
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			Prefix:   cfg.Storage.Prefix,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("initialize storage client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		d.Mirror = client
		logger.Info("output mirror enabled", zap.String("bucket", client.Bucket()))
	}

	if cfg.Webhook.URL != "" {
		d.Webhook = webhook.NewClient(webhook.Config{
			SigningSecret: cfg.Webhook.SigningSecret,
			Timeout:       cfg.Webhook.Timeout,
			MaxAttempts:   cfg.Webhook.MaxAttempts,
		})
	}

	return d, nil
}

// RunnerOptions translates the enabled backends into runner options.
func (d *Dependencies) RunnerOptions(cfg config.Config) []runner.Option {
	opts := []runner.Option{
		runner.WithStore(d.Store),
		runner.WithClaimer(d.Claimer),
	}
	if d.Mirror != nil {
		opts = append(opts, runner.WithMirror(d.Mirror))
	}
	if d.Webhook != nil {
		opts = append(opts, runner.WithNotifier(d.Webhook, cfg.Webhook.URL))
	}
	return opts
}

func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func TraceConfig(cfg config.TelemetryConfig) telemetry.TraceConfig {
	return telemetry.TraceConfig{
		ServiceName:  cfg.ServiceName,
		Exporter:     cfg.Exporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		Attributes: []attribute.KeyValue{
			attribute.String("pixelbatch.codec_backend", pipeline.Backend()),
		},
	}
}

// ServeMetrics exposes handler on addr in the background. It returns nil when
// addr is empty.
func ServeMetrics(addr string, handler http.Handler, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
