package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/logging"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/queue"
	"github.com/dunamismax/pixelbatch/internal/ratelimit"
	"github.com/dunamismax/pixelbatch/internal/runner"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEnqueueCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue one transform task per eligible file for pixelbatch workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.enqueue(cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("redis-addr", "localhost:6379", "Redis address of the task queue")
	flags.String("queue", "default", "queue name")
	flags.Int("rate", 0, "max tasks queued per second, shared by all enqueuers (0 = unlimited)")
	for name, key := range map[string]string{
		"redis-addr": "queue.redis_addr",
		"queue":      "queue.name",
		"rate":       "queue.rate",
	} {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

func (c *cli) enqueue(cmd *cobra.Command) error {
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

	return enqueueRun(cmd, cfg, logger)
}

func enqueueRun(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) error {
	ctx := cmd.Context()

	// Workers may run on other hosts, so every path travels absolute.
	outputDir, err := filepath.Abs(cfg.Batch.Output)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	client := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() { _ = client.Close() }()

	throttle, closeThrottle, err := newThrottle(cfg.Queue)
	if err != nil {
		return err
	}
	defer closeThrottle()

	runID := uuid.NewString()
	opts := cfg.Transform.Options()
	var queued, failed int

	err = runner.Discover(ctx, cfg.Batch.Input, cfg.Batch.Recursive, pipeline.Eligible, func(path string) error {
		source, err := filepath.Abs(path)
		if err != nil {
			source = path
		}

		if throttle != nil {
			if err := throttle.Wait(ctx, cfg.Queue.Name); err != nil {
				return fmt.Errorf("throttle: %w", err)
			}
		}

		info, err := client.EnqueueTransform(ctx, queue.TransformPayload{
			RunID:       runID,
			Source:      source,
			OutputDir:   outputDir,
			Options:     opts,
			RequestedAt: time.Now().UTC(),
		})
		if err != nil {
			failed++
			logger.Warn("enqueue failed", zap.String("path", source), zap.Error(err))
			return nil
		}

		queued++
		logger.Debug("queued", zap.String("path", source), zap.String("task_id", info.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", cfg.Batch.Input, err)
	}

	logger.Info("enqueued run",
		zap.String("run_id", runID),
		zap.String("queue", cfg.Queue.Name),
		zap.Int("queued", queued),
		zap.Int("failed", failed),
	)
	fmt.Fprintln(cmd.OutOrStdout(), runID)

	if cfg.Batch.FailOnError && failed > 0 {
		return fmt.Errorf("%d of %d files could not be queued", failed, queued+failed)
	}
	return nil
}

// newThrottle returns a nil throttle when no rate is configured.
func newThrottle(cfg config.QueueConfig) (*ratelimit.Throttle, func(), error) {
	if cfg.Rate <= 0 {
		return nil, func() {}, nil
	}

	client := redis.NewClient(cfg.RedisOptions())
	throttle, err := ratelimit.NewThrottle(client, cfg.Rate, "")
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return throttle, func() { _ = client.Close() }, nil
}
