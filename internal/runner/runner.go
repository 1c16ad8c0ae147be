package runner

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dunamismax/pixelbatch/internal/claim"
	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/metrics"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options is the immutable per-run configuration. Workers defaults to the
// number of CPUs.
type Options struct {
	RunID     string
	Input     string
	OutputDir string
	Recursive bool
	Workers   int
	Transform domain.TransformOptions
}

type Mirror interface {
	Mirror(ctx context.Context, runID, localPath string, format domain.Format) (string, error)
}

type Notifier interface {
	NotifyRunCompleted(ctx context.Context, endpoint string, summary domain.RunSummary) error
}

// Runner fans a directory out over a fixed pool of pipeline workers.
type Runner struct {
	logger     *zap.Logger
	opts       Options
	claimer    claim.Claimer
	store      store.ResultStore
	mirror     Mirror
	metrics    *metrics.Metrics
	notifier   Notifier
	webhookURL string
}

type Option func(*Runner)

func WithClaimer(c claim.Claimer) Option {
	return func(r *Runner) { r.claimer = c }
}

func WithStore(s store.ResultStore) Option {
	return func(r *Runner) { r.store = s }
}

func WithMirror(m Mirror) Option {
	return func(r *Runner) { r.mirror = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithNotifier(n Notifier, endpoint string) Option {
	return func(r *Runner) {
		r.notifier = n
		r.webhookURL = endpoint
	}
}

func New(logger *zap.Logger, opts Options, options ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	r := &Runner{
		logger:  logger,
		opts:    opts,
		claimer: claim.Local{},
		store:   store.NewMemoryResultStore(),
		metrics: metrics.New(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

func (r *Runner) RunID() string {
	return r.opts.RunID
}

// Run processes every discovered file once. Per-file failures are logged,
// recorded and counted; only setup and enumeration errors are returned.
func (r *Runner) Run(ctx context.Context) (domain.RunSummary, error) {
	startedAt := time.Now()
	summary := domain.RunSummary{
		RunID:     r.opts.RunID,
		Input:     r.opts.Input,
		OutputDir: r.opts.OutputDir,
		StartedAt: startedAt.UTC(),
	}

	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return summary, fmt.Errorf("create output dir: %w", err)
	}

	r.logger.Info("starting run", r.optionFields()...)

	processor := pipeline.NewProcessor(r.opts.Transform, r.opts.OutputDir, pipeline.WithClaimer(r.claimer))
	paths := make(chan string, r.opts.Workers)

	var discovered, succeeded, failed atomic.Int64
	var g errgroup.Group

	g.Go(func() error {
		defer close(paths)
		return Discover(ctx, r.opts.Input, r.opts.Recursive, pipeline.Eligible, func(path string) error {
			discovered.Add(1)
			select {
			case paths <- path:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	for i := 0; i < r.opts.Workers; i++ {
		g.Go(func() error {
			for path := range paths {
				if r.processFile(ctx, processor, path) {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
			}
			return nil
		})
	}

	walkErr := g.Wait()

	finishedAt := time.Now()
	summary.Discovered = int(discovered.Load())
	summary.Succeeded = int(succeeded.Load())
	summary.Failed = int(failed.Load())
	summary.FinishedAt = finishedAt.UTC()
	summary.ElapsedMS = finishedAt.Sub(startedAt).Milliseconds()

	r.logger.Info("done",
		zap.String("run_id", summary.RunID),
		zap.Int("files", summary.Discovered),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int64("elapsed_ms", summary.ElapsedMS),
	)

	r.notify(ctx, summary)

	if walkErr != nil {
		return summary, fmt.Errorf("enumerate input: %w", walkErr)
	}
	return summary, nil
}

func (r *Runner) processFile(ctx context.Context, processor *pipeline.Processor, path string) bool {
	done := r.metrics.Begin()
	defer done()

	out, err := processor.Process(ctx, path)
	result := domain.FileResult{
		RunID:     r.opts.RunID,
		Source:    path,
		Stage:     string(pipeline.StageOf(err)),
		Duration:  out.Duration,
		CreatedAt: time.Now().UTC(),
	}

	if err != nil {
		result.Status = domain.FileStatusFailed
		result.Error = err.Error()
		r.logger.Warn("transform failed",
			zap.String("path", path),
			zap.String("stage", result.Stage),
			zap.Error(err),
		)
	} else {
		result.Status = domain.FileStatusSucceeded
		result.Output = out.Path
		result.Width = out.Width
		result.Height = out.Height
		result.Bytes = out.Bytes
		r.logger.Info("transformed",
			zap.String("path", path),
			zap.String("output", out.Path),
			zap.Int("width", out.Width),
			zap.Int("height", out.Height),
			zap.Duration("duration", out.Duration),
		)
		r.mirrorOutput(ctx, out)
	}

	r.metrics.Observe(result.Status, result.Stage, result.Duration, result.Bytes)
	if storeErr := r.store.Record(ctx, result); storeErr != nil {
		r.logger.Warn("record result failed", zap.String("path", path), zap.Error(storeErr))
	}
	return err == nil
}

func (r *Runner) mirrorOutput(ctx context.Context, out pipeline.Output) {
	if r.mirror == nil {
		return
	}
	key, err := r.mirror.Mirror(ctx, r.opts.RunID, out.Path, out.Format)
	if err != nil {
		r.logger.Warn("mirror upload failed", zap.String("output", out.Path), zap.Error(err))
		return
	}
	r.logger.Debug("mirrored output", zap.String("output", out.Path), zap.String("object_key", key))
}

func (r *Runner) notify(ctx context.Context, summary domain.RunSummary) {
	if r.notifier == nil || r.webhookURL == "" {
		return
	}
	if err := r.notifier.NotifyRunCompleted(ctx, r.webhookURL, summary); err != nil {
		r.logger.Warn("webhook delivery failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}

// optionFields mirrors what a user chose: quality only matters to webp and
// avif, speed only to avif, and the filter only to exact and fill.
func (r *Runner) optionFields() []zap.Field {
	t := r.opts.Transform
	fields := []zap.Field{
		zap.String("run_id", r.opts.RunID),
		zap.String("input", r.opts.Input),
		zap.String("output", r.opts.OutputDir),
		zap.Bool("recursive", r.opts.Recursive),
		zap.Int("workers", r.opts.Workers),
		zap.String("backend", pipeline.Backend()),
		zap.Stringer("resize", t.Resize),
	}
	if t.Width > 0 {
		fields = append(fields, zap.Int("width", t.Width))
	}
	if t.Height > 0 {
		fields = append(fields, zap.Int("height", t.Height))
	}
	if t.Resize.UsesFilter() {
		fields = append(fields, zap.Stringer("filter", t.Filter))
	}
	fields = append(fields, zap.Stringer("format", t.Format))
	if t.Format == domain.FormatWebP || t.Format == domain.FormatAVIF {
		fields = append(fields, zap.Float32("quality", t.Quality))
	}
	if t.Format == domain.FormatAVIF {
		fields = append(fields, zap.Int("speed", t.Speed))
	}
	if t.Rotation != domain.RotateNone {
		fields = append(fields, zap.Stringer("rotation", t.Rotation))
	}
	if t.FlipHorizontal {
		fields = append(fields, zap.Bool("flip_horizontal", true))
	}
	if t.FlipVertical {
		fields = append(fields, zap.Bool("flip_vertical", true))
	}
	return fields
}
