package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/claim"
	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/metrics"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/queue"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Mirror interface {
	Mirror(ctx context.Context, runID, localPath string, format domain.Format) (string, error)
}

// Server consumes image:transform tasks and runs each through the pipeline.
type Server struct {
	logger    *zap.Logger
	server    *asynq.Server
	outputDir string
	claimer   claim.Claimer
	store     store.ResultStore
	mirror    Mirror
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Deps struct {
	Claimer claim.Claimer
	Store   store.ResultStore
	Mirror  Mirror
}

func NewServer(logger *zap.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) *Server {
	s := newServer(logger, workerCfg, deps)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			Logger:   logger.Sugar(),
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn("task failed", zap.String("type", task.Type()), zap.Error(err))
			}),
		},
	)
	return s
}

func newServer(logger *zap.Logger, workerCfg config.WorkerConfig, deps Deps) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:    logger,
		outputDir: workerCfg.OutputDir,
		claimer:   deps.Claimer,
		store:     deps.Store,
		mirror:    deps.Mirror,
		metrics:   metrics.New(),
		tracer:    otel.Tracer("pixelbatch/worker"),
	}
	if s.claimer == nil {
		s.claimer = claim.Local{}
	}
	if s.store == nil {
		s.store = store.NewMemoryResultStore()
	}
	return s
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTransformImage, s.handleTransform)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleTransform(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseTransformPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.transform_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("run.id", payload.RunID),
		attribute.String("file.source", payload.Source),
	)
	defer span.End()

	done := s.metrics.Begin()
	defer done()

	outputDir := payload.OutputDir
	if strings.TrimSpace(s.outputDir) != "" {
		outputDir = s.outputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "output dir")
		return fmt.Errorf("create output dir: %w", err)
	}

	processor := pipeline.NewProcessor(payload.Options, outputDir, pipeline.WithClaimer(s.claimer))
	out, err := processor.Process(ctx, payload.Source)

	result := domain.FileResult{
		RunID:     payload.RunID,
		Source:    payload.Source,
		Stage:     string(pipeline.StageOf(err)),
		Duration:  out.Duration,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		result.Status = domain.FileStatusFailed
		result.Error = err.Error()
	} else {
		result.Status = domain.FileStatusSucceeded
		result.Output = out.Path
		result.Width = out.Width
		result.Height = out.Height
		result.Bytes = out.Bytes
	}
	s.metrics.Observe(result.Status, result.Stage, result.Duration, result.Bytes)
	s.record(ctx, result)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result.Stage)
		s.logger.Warn("transform failed",
			zap.String("run_id", payload.RunID),
			zap.String("path", payload.Source),
			zap.String("stage", result.Stage),
			zap.Error(err),
		)
		// Files are attempted exactly once.
		return fmt.Errorf("transform %s: %v: %w", payload.Source, err, asynq.SkipRetry)
	}

	s.logger.Info("transformed",
		zap.String("run_id", payload.RunID),
		zap.String("path", payload.Source),
		zap.String("output", out.Path),
	)
	s.mirrorOutput(ctx, payload.RunID, out)
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) record(ctx context.Context, result domain.FileResult) {
	if err := s.store.Record(ctx, result); err != nil {
		s.logger.Warn("record result failed", zap.String("path", result.Source), zap.Error(err))
	}
}

func (s *Server) mirrorOutput(ctx context.Context, runID string, out pipeline.Output) {
	if s.mirror == nil {
		return
	}
	if _, err := s.mirror.Mirror(ctx, runID, out.Path, out.Format); err != nil {
		s.logger.Warn("mirror upload failed", zap.String("output", out.Path), zap.Error(err))
	}
}
