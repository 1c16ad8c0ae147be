package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dunamismax/pixelbatch/internal/claim"
	"github.com/dunamismax/pixelbatch/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Stage string

const (
	StageDecoding    Stage = "decoding"
	StageOrientation Stage = "orientation"
	StageResizing    Stage = "resizing"
	StageRotating    Stage = "rotating"
	StageEncoding    Stage = "encoding"
	StageDone        Stage = "done"
)

var (
	ErrDecode = errors.New("decode failed")
	ErrEncode = errors.New("encode failed")
)

// StageError records which pipeline stage a file failed in.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or StageDone for nil.
func StageOf(err error) Stage {
	if err == nil {
		return StageDone
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageDecoding
}

type Output struct {
	Source   string
	Path     string
	Format   domain.Format
	Width    int
	Height   int
	Bytes    int64
	Duration time.Duration
}

type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", path, err)
	}
	return data, nil
}

// Processor runs the transform pipeline for one file at a time. It holds no
// per-file state and is safe for concurrent use.
type Processor struct {
	opts      domain.TransformOptions
	outputDir string
	fetcher   Fetcher
	claimer   claim.Claimer
	tracer    trace.Tracer
}

type Option func(*Processor)

func WithClaimer(c claim.Claimer) Option {
	return func(p *Processor) {
		if c != nil {
			p.claimer = c
		}
	}
}

func WithFetcher(f Fetcher) Option {
	return func(p *Processor) {
		if f != nil {
			p.fetcher = f
		}
	}
}

func NewProcessor(opts domain.TransformOptions, outputDir string, options ...Option) *Processor {
	p := &Processor{
		opts:      opts,
		outputDir: outputDir,
		fetcher:   LocalFileFetcher{},
		claimer:   claim.Local{},
		tracer:    otel.Tracer("pixelbatch/pipeline"),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

func (p *Processor) Options() domain.TransformOptions {
	return p.opts
}

// Process decodes, transforms and encodes one file. Every file is attempted
// exactly once; a returned error is a *StageError naming where it stopped.
func (p *Processor) Process(ctx context.Context, source string) (Output, error) {
	startedAt := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.transform", trace.WithAttributes(
		attribute.String("file.source", source),
		attribute.String("transform.format", p.opts.Format.String()),
		attribute.String("transform.resize", p.opts.Resize.String()),
	))
	defer span.End()

	out, err := p.process(ctx, source)
	out.Duration = time.Since(startedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(StageOf(err)))
		return out, err
	}

	span.SetAttributes(
		attribute.String("file.output", out.Path),
		attribute.Int("image.width", out.Width),
		attribute.Int("image.height", out.Height),
		attribute.Int64("file.bytes", out.Bytes),
	)
	span.SetStatus(codes.Ok, string(StageDone))
	return out, nil
}

func (p *Processor) process(ctx context.Context, source string) (Output, error) {
	out := Output{Source: source}

	data, err := p.fetcher.Fetch(ctx, source)
	if err != nil {
		return out, &StageError{Stage: StageDecoding, Path: source, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}

	// Decoding and orientation normalization.
	unit, err := NewUnit(source, data, p.outputDir, p.opts.Format)
	if err != nil {
		return out, &StageError{Stage: StageDecoding, Path: source, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}

	// Resizing, then rotating and flipping.
	unit.Apply(p.opts)

	path, size, err := Save(ctx, unit, p.opts, p.claimer)
	if err != nil {
		return out, &StageError{Stage: StageEncoding, Path: source, Err: fmt.Errorf("%w: %w", ErrEncode, err)}
	}

	out.Path = path
	out.Format = p.opts.Format
	if out.Format == domain.FormatNone {
		out.Format = unit.SourceFormat
	}
	out.Width = unit.Width
	out.Height = unit.Height
	out.Bytes = size
	return out, nil
}
