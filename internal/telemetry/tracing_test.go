package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{Exporter: "none"}, nil)
	if err != nil {
		t.Fatalf("setup tracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTracingRejectsBadConfig(t *testing.T) {
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for otlp without endpoint")
	}
}

func TestSetupTracingStdoutExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	shutdown, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName: "pixelbatch-test",
		Exporter:    ExporterStdout,
		Writer:      &buf,
		Attributes:  []attribute.KeyValue{attribute.String("pixelbatch.backend", "std")},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("setup tracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "pipeline.transform")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "pipeline.transform") {
		t.Fatalf("expected exported span, got %q", out)
	}
	if !strings.Contains(out, "pixelbatch-test") || !strings.Contains(out, "pixelbatch.backend") {
		t.Fatalf("expected resource attributes in %q", out)
	}
}
