package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

func TestResourceCarriesVersion(t *testing.T) {
	cfg := config.Default()
	cfg.Playback.Sink = "bus"
	res, err := newResource(context.Background(), cfg, "1.2.3")
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	want := map[attribute.Key]string{
		semconv.ServiceNameKey:                  "loqa-narrator",
		semconv.ServiceVersionKey:               "1.2.3",
		"loqa.narration.playback_sink":          "bus",
		attribute.Key("deployment.environment"): "development",
	}
	for key, value := range want {
		got, ok := res.Set().Value(key)
		if !ok || got.AsString() != value {
			t.Fatalf("%s: got %q, want %q", key, got.AsString(), value)
		}
	}
}

func TestInitTracerExporters(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := resource.Empty()

	tp, err := initTracer(context.Background(), config.TelemetryConfig{TraceExporter: "auto"}, res, logger)
	if err != nil {
		t.Fatalf("auto without endpoint: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	if span.SpanContext().IsSampled() {
		t.Fatal("spans should be dropped without an exporter")
	}
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := initTracer(context.Background(), config.TelemetryConfig{TraceExporter: "otlp"}, res, logger); err == nil {
		t.Fatal("otlp without endpoint should fail")
	}
	if _, err := initTracer(context.Background(), config.TelemetryConfig{TraceExporter: "zipkin"}, res, logger); err == nil {
		t.Fatal("unknown exporter should fail")
	}
}
