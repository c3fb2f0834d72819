package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracerUsesProvider(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := Tracer(tp).Start(context.Background(), "voice.session")
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if got := ended[0].InstrumentationScope().Name; got != InstrumentationName {
		t.Fatalf("scope %q", got)
	}
	if Tracer(nil) == nil {
		t.Fatal("expected a tracer from the global provider")
	}
}

func TestSetupDisabled(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), "", "voicebot")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatal("disabled setup replaced the global provider")
	}
}

func TestNewTracerProvider(t *testing.T) {
	// no collector is listening; creating the provider must still succeed
	tp, err := NewTracerProvider(context.Background(), "http://localhost:0/v1/traces", "voicebot-test")
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()
}
