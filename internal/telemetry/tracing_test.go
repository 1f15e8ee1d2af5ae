package telemetry

import (
	"context"
	"testing"

	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/rs/zerolog"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TracingConfig{Exporter: "none"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown, got %v", err)
	}
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := SetupTracing(context.Background(), config.TracingConfig{Exporter: "zipkin"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}

func TestSetupTracingOTLPRequiresEndpoint(t *testing.T) {
	if _, err := SetupTracing(context.Background(), config.TracingConfig{Exporter: "otlp"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing otlp endpoint")
	}
}

func TestSetupTracingStdout(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TracingConfig{
		ServiceName: "pixelkit-test",
		Exporter:    "STDOUT",
		SampleRatio: 1,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("expected stdout exporter, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
