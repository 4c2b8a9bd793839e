// Package telemetry installs the global OpenTelemetry tracer provider used by
// the instrumented HTTP clients in pkg/client.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rebase-analytics/ibreport/internal/config"
	"github.com/rebase-analytics/ibreport/pkg/logging"
)

const exporterTimeout = 3 * time.Second

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup exports traces to the configured OTLP endpoint. With no endpoint it
// leaves the global no-op provider in place and returns a no-op Shutdown.
func Setup(ctx context.Context, serviceName string, cfg config.TelemetryConfig) (Shutdown, error) {
	if !cfg.Enabled() {
		return noop, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return noop, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := newResource(serviceName)
	if err != nil {
		return noop, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	logger := logging.NewLogger("telemetry")

	if cfg.GRPCEndpoint != "" {
		logger.Info().
			Str("type", "grpc").
			Str("endpoint", cfg.GRPCEndpoint).
			Bool("headers", len(cfg.Headers) > 0).
			Msg("Trace exporter initialized")
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(cfg.GRPCEndpoint),
			otlptracegrpc.WithHeaders(cfg.Headers),
		)
	}

	logger.Info().
		Str("type", "http").
		Str("endpoint", cfg.HTTPEndpoint).
		Bool("headers", len(cfg.Headers) > 0).
		Msg("Trace exporter initialized")
	return otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.HTTPEndpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
}
