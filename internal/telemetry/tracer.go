// Package telemetry wires up OpenTelemetry tracing for the arbiter's admit
// loop and the executor's runs. The teacher pulls in the OTel SDK only
// transitively (as part of the Docker client's own instrumentation); here
// it is wired directly so both components emit real spans.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps the process-wide trace.Tracer used for the two spans spec §9
// calls out: one per Executor run, one per Arbiter admit-loop tick.
type Tracer struct {
	trace.Tracer
	shutdown func(context.Context) error
}

// noopShutdown is used when no exporter endpoint is configured, so callers
// can always defer Shutdown unconditionally.
func noopShutdown(context.Context) error { return nil }

// New configures a Tracer. If endpoint is empty, tracing is a no-op (the
// global otel.Tracer default), so code can always create spans without a
// branch on whether telemetry is enabled.
func New(ctx context.Context, endpoint, serviceName string) (*Tracer, error) {
	if endpoint == "" {
		return &Tracer{Tracer: otel.Tracer(serviceName), shutdown: noopShutdown}, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return &Tracer{Tracer: tp.Tracer(serviceName), shutdown: tp.Shutdown}, nil
}

// Shutdown flushes any pending spans. Safe to call on a no-op Tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
