// Package tracing carries a per-request correlation ID through context and
// wires the optional Jaeger span exporter.
package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

var traceKey contextKey

// Begin assigns a fresh trace ID to the request and returns the derived
// context. The ID lives only inside this context, so concurrently handled
// requests never see each other's IDs.
func Begin(ctx context.Context) (context.Context, string) {
	traceID := uuid.NewString()
	return context.WithValue(ctx, traceKey, traceID), traceID
}

// Ensure returns the context unchanged when it already carries a trace ID,
// and begins a fresh trace otherwise. Lets the transport own the trace while
// keeping directly-invoked pipeline calls traceable.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	return Begin(ctx)
}

// FromContext returns the request's trace ID, or "" outside a request.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceKey).(string); ok {
		return id
	}
	return ""
}

// StartSpan opens an otel span named after the gateway stage and tags it with
// the correlation ID so Jaeger traces and log lines join on the same key.
func StartSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("emissions-gateway").Start(ctx, stage)
	if id := FromContext(ctx); id != "" {
		span.SetAttributes(attribute.String("gateway.trace_id", id))
	}
	return ctx, span
}

// Setup installs a Jaeger-exporting tracer provider. Returns a shutdown
// function to flush spans on exit. A blank endpoint leaves the global
// no-op provider in place.
func Setup(serviceName, jaegerEndpoint string) (func(context.Context) error, error) {
	if jaegerEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
