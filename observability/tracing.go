package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/slackrelay"

// Tracer provides OpenTelemetry tracing for forwards.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// NewTracerWithProvider creates a tracer from tp instead of the global
// provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartForwardSpan starts a span covering a whole forward.
func (t *Tracer) StartForwardSpan(ctx context.Context, forwardID, forwardType, target string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "slackrelay.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("relay.forward_id", forwardID),
			attribute.String("relay.forward_type", forwardType),
			attribute.String("relay.target", target),
		),
	)
}

// EndForwardSpan ends a forward span with result attributes.
func (t *Tracer) EndForwardSpan(span trace.Span, status string, statusCode, attempts, latencyMs int, err string) {
	span.SetAttributes(
		attribute.String("relay.status", status),
		attribute.Int("http.status_code", statusCode),
		attribute.Int("relay.attempts", attempts),
		attribute.Int("relay.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("relay.error", err))
		span.SetStatus(codes.Error, err)
	}
	span.End()
}

// AddEvent records a point event (redirect, retry) on the span in ctx.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
