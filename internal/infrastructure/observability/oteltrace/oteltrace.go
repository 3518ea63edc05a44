package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultInstrumentation = "minishop-checkout"

type tracer struct{ t trace.Tracer }

// New returns a tracer backed by the global OpenTelemetry provider.
func New(name string) observability.Tracer {
	return FromProvider(otel.GetTracerProvider(), name)
}

// FromProvider names a tracer on tp. A nil tp means the global provider.
func FromProvider(tp trace.TracerProvider, name string) observability.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if name == "" {
		name = defaultInstrumentation
	}
	return &tracer{t: tp.Tracer(name)}
}

// Start opens an internal span; use cases and workers never cross a process boundary.
func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
