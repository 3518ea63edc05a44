package oteltrace_test

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestStartPutsSpanOnContext(t *testing.T) {
	tr := oteltrace.FromProvider(noop.NewTracerProvider(), "")

	ctx, span := tr.Start(context.Background(), "UC.Capture", attribute.String("user.id", "u-1"))
	defer span.End()

	assert.Equal(t, span.SpanContext(), trace.SpanContextFromContext(ctx))
}

func TestNewUsesGlobalProvider(t *testing.T) {
	assert.NotPanics(t, func() {
		_, span := oteltrace.New("checkout").Start(context.Background(), "UC.CreateIntent")
		span.End()
	})
}
