package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects an event-scoped logger for background/worker executions.
// Dynamic fields only: event_id (generated if empty), trace_id/span_id when the
// context carries a valid span, plus caller-provided low-cardinality attributes.
func WithEventContext(ctx context.Context, base observability.Logger, attrs map[string]string) context.Context {
	if base == nil {
		base = logctx.FromOr(ctx, observability.NopLogger())
	}

	fields := make([]observability.Field, 0, len(attrs)+3)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Subscriber decorates a subscriber so every handler runs with an event-scoped logger.
type Subscriber struct {
	inner domoutbox.Subscriber
	base  observability.Logger
	attrs map[string]string
}

// NewSubscriber wraps inner. attrs are added to every handler's logger.
func NewSubscriber(inner domoutbox.Subscriber, base observability.Logger, attrs map[string]string) *Subscriber {
	return &Subscriber{inner: inner, base: base, attrs: attrs}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.inner.Subscribe(eventName, s.wrap(h))
}

// SubscribeAll hands every event to h. Inner subscribers that cannot fan in
// are left untouched and the miss is logged.
func (s *Subscriber) SubscribeAll(h domoutbox.Handler) {
	fan, ok := s.inner.(domoutbox.FanInSubscriber)
	if !ok {
		if s.base != nil {
			s.base.Warn("subscribe_all_unsupported", observability.F("attrs", s.attrs))
		}
		return
	}
	fan.SubscribeAll(s.wrap(h))
}

func (s *Subscriber) wrap(h domoutbox.Handler) domoutbox.Handler {
	return func(ctx context.Context, e domoutbox.Event) error {
		attrs := make(map[string]string, len(s.attrs)+1)
		for k, v := range s.attrs {
			attrs[k] = v
		}
		attrs["event"] = e.EventName()
		return h(WithEventContext(ctx, s.base, attrs), e)
	}
}

var _ domoutbox.FanInSubscriber = (*Subscriber)(nil)
