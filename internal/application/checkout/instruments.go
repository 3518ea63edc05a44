package checkout

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService = "checkout-service"
	spanPrefix      = "UC."

	gatewayPeer = "payment_gateway"
	publishPeer = "outbox"

	defaultGatewayTimeout = 10 * time.Second
	defaultPublishTimeout = 300 * time.Millisecond
)

// instruments carries the logger and RED metrics shared by the checkout use cases.
type instruments struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	reconCounter observability.Counter   // checkout_reconciliation_items_total{kind}
}

func newInstruments(tel observability.Observability) instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return instruments{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", checkoutService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
		reconCounter: m.Counter(observability.MReconciliationItems),
	}
}

// done closes the span, records RED metrics and writes the single use_case_done line.
func (in instruments) done(ctx context.Context, span trace.Span, logger observability.Logger, useCase, outcome, status string, start time.Time, err error, extra ...observability.Field) {
	lat := time.Since(start).Seconds()

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}

	in.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	in.durHistogram.Observe(lat, observability.L("use_case", useCase))

	fields := []observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, extra...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	logger.Info("use_case_done", fields...)
}

// external records a call to a peer outside the process.
func (in instruments) external(peer, endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

// publish is best-effort: failures are logged and returned for the caller's status line only.
func (in instruments) publish(ctx context.Context, logger observability.Logger, publisher domoutbox.Publisher, timeout time.Duration, e domoutbox.Event) error {
	if publisher == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := publisher.Publish(pubCtx, e)
	if err == nil && pubCtx.Err() != nil {
		err = pubCtx.Err()
	}
	in.external(publishPeer, e.EventName(), start, err)
	if err != nil {
		logger.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
	return err
}

// Option tunes the timeouts of the checkout use cases.
type Option func(*options)

type options struct {
	gatewayTimeout time.Duration
	publishTimeout time.Duration
	carts          CartInvalidator
}

// WithCartInvalidator drops the cached cart as soon as a capture commits.
func WithCartInvalidator(c CartInvalidator) Option {
	return func(o *options) { o.carts = c }
}

func WithGatewayTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.gatewayTimeout = d
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{gatewayTimeout: defaultGatewayTimeout, publishTimeout: defaultPublishTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
