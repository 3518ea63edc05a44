package cart

import (
	"context"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const workerService = "cart_worker"

// Worker drops cached carts once their contents became an order.
type Worker struct {
	subscriber domoutbox.Subscriber
	service    *Service

	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewWorker(subscriber domoutbox.Subscriber, service *Service, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Worker{
		subscriber:   subscriber,
		service:      service,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.service == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPlacedEvent{}.EventName(), w.handleOrderPlaced)
}

func (w *Worker) handleOrderPlaced(ctx context.Context, e domoutbox.Event) error {
	const useCase = "cart.worker.order_placed"
	evt, ok := e.(domorder.OrderPlacedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tracer.Start(ctx, spanPrefix+"OrderPlaced",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("order.id", evt.OrderID),
	)
	start := time.Now()

	ctx, logger := logctx.Enrich(ctx, w.log,
		observability.F("use_case", useCase),
		observability.F("order_id", evt.OrderID),
		observability.F("customer_id", evt.CustomerID),
	)

	w.service.Invalidate(ctx, evt.CustomerID)

	lat := time.Since(start).Seconds()
	w.count(useCase, "success")
	w.durHistogram.Observe(lat, observability.L("use_case", useCase))
	logger.Info("use_case_done",
		observability.F("outcome", "success"),
		observability.F("status", "OK"),
		observability.F("latency_seconds", lat),
	)
	span.SetStatus(codes.Ok, "OK")
	span.End()
	return nil
}

func (w *Worker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}
