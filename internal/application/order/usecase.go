package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService       = "order-service"
	useCaseOrderGet    = "order.get"
	useCaseOrderList   = "order.list"
	useCaseOrderStatus = "order.update_status"
	spanPrefix         = "UC."
	publishPeer        = "outbox"
	publishTimeout     = 300 * time.Millisecond
)

var (
	ErrValidation      = errors.New("order: validation failed")
	ErrNotFound        = domain.ErrNotFound
	ErrInvalidStatus   = domain.ErrInvalidStatus
	ErrStateTransition = domain.ErrInvalidStateTransition
	ErrRepository      = errors.New("order: repository failure")
)

type OrderView struct {
	ID              string
	ExternalOrderID string
	CustomerID      string
	AddressID       int64
	Status          domain.Status
	Total           string
	Items           []domain.Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func viewOf(o *domain.Order) *OrderView {
	return &OrderView{
		ID:              o.ID,
		ExternalOrderID: o.ExternalOrderID,
		CustomerID:      o.CustomerID,
		AddressID:       o.AddressID,
		Status:          o.Status,
		Total:           o.Total.StringFixed(2),
		Items:           append([]domain.Item(nil), o.Items...),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// red holds the tracer, base logger and RED metrics both order use cases report to.
type red struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func newRED(tel observability.Observability) red {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return red{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (r red) finish(ctx context.Context, span trace.Span, logger observability.Logger, useCase, outcome, status string, start time.Time, err error, extra ...observability.Field) {
	lat := time.Since(start).Seconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()

	r.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	r.durHistogram.Observe(lat, observability.L("use_case", useCase))

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

// GetOrderUseCase returns an order to the customer who placed it.
type GetOrderUseCase struct {
	repo domain.Repository
	red
}

func NewGetOrderUseCase(repo domain.Repository, tel observability.Observability) *GetOrderUseCase {
	return &GetOrderUseCase{repo: repo, red: newRED(tel)}
}

type GetOrderInput struct {
	UserID  string
	OrderID string
}

// Execute reports ErrNotFound for orders owned by someone else so their ids stay hidden.
func (uc *GetOrderUseCase) Execute(ctx context.Context, cmd GetOrderInput) (_ *OrderView, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseOrderGet),
		observability.F("order_id", cmd.OrderID),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"GetOrder",
		attribute.String("use_case", useCaseOrderGet),
		attribute.String("order.id", cmd.OrderID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	defer func() {
		uc.finish(ctx, span, logger, useCaseOrderGet, outcome, statusText, start, err)
	}()

	if strings.TrimSpace(cmd.UserID) == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, newValidation("user id is required")
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		outcome, statusText = "error", "ORDER_ID_REQUIRED"
		return nil, newValidation("order id is required")
	}

	o, err := uc.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		outcome, statusText = "error", "ORDER_LOAD_FAILED"
		if errors.Is(err, domain.ErrNotFound) {
			statusText = "ORDER_NOT_FOUND"
		}
		return nil, wrapRepositoryError(err)
	}
	if !o.OwnedBy(cmd.UserID) {
		outcome, statusText = "error", "ORDER_NOT_OWNED"
		return nil, ErrNotFound
	}

	span.SetAttributes(attribute.String("order.status", string(o.Status)))
	return viewOf(o), nil
}

// ListOrdersUseCase returns every order of the calling customer, newest first.
type ListOrdersUseCase struct {
	repo domain.Repository
	red
}

func NewListOrdersUseCase(repo domain.Repository, tel observability.Observability) *ListOrdersUseCase {
	return &ListOrdersUseCase{repo: repo, red: newRED(tel)}
}

type ListOrdersInput struct {
	UserID string
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, cmd ListOrdersInput) (_ []*OrderView, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseOrderList))
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"ListOrders",
		attribute.String("use_case", useCaseOrderList),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var count int
	defer func() {
		uc.finish(ctx, span, logger, useCaseOrderList, outcome, statusText, start, err,
			observability.F("orders", count),
		)
	}()

	if strings.TrimSpace(cmd.UserID) == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, newValidation("user id is required")
	}

	orders, err := uc.repo.ListByCustomer(ctx, cmd.UserID)
	if err != nil {
		outcome, statusText = "error", "ORDERS_LOAD_FAILED"
		return nil, wrapRepositoryError(err)
	}

	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o))
	}
	count = len(views)
	span.SetAttributes(attribute.Int("order.count", count))
	return views, nil
}

// UpdateStatusUseCase moves an order forward through fulfillment.
type UpdateStatusUseCase struct {
	repo      domain.Repository
	publisher domoutbox.Publisher
	red
}

func NewUpdateStatusUseCase(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{repo: repo, publisher: publisher, red: newRED(tel)}
}

type UpdateStatusInput struct {
	OrderID string
	Status  string
}

type UpdateStatusResult struct {
	Order *OrderView
	// Changed is false when the order already had the requested status.
	Changed bool
}

func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *UpdateStatusResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseOrderStatus),
		observability.F("order_id", cmd.OrderID),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"UpdateOrderStatus",
		attribute.String("use_case", useCaseOrderStatus),
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.requested_status", cmd.Status),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var from, to domain.Status
	defer func() {
		uc.finish(ctx, span, logger, useCaseOrderStatus, outcome, statusText, start, err,
			observability.F("from_status", string(from)),
			observability.F("to_status", string(to)),
		)
	}()

	if strings.TrimSpace(cmd.OrderID) == "" {
		outcome, statusText = "error", "ORDER_ID_REQUIRED"
		return nil, newValidation("order id is required")
	}
	to, err = domain.ParseStatus(cmd.Status)
	if err != nil {
		outcome, statusText = "error", "STATUS_INVALID"
		return nil, fmt.Errorf("%w: %w: %q", ErrValidation, err, cmd.Status)
	}

	o, err := uc.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		outcome, statusText = "error", "ORDER_LOAD_FAILED"
		return nil, wrapRepositoryError(err)
	}
	from = o.Status

	changed, err := o.Advance(to)
	if err != nil {
		outcome, statusText = "error", "STATE_TRANSITION_FAILED"
		return nil, fmt.Errorf("%w: %s -> %s", ErrStateTransition, from, to)
	}
	if !changed {
		statusText = "UNCHANGED"
		return &UpdateStatusResult{Order: viewOf(o)}, nil
	}

	if err := uc.repo.Update(ctx, o); err != nil {
		outcome, statusText = "error", "ORDER_UPDATE_FAILED"
		return nil, wrapRepositoryError(err)
	}

	if uc.publisher != nil {
		e := domain.NewOrderStatusChangedEvent(o, from)
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		pubStart := time.Now()
		pubOutcome := "success"
		pubErr := uc.publisher.Publish(pubCtx, e)
		if pubErr == nil && pubCtx.Err() != nil {
			pubErr = pubCtx.Err()
		}
		cancel()
		if pubErr != nil {
			// still success, but record in trace
			pubOutcome = "error"
			statusText = "EVENT_PUBLISH_FAILED"
			span.RecordError(pubErr)
			logger.Warn("event_publish_failed",
				observability.F("event", e.EventName()),
				observability.F("error", pubErr.Error()),
			)
		}
		uc.extCounter.Add(1,
			observability.L("peer", publishPeer),
			observability.L("endpoint", e.EventName()),
			observability.L("outcome", pubOutcome),
		)
		uc.extHistogram.Observe(time.Since(pubStart).Seconds(),
			observability.L("peer", publishPeer),
			observability.L("endpoint", e.EventName()),
		)
	}

	span.AddEvent("order.status_changed", trace.WithAttributes(
		attribute.String("order.from", string(from)),
		attribute.String("order.to", string(to)),
	))
	return &UpdateStatusResult{Order: viewOf(o), Changed: true}, nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
