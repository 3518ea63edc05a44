package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domrecon "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
	domsales "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const useCaseCapture = "checkout.capture"

type CaptureInput struct {
	UserID          string
	ExternalOrderID string
	AddressID       int64
}

type CaptureResult struct {
	OrderID         string
	ExternalOrderID string
	Total           decimal.Decimal
	Status          domorder.Status
	Items           []domorder.Item
	// Replayed is true when the order already existed and nothing was changed.
	Replayed bool
}

type captureOutcome struct {
	result *CaptureResult
	status string
}

// CaptureUseCase finalizes a checkout: it captures the payment intent and turns
// the user's cart into an order exactly once per external order id.
type CaptureUseCase struct {
	store     Store
	gateway   dompayment.Gateway
	ids       IDGenerator
	publisher domoutbox.Publisher
	flights   singleflight.Group
	opts      options
	instruments
}

func NewCaptureUseCase(
	store Store,
	gateway dompayment.Gateway,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts ...Option,
) *CaptureUseCase {
	return &CaptureUseCase{
		store:       store,
		gateway:     gateway,
		ids:         ids,
		publisher:   publisher,
		opts:        buildOptions(opts),
		instruments: newInstruments(tel),
	}
}

func (uc *CaptureUseCase) Execute(ctx context.Context, cmd CaptureInput) (_ *CaptureResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseCapture),
		observability.F("external_order_id", cmd.ExternalOrderID),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+"Capture",
		attribute.String("use_case", useCaseCapture),
		attribute.String("checkout.user_id", cmd.UserID),
		attribute.String("checkout.external_order_id", cmd.ExternalOrderID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var orderID string

	defer func() {
		var extra []observability.Field
		if orderID != "" {
			extra = append(extra, observability.F("order_id", orderID))
		}
		uc.done(ctx, span, logger, useCaseCapture, outcome, statusText, start, err, extra...)
	}()

	if strings.TrimSpace(cmd.UserID) == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, newValidation("user id is required")
	}
	if strings.TrimSpace(cmd.ExternalOrderID) == "" {
		outcome, statusText = "error", "EXTERNAL_ORDER_ID_REQUIRED"
		return nil, newValidation("external order id is required")
	}
	if cmd.AddressID <= 0 {
		outcome, statusText = "error", "ADDRESS_ID_REQUIRED"
		return nil, newValidation("address id is required")
	}

	// Duplicate submissions inside this process share one capture.
	key := cmd.UserID + "|" + cmd.ExternalOrderID
	v, err, shared := uc.flights.Do(key, func() (any, error) {
		return uc.capture(logctx.With(ctx, logger), cmd)
	})
	if shared {
		span.SetAttributes(attribute.Bool("checkout.coalesced", true))
	}
	res, _ := v.(*captureOutcome)
	if res != nil {
		statusText = res.status
	}
	if err != nil {
		outcome = "error"
		return nil, err
	}

	out := *res.result
	out.Items = append([]domorder.Item(nil), res.result.Items...)
	orderID = out.OrderID
	span.SetAttributes(
		attribute.String("order.id", out.OrderID),
		attribute.String("order.status", string(out.Status)),
	)
	return &out, nil
}

func (uc *CaptureUseCase) capture(ctx context.Context, cmd CaptureInput) (*captureOutcome, error) {
	logger := logctx.FromOr(ctx, uc.log)
	span := trace.SpanFromContext(ctx)

	existing, err := uc.lookup(ctx, cmd)
	if err != nil {
		return fail("IDEMPOTENCY_LOOKUP_FAILED"), err
	}
	if existing != nil {
		span.AddEvent("order.idempotent_replay",
			trace.WithAttributes(attribute.String("order.id", existing.ID)),
		)
		return replay(existing), nil
	}

	if err := verifyIntent(ctx, uc.store.Intents(), cmd.UserID, cmd.ExternalOrderID, cmd.AddressID); err != nil {
		return fail("INTENT_INVALID"), err
	}
	if err := verifyAddress(ctx, uc.store.Addresses(), cmd.UserID, cmd.AddressID); err != nil {
		return fail("ADDRESS_INVALID"), err
	}
	if err := ctx.Err(); err != nil {
		return fail("CONTEXT_CANCELED"), err
	}

	captured, resumed, err := uc.capturePayment(ctx, cmd)
	if err != nil {
		// A concurrent request may have captured and committed first.
		if existing, lookupErr := uc.lookup(ctx, cmd); lookupErr == nil && existing != nil {
			return replay(existing), nil
		}
		return fail("GATEWAY_FAILED"), err
	}

	// Money has moved; the caller can no longer abort the rest.
	ctx = context.WithoutCancel(ctx)
	span.AddEvent("checkout.payment_captured",
		trace.WithAttributes(
			attribute.String("checkout.captured_amount", captured.StringFixed(2)),
			attribute.Bool("checkout.resumed", resumed != nil),
		),
	)

	placed, err := uc.materialize(ctx, cmd, captured)
	if errors.Is(err, domorder.ErrConflict) {
		existing, lookupErr := uc.lookup(ctx, cmd)
		if lookupErr == nil && existing != nil {
			span.AddEvent("order.idempotent_replay",
				trace.WithAttributes(attribute.String("order.id", existing.ID)),
			)
			return replay(existing), nil
		}
		if lookupErr != nil {
			err = lookupErr
		}
	}
	if err != nil {
		return fail("RECONCILIATION_REQUIRED"), uc.reconcile(ctx, logger, cmd, captured, resumed, err)
	}

	if uc.opts.carts != nil {
		uc.opts.carts.Invalidate(ctx, cmd.UserID)
	}

	status := "OK"
	if resumed != nil {
		status = "RESUMED_CAPTURE"
		if err := uc.store.Reconciliations().Resolve(ctx, resumed.Reference, placed.ID); err != nil {
			logger.Warn("reconciliation_resolve_failed",
				observability.F("reference", resumed.Reference),
				observability.F("order_id", placed.ID),
				observability.F("error", err.Error()),
			)
		}
	}
	uc.auditAmount(ctx, logger, placed)

	if err := uc.publish(ctx, logger, uc.publisher, uc.opts.publishTimeout, domorder.NewOrderPlacedEvent(placed)); err != nil {
		status = "EVENT_PUBLISH_FAILED"
	}

	span.AddEvent("order.placed",
		trace.WithAttributes(attribute.String("order.id", placed.ID)),
	)
	return &captureOutcome{result: resultFrom(placed, false), status: status}, nil
}

// lookup returns the order already materialized for the external id, or nil.
func (uc *CaptureUseCase) lookup(ctx context.Context, cmd CaptureInput) (*domorder.Order, error) {
	o, err := uc.store.Orders().FindByExternalID(ctx, cmd.ExternalOrderID)
	switch {
	case errors.Is(err, domorder.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, wrapRepositoryError(err)
	case !o.OwnedBy(cmd.UserID):
		return nil, newValidation("external order id belongs to another user")
	}
	return o, nil
}

// capturePayment asks the gateway to move the money. When the gateway reports
// the intent as already captured and an earlier attempt left an open
// reconciliation item, that recorded amount is reused.
func (uc *CaptureUseCase) capturePayment(ctx context.Context, cmd CaptureInput) (decimal.Decimal, *domrecon.Item, error) {
	gwCtx, cancel := context.WithTimeout(ctx, uc.opts.gatewayTimeout)
	defer cancel()

	gwStart := time.Now()
	captured, err := uc.gateway.CaptureIntent(gwCtx, cmd.ExternalOrderID)
	uc.external(gatewayPeer, "capture_intent", gwStart, err)

	if errors.Is(err, dompayment.ErrAlreadyCaptured) {
		open, findErr := uc.store.Reconciliations().FindOpenCapture(ctx, cmd.ExternalOrderID)
		if findErr == nil && open.UserID == cmd.UserID {
			return open.CapturedAmount, open, nil
		}
	}
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("%w: capture: %w", ErrGateway, err)
	}
	if !captured.IsPositive() {
		return decimal.Zero, nil, fmt.Errorf("%w: captured amount %s is not positive", ErrGateway, captured.String())
	}
	return uc.toCents(ctx, cmd, captured), nil, nil
}

// toCents rounds a captured amount to the two decimals orders are stored with.
func (uc *CaptureUseCase) toCents(ctx context.Context, cmd CaptureInput, captured decimal.Decimal) decimal.Decimal {
	rounded := captured.Round(2)
	if rounded.Equal(captured) {
		return captured
	}
	logctx.FromOr(ctx, uc.log).Warn("captured_amount_rounded",
		observability.F("external_order_id", cmd.ExternalOrderID),
		observability.F("gateway_amount", captured.String()),
		observability.F("captured_amount", rounded.StringFixed(2)),
	)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("checkout.gateway_amount", captured.String()))
	return rounded
}

// materialize writes the order, stock decrements, sales records and cart
// clearing in one transaction.
func (uc *CaptureUseCase) materialize(ctx context.Context, cmd CaptureInput, captured decimal.Decimal) (*domorder.Order, error) {
	var placed *domorder.Order
	err := uc.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.Carts().Get(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		if c.IsEmpty() {
			return fmt.Errorf("%w: cart is empty", ErrNotFound)
		}

		items := make([]domorder.Item, 0, len(c.Items))
		for _, line := range c.Items {
			p, err := tx.Catalog().Get(ctx, line.ProductID)
			if err != nil {
				return fmt.Errorf("product %d: %w", line.ProductID, err)
			}
			it, err := domorder.NewItem(line.ProductID, line.Quantity, p.Price)
			if err != nil {
				return fmt.Errorf("product %d: %w", line.ProductID, err)
			}
			items = append(items, it)
		}

		o, err := domorder.New(uc.ids.NewID(), cmd.ExternalOrderID, cmd.UserID, cmd.AddressID, captured, items)
		if err != nil {
			return err
		}
		if err := tx.Orders().Insert(ctx, o); err != nil {
			return err
		}

		for _, it := range o.Items {
			if err := tx.Inventory().DecrementIfAvailable(ctx, it.ProductID, it.Quantity); err != nil {
				return fmt.Errorf("product %d: %w", it.ProductID, err)
			}
		}
		for _, it := range o.Items {
			rec := domsales.NewRecord(uc.ids.NewID(), o.ID, o.CustomerID, it.ProductID, it.Quantity, it.UnitPrice)
			if err := tx.Sales().Record(ctx, rec); err != nil {
				return err
			}
		}

		if err := tx.Carts().Clear(ctx, cmd.UserID); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// reconcile records a capture that did not become an order and builds the error returned to the caller.
func (uc *CaptureUseCase) reconcile(
	ctx context.Context,
	logger observability.Logger,
	cmd CaptureInput,
	captured decimal.Decimal,
	resumed *domrecon.Item,
	cause error,
) error {
	cause = wrapRepositoryError(cause)

	item := domrecon.Item{
		Reference:       uc.ids.NewID(),
		Kind:            domrecon.KindCaptureWithoutOrder,
		ExternalOrderID: cmd.ExternalOrderID,
		UserID:          cmd.UserID,
		CapturedAmount:  captured,
		Reason:          cause.Error(),
		OccurredAt:      time.Now().UTC(),
	}
	if resumed != nil {
		item.Reference = resumed.Reference
	}

	logger.Error("reconciliation_required",
		observability.F("reference", item.Reference),
		observability.F("kind", string(item.Kind)),
		observability.F("external_order_id", item.ExternalOrderID),
		observability.F("user_id", item.UserID),
		observability.F("captured_amount", captured.StringFixed(2)),
		observability.F("occurred_at", item.OccurredAt),
		observability.F("reason", item.Reason),
		observability.F("resumed", resumed != nil),
	)

	// A resumed capture already has its item.
	if resumed == nil {
		uc.recordReconciliation(ctx, logger, item)
	}

	return &ReconciliationError{
		Reference:       item.Reference,
		ExternalOrderID: cmd.ExternalOrderID,
		UserID:          cmd.UserID,
		CapturedAmount:  captured,
		Err:             cause,
	}
}

// auditAmount flags orders whose captured total differs from the line subtotals.
// The captured amount stays authoritative.
func (uc *CaptureUseCase) auditAmount(ctx context.Context, logger observability.Logger, o *domorder.Order) {
	itemsTotal := o.ItemsSubtotal()
	if o.Total.Sub(itemsTotal).Abs().LessThanOrEqual(amountTolerance) {
		return
	}

	item := domrecon.Item{
		Reference:       uc.ids.NewID(),
		Kind:            domrecon.KindAmountMismatch,
		ExternalOrderID: o.ExternalOrderID,
		UserID:          o.CustomerID,
		OrderID:         o.ID,
		CapturedAmount:  o.Total,
		Reason:          fmt.Sprintf("captured %s, items total %s", o.Total.StringFixed(2), itemsTotal.StringFixed(2)),
		OccurredAt:      time.Now().UTC(),
	}
	logger.Warn("amount_discrepancy",
		observability.F("reference", item.Reference),
		observability.F("order_id", o.ID),
		observability.F("captured_amount", o.Total.StringFixed(2)),
		observability.F("items_total", itemsTotal.StringFixed(2)),
	)
	uc.recordReconciliation(ctx, logger, item)
}

func (uc *CaptureUseCase) recordReconciliation(ctx context.Context, logger observability.Logger, item domrecon.Item) {
	uc.reconCounter.Add(1, observability.L("kind", string(item.Kind)))
	if err := uc.store.Reconciliations().Record(ctx, item); err != nil {
		logger.Error("reconciliation_record_failed",
			observability.F("reference", item.Reference),
			observability.F("kind", string(item.Kind)),
			observability.F("error", err.Error()),
		)
	}
	_ = uc.publish(ctx, logger, uc.publisher, uc.opts.publishTimeout, domrecon.ReconciliationRequiredEvent{Item: item})
}

func resultFrom(o *domorder.Order, replayed bool) *CaptureResult {
	return &CaptureResult{
		OrderID:         o.ID,
		ExternalOrderID: o.ExternalOrderID,
		Total:           o.Total,
		Status:          o.Status,
		Items:           append([]domorder.Item(nil), o.Items...),
		Replayed:        replayed,
	}
}

func replay(o *domorder.Order) *captureOutcome {
	return &captureOutcome{result: resultFrom(o, true), status: "IDEMPOTENT_REPLAY"}
}

func fail(status string) *captureOutcome {
	return &captureOutcome{status: status}
}
