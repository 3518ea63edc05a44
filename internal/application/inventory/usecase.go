package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domsales "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	inventoryService   = "inventory-service"
	useCaseStockLevel  = "inventory.stock_level"
	spanPrefix         = "UC."
	defaultLowStockMin = 5
)

var (
	ErrValidation = errors.New("inventory: validation failed")
	ErrNotFound   = dominv.ErrNotFound
	ErrRepository = errors.New("inventory: repository failure")
)

type StockLevelInput struct {
	ProductID int64
}

// StockLevel is what is left of a product next to what has been sold of it.
type StockLevel struct {
	ProductID int64
	Available int
	Sold      int
	Low       bool
}

type StockLevelUseCase struct {
	ledger   dominv.Ledger
	sales    domsales.Ledger
	lowStock int

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

// NewStockLevelUseCase flags levels at or under lowStock as low; zero or less picks a default.
func NewStockLevelUseCase(ledger dominv.Ledger, sales domsales.Ledger, lowStock int, tel observability.Observability) *StockLevelUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	if lowStock <= 0 {
		lowStock = defaultLowStockMin
	}
	m := tel.Metrics()
	return &StockLevelUseCase{
		ledger:       ledger,
		sales:        sales,
		lowStock:     lowStock,
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (uc *StockLevelUseCase) Execute(ctx context.Context, cmd StockLevelInput) (_ *StockLevel, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseStockLevel),
		observability.F("product_id", cmd.ProductID),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"StockLevel",
		attribute.String("use_case", useCaseStockLevel),
		attribute.Int64("product.id", cmd.ProductID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var level StockLevel

	defer func() {
		lat := time.Since(start).Seconds()
		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseStockLevel),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat, observability.L("use_case", useCaseStockLevel))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("available", level.Available),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		logger.Info("use_case_done", fields...)
		span.End()
	}()

	if cmd.ProductID <= 0 {
		outcome, statusText = "error", "PRODUCT_ID_INVALID"
		return nil, fmt.Errorf("%w: product id must be positive", ErrValidation)
	}

	available, err := uc.ledger.Stock(ctx, cmd.ProductID)
	if err != nil {
		outcome, statusText = "error", "STOCK_LOAD_FAILED"
		if errors.Is(err, dominv.ErrNotFound) {
			statusText = "PRODUCT_NOT_FOUND"
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	sold, err := uc.sales.QuantitySold(ctx, cmd.ProductID)
	if err != nil {
		outcome, statusText = "error", "SALES_LOAD_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	level = StockLevel{
		ProductID: cmd.ProductID,
		Available: available,
		Sold:      sold,
		Low:       dominv.IsLow(available, uc.lowStock),
	}
	if level.Low {
		statusText = "LOW_STOCK"
	}
	span.SetAttributes(
		attribute.Int("inventory.available", available),
		attribute.Int("inventory.sold", sold),
	)
	return &level, nil
}
