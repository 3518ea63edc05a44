package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	cartService    = "cart-service"
	useCaseGet     = "cart.get"
	useCaseAddItem = "cart.add_item"
	spanPrefix     = "UC."
	cachePeer      = "cart_cache"
)

var (
	ErrValidation = errors.New("cart: validation failed")
	ErrNotFound   = errors.New("cart: product not found")
	ErrRepository = errors.New("cart: repository failure")
)

// Cache holds read copies of carts. Get reports a miss with domcart.ErrNotCached;
// other errors are logged and also served from the store.
type Cache interface {
	Get(ctx context.Context, userID string) (*domcart.Cart, error)
	Set(ctx context.Context, cart *domcart.Cart) error
	Delete(ctx context.Context, userID string) error
}

type Line struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Subtotal  decimal.Decimal
}

// View is a cart priced with current catalog data.
type View struct {
	UserID string
	Lines  []Line
	Total  decimal.Decimal
}

// Service fronts the cart store with an optional read-through cache.
type Service struct {
	store   domcart.Store
	catalog domcatalog.Reader
	cache   Cache

	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

// NewService wires the cart store; cache may be nil.
func NewService(store domcart.Store, catalog domcatalog.Reader, cache Cache, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Service{
		store:        store,
		catalog:      catalog,
		cache:        cache,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", cartService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (s *Service) Get(ctx context.Context, userID string) (_ *View, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseGet))
	ctx, span := s.tracer.Start(ctx, spanPrefix+"GetCart",
		attribute.String("use_case", useCaseGet),
		attribute.String("cart.user_id", userID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	defer func() {
		s.finish(ctx, span, logger, useCaseGet, outcome, statusText, start, err)
	}()

	if strings.TrimSpace(userID) == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	c, hit := s.cached(ctx, logger, userID)
	if !hit {
		statusText = "CACHE_MISS"
		c, err = s.store.Get(ctx, userID)
		if err != nil {
			outcome, statusText = "error", "CART_LOAD_FAILED"
			return nil, fmt.Errorf("%w: %w", ErrRepository, err)
		}
		s.fill(ctx, logger, c)
	}
	span.SetAttributes(attribute.Bool("cart.cache_hit", hit))

	view := &View{UserID: userID, Total: decimal.Zero}
	for _, it := range c.Items {
		p, perr := s.catalog.Get(ctx, it.ProductID)
		if perr != nil {
			outcome, statusText = "error", "PRODUCT_LOAD_FAILED"
			if errors.Is(perr, domcatalog.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %d", ErrNotFound, it.ProductID)
			}
			return nil, fmt.Errorf("%w: %w", ErrRepository, perr)
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		view.Lines = append(view.Lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
			Subtotal:  sub,
		})
		view.Total = view.Total.Add(sub)
	}
	return view, nil
}

func (s *Service) AddItem(ctx context.Context, userID string, productID int64, quantity int) (err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCaseAddItem),
		observability.F("product_id", productID),
		observability.F("quantity", quantity),
	)
	ctx, span := s.tracer.Start(ctx, spanPrefix+"AddCartItem",
		attribute.String("use_case", useCaseAddItem),
		attribute.String("cart.user_id", userID),
		attribute.Int64("cart.product_id", productID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	defer func() {
		s.finish(ctx, span, logger, useCaseAddItem, outcome, statusText, start, err)
	}()

	switch {
	case strings.TrimSpace(userID) == "":
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return fmt.Errorf("%w: user id is required", ErrValidation)
	case productID <= 0:
		outcome, statusText = "error", "PRODUCT_ID_REQUIRED"
		return fmt.Errorf("%w: product id is required", ErrValidation)
	case quantity <= 0:
		outcome, statusText = "error", "QUANTITY_INVALID"
		return fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}

	if _, err := s.catalog.Get(ctx, productID); err != nil {
		outcome, statusText = "error", "PRODUCT_LOAD_FAILED"
		if errors.Is(err, domcatalog.ErrNotFound) {
			return fmt.Errorf("%w: product %d", ErrNotFound, productID)
		}
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}

	if err := s.store.AddItem(ctx, userID, productID, quantity); err != nil {
		outcome, statusText = "error", "CART_UPDATE_FAILED"
		switch {
		case errors.Is(err, domcatalog.ErrNotFound):
			return fmt.Errorf("%w: product %d", ErrNotFound, productID)
		case errors.Is(err, domcart.ErrInvalidQuantity):
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}

	s.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached copy of a cart. Failures are only logged: the
// entry expires on its own.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	start := time.Now()
	err := s.cache.Delete(ctx, userID)
	s.external("delete", start, err)
	if err != nil {
		logctx.FromOr(ctx, s.log).Warn("cart_cache_invalidate_failed",
			observability.F("user_id", userID),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Service) cached(ctx context.Context, logger observability.Logger, userID string) (*domcart.Cart, bool) {
	if s.cache == nil {
		return nil, false
	}
	start := time.Now()
	c, err := s.cache.Get(ctx, userID)
	switch {
	case errors.Is(err, domcart.ErrNotCached):
		s.external("get", start, nil)
		return nil, false
	case err != nil:
		s.external("get", start, err)
		logger.Warn("cart_cache_read_failed", observability.F("error", err.Error()))
		return nil, false
	}
	s.external("get", start, nil)
	return c, true
}

func (s *Service) fill(ctx context.Context, logger observability.Logger, c *domcart.Cart) {
	if s.cache == nil {
		return
	}
	start := time.Now()
	err := s.cache.Set(ctx, c)
	s.external("set", start, err)
	if err != nil {
		logger.Warn("cart_cache_fill_failed", observability.F("error", err.Error()))
	}
}

func (s *Service) external(endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.extCounter.Add(1,
		observability.L("peer", cachePeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", cachePeer),
		observability.L("endpoint", endpoint),
	)
}

func (s *Service) finish(ctx context.Context, span trace.Span, logger observability.Logger, useCase, outcome, status string, start time.Time, err error) {
	lat := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()

	s.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	s.durHistogram.Observe(lat, observability.L("use_case", useCase))

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
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	logger.Info("use_case_done", fields...)
}
