package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const useCaseCreateIntent = "checkout.create_intent"

// amountTolerance is the largest difference between two totals still treated as equal.
var amountTolerance = decimal.New(1, -2)

type IntentItem struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

type CreateIntentInput struct {
	UserID    string
	AddressID int64
	Items     []IntentItem
	// Total is what the client displayed to the user.
	Total decimal.Decimal
}

type CreateIntentResult struct {
	ExternalOrderID string
	AddressID       int64
	Total           decimal.Decimal
}

// CreateIntentUseCase registers a payment intent with the gateway after
// validating the client's cart snapshot and delivery address. The intent is
// recorded against the user so nobody else can capture it.
type CreateIntentUseCase struct {
	addresses domaddress.Repository
	intents   dompayment.IntentRepository
	gateway   dompayment.Gateway
	opts      options
	instruments
}

func NewCreateIntentUseCase(
	addresses domaddress.Repository,
	intents dompayment.IntentRepository,
	gateway dompayment.Gateway,
	tel observability.Observability,
	opts ...Option,
) *CreateIntentUseCase {
	return &CreateIntentUseCase{
		addresses:   addresses,
		intents:     intents,
		gateway:     gateway,
		opts:        buildOptions(opts),
		instruments: newInstruments(tel),
	}
}

func (uc *CreateIntentUseCase) Execute(ctx context.Context, cmd CreateIntentInput) (_ *CreateIntentResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseCreateIntent))

	ctx, span := uc.tracer.Start(ctx, spanPrefix+"CreateIntent",
		attribute.String("use_case", useCaseCreateIntent),
		attribute.String("checkout.user_id", cmd.UserID),
		attribute.Int64("checkout.address_id", cmd.AddressID),
		attribute.Int("checkout.items", len(cmd.Items)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var externalOrderID string

	defer func() {
		var extra []observability.Field
		if externalOrderID != "" {
			extra = append(extra, observability.F("external_order_id", externalOrderID))
		}
		uc.done(ctx, span, logger, useCaseCreateIntent, outcome, statusText, start, err, extra...)
	}()

	if strings.TrimSpace(cmd.UserID) == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, newValidation("user id is required")
	}
	if cmd.AddressID <= 0 {
		outcome, statusText = "error", "ADDRESS_ID_REQUIRED"
		return nil, newValidation("address id is required")
	}
	if len(cmd.Items) == 0 {
		outcome, statusText = "error", "ITEMS_REQUIRED"
		return nil, newValidation("at least one item is required")
	}
	if !cmd.Total.IsPositive() {
		outcome, statusText = "error", "TOTAL_INVALID"
		return nil, newValidation("total must be greater than zero")
	}

	computed := decimal.Zero
	gwItems := make([]dompayment.IntentItem, 0, len(cmd.Items))
	for i, it := range cmd.Items {
		if it.Quantity <= 0 {
			outcome, statusText = "error", "QUANTITY_INVALID"
			return nil, newValidation(fmt.Sprintf("item %d: quantity must be greater than zero", i))
		}
		if it.Price.IsNegative() {
			outcome, statusText = "error", "PRICE_INVALID"
			return nil, newValidation(fmt.Sprintf("item %d: price must not be negative", i))
		}
		computed = computed.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		gwItems = append(gwItems, dompayment.IntentItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
		})
	}
	if computed.Sub(cmd.Total).Abs().GreaterThan(amountTolerance) {
		outcome, statusText = "error", "AMOUNT_MISMATCH"
		return nil, newAmountMismatch(cmd.Total, computed)
	}

	if err := verifyAddress(ctx, uc.addresses, cmd.UserID, cmd.AddressID); err != nil {
		outcome, statusText = "error", "ADDRESS_INVALID"
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, uc.opts.gatewayTimeout)
	gwStart := time.Now()
	externalOrderID, err = uc.gateway.CreateIntent(gwCtx, gwItems, cmd.Total)
	cancel()
	uc.external(gatewayPeer, "create_intent", gwStart, err)
	if err != nil {
		outcome, statusText = "error", "GATEWAY_FAILED"
		return nil, fmt.Errorf("%w: create intent: %w", ErrGateway, err)
	}

	err = uc.intents.Save(ctx, dompayment.Intent{
		ExternalOrderID: externalOrderID,
		UserID:          cmd.UserID,
		AddressID:       cmd.AddressID,
		Total:           cmd.Total,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		// the gateway intent stays uncaptured and expires on its own
		outcome, statusText = "error", "INTENT_SAVE_FAILED"
		return nil, wrapRepositoryError(err)
	}

	span.AddEvent("checkout.intent_created",
		trace.WithAttributes(attribute.String("checkout.external_order_id", externalOrderID)),
	)
	return &CreateIntentResult{
		ExternalOrderID: externalOrderID,
		AddressID:       cmd.AddressID,
		Total:           cmd.Total,
	}, nil
}

// verifyIntent rejects external order ids that were not issued to userID for addressID.
func verifyIntent(ctx context.Context, intents dompayment.IntentRepository, userID, externalOrderID string, addressID int64) error {
	in, err := intents.Get(ctx, externalOrderID)
	switch {
	case errors.Is(err, dompayment.ErrIntentNotFound):
		return newValidation("unknown payment intent")
	case err != nil:
		return wrapRepositoryError(err)
	case !in.OwnedBy(userID):
		return newValidation("payment intent belongs to another user")
	case in.AddressID != addressID:
		return newValidation("address differs from the payment intent")
	}
	return nil
}

// verifyAddress rejects addresses that are missing or owned by someone else.
func verifyAddress(ctx context.Context, addresses domaddress.Repository, userID string, addressID int64) error {
	addr, err := addresses.Get(ctx, addressID)
	switch {
	case errors.Is(err, domaddress.ErrNotFound):
		return newValidation("address not found")
	case err != nil:
		return wrapRepositoryError(err)
	case !addr.OwnedBy(userID):
		return newValidation("address does not belong to user")
	}
	return nil
}
