package checkout

import (
	"errors"
	"fmt"

	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	dominventory "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

var (
	ErrValidation        = errors.New("checkout: validation failed")
	ErrAmountMismatch    = errors.New("checkout: amount mismatch")
	ErrGateway           = errors.New("checkout: payment gateway failure")
	ErrNotFound          = errors.New("checkout: not found")
	ErrInsufficientStock = dominventory.ErrInsufficientStock
	ErrRepository        = errors.New("checkout: repository failure")
)

// ReconciliationError is returned when payment was captured but the order
// could not be materialized. The capture is recorded under Reference.
type ReconciliationError struct {
	Reference       string
	ExternalOrderID string
	UserID          string
	CapturedAmount  decimal.Decimal
	Err             error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf(
		"checkout: payment %s captured %s but the order was not created; contact support quoting reference %s: %v",
		e.ExternalOrderID, e.CapturedAmount.StringFixed(2), e.Reference, e.Err,
	)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// Retryable reports that the same capture may be submitted again once the
// cause is fixed; the recorded capture is reused instead of charging twice.
func (e *ReconciliationError) Retryable() bool { return true }

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func newAmountMismatch(client, computed decimal.Decimal) error {
	return fmt.Errorf("%w: client total %s, items total %s", ErrAmountMismatch, client.StringFixed(2), computed.StringFixed(2))
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrValidation):
		return err
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domcatalog.ErrNotFound),
		errors.Is(err, dominventory.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
