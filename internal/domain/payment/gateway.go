package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrIntentNotFound  = errors.New("payment: intent not found")
	ErrAlreadyCaptured = errors.New("payment: intent already captured")
	ErrDeclined        = errors.New("payment: declined")
)

// IntentItem is a line shown to the payer when the intent is created.
type IntentItem struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Gateway is the external payment provider. Only CaptureIntent moves money and
// the amount it returns is the source of truth for what was charged.
type Gateway interface {
	CreateIntent(ctx context.Context, items []IntentItem, total decimal.Decimal) (externalOrderID string, err error)
	CaptureIntent(ctx context.Context, externalOrderID string) (captured decimal.Decimal, err error)
}
