package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrIntentExists = errors.New("payment: intent already registered")

// Intent remembers who asked the gateway for an external order id and where
// the goods go. Only that user may capture it.
type Intent struct {
	ExternalOrderID string
	UserID          string
	AddressID       int64
	Total           decimal.Decimal
	CreatedAt       time.Time
}

func (i *Intent) OwnedBy(userID string) bool { return i.UserID == userID }

// IntentRepository stores intents keyed by external order id.
type IntentRepository interface {
	// Save returns ErrIntentExists when the external order id is already registered.
	Save(ctx context.Context, intent Intent) error
	// Get returns ErrIntentNotFound for unknown ids.
	Get(ctx context.Context, externalOrderID string) (*Intent, error)
}
