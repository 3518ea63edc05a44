package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("reconciliation: item not found")

type Kind string

const (
	// KindCaptureWithoutOrder marks money that was captured but never turned into an order.
	KindCaptureWithoutOrder Kind = "capture_without_order"
	// KindAmountMismatch marks an order whose captured total differs from its line subtotals.
	KindAmountMismatch Kind = "amount_mismatch"
)

// Item is a checkout outcome an operator has to look at.
type Item struct {
	Reference       string
	Kind            Kind
	ExternalOrderID string
	UserID          string
	CapturedAmount  decimal.Decimal
	Reason          string
	OccurredAt      time.Time
	// OrderID is set once an order exists for the capture.
	OrderID    string
	ResolvedAt *time.Time
}

func (i Item) Resolved() bool { return i.ResolvedAt != nil }

type Repository interface {
	Record(ctx context.Context, item Item) error
	// FindOpenCapture returns the newest unresolved capture_without_order item for externalOrderID.
	FindOpenCapture(ctx context.Context, externalOrderID string) (*Item, error)
	// Resolve links the item to the order that eventually materialized.
	Resolve(ctx context.Context, reference, orderID string) error
	List(ctx context.Context) ([]Item, error)
}

// ReconciliationRequiredEvent announces a new reconciliation item.
type ReconciliationRequiredEvent struct {
	Item Item
}

func (ReconciliationRequiredEvent) EventName() string { return "checkout.reconciliation_required" }

// AggregateKey is the external order id: the item may have no order yet.
func (e ReconciliationRequiredEvent) AggregateKey() string { return e.Item.ExternalOrderID }

func (e ReconciliationRequiredEvent) EventTime() time.Time { return e.Item.OccurredAt }
