package order

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: external order id already used")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount          = errors.New("order: amount must be greater than zero")
	ErrNoItems                = errors.New("order: at least one item is required")
	ErrInvalidStatus          = errors.New("order: unknown status")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

// Fulfillment statuses. Values are the ones persisted and exposed to clients.
const (
	StatusProcessing Status = "EN_PROCESO"
	StatusInTransit  Status = "EN_CAMINO"
	StatusDelivered  Status = "ENTREGADO"
)

// ParseStatus accepts a status name regardless of case and surrounding spaces.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusProcessing, StatusInTransit, StatusDelivered:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}

type Item struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

func NewItem(productID int64, quantity int, unitPrice decimal.Decimal) (Item, error) {
	if quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return Item{}, ErrInvalidAmount
	}
	return Item{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

type Order struct {
	ID              string
	ExternalOrderID string
	CustomerID      string
	AddressID       int64
	// Total is the amount the payment gateway captured.
	Total     decimal.Decimal
	Status    Status
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, externalOrderID, customerID string, addressID int64, total decimal.Decimal, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if !total.IsPositive() {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		ExternalOrderID: externalOrderID,
		CustomerID:      customerID,
		AddressID:       addressID,
		Total:           total,
		Status:          StatusProcessing,
		Items:           append([]Item(nil), items...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ItemsSubtotal sums the line subtotals.
func (o *Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal)
	}
	return sum
}

// OwnedBy reports whether the order belongs to customerID.
func (o *Order) OwnedBy(customerID string) bool {
	return o.CustomerID == customerID
}

// Advance moves the order to the target fulfillment status. It reports false
// when the order is already there.
func (o *Order) Advance(to Status) (bool, error) {
	if to == o.Status {
		return false, nil
	}
	next, err := stateFor(o.Status).advance(to)
	if err != nil {
		return false, err
	}
	o.Status = next.Status()
	o.touch()
	return true, nil
}

// Clone returns a deep copy safe to hand out of a repository.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
