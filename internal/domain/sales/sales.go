package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Record is an immutable sales ledger entry for one order line.
type Record struct {
	ID         string
	OrderID    string
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
	CustomerID string
	CreatedAt  time.Time
}

func NewRecord(id, orderID, customerID string, productID int64, quantity int, unitPrice decimal.Decimal) Record {
	return Record{
		ID:         id,
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Total:      unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		CustomerID: customerID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Ledger is append-only.
type Ledger interface {
	Record(ctx context.Context, r Record) error
	QuantitySold(ctx context.Context, productID int64) (int, error)
}
