package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog: product not found")

type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// Reader looks up current product data.
type Reader interface {
	Get(ctx context.Context, id int64) (*Product, error)
}
