package inventory

import "context"

// Ledger tracks stock per product.
type Ledger interface {
	// DecrementIfAvailable atomically removes quantity units when at least that
	// many remain and returns ErrInsufficientStock otherwise.
	DecrementIfAvailable(ctx context.Context, productID int64, quantity int) error
	Stock(ctx context.Context, productID int64) (int, error)
}
