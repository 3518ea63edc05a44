package order

import "context"

type Repository interface {
	// Insert stores a new order. It returns ErrConflict when the external order id is taken.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindByExternalID(ctx context.Context, externalOrderID string) (*Order, error)
	// ListByCustomer returns the customer's orders, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	Update(ctx context.Context, order *Order) error
}
