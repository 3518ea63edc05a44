package cart

import (
	"context"
	"errors"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")

	// ErrNotCached is returned by cart caches when they hold no copy.
	ErrNotCached = errors.New("cart: not cached")
)

type Item struct {
	ProductID int64
	Quantity  int
}

// Cart is the single active cart of a user.
type Cart struct {
	UserID string
	Items  []Item
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Add merges quantity into an existing line or appends a new one.
func (c *Cart) Add(productID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return nil
		}
	}
	c.Items = append(c.Items, Item{ProductID: productID, Quantity: quantity})
	return nil
}

// Store holds carts. Get returns an empty cart for users without one.
type Store interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) error
	// Clear empties the cart; clearing an empty cart is a no-op.
	Clear(ctx context.Context, userID string) error
}
