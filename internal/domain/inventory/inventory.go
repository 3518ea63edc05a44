package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Item is the on-hand stock of one product.
type Item struct {
	ProductID int64
	OnHand    int
	UpdatedAt time.Time
}

func NewItem(productID int64, onHand int) (*Item, error) {
	if onHand < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Item{ProductID: productID, OnHand: onHand, UpdatedAt: time.Now().UTC()}, nil
}

// Take removes n units. Short stock leaves the item as it was.
func (i *Item) Take(n int) error {
	switch {
	case n <= 0:
		return ErrInvalidQuantity
	case n > i.OnHand:
		return ErrInsufficientStock
	}
	i.OnHand -= n
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// PutBack undoes a Take of n units.
func (i *Item) PutBack(n int) {
	i.OnHand += n
	i.UpdatedAt = time.Now().UTC()
}

// IsLow reports whether available units are at or under threshold.
func IsLow(available, threshold int) bool {
	return available <= threshold
}
