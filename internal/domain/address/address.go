package address

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("address: not found")

type Address struct {
	ID         int64
	UserID     string
	Street     string
	Number     string
	City       string
	State      string
	Country    string
	PostalCode string
}

// OwnedBy reports whether the address belongs to userID.
func (a *Address) OwnedBy(userID string) bool {
	return a != nil && a.UserID == userID
}

type Repository interface {
	Get(ctx context.Context, id int64) (*Address, error)
}
