package postgres

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
)

type addressRepository struct{ q querier }

func (r *addressRepository) Get(ctx context.Context, id int64) (*domain.Address, error) {
	var a domain.Address
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, street, number, city, state, country, postal_code FROM addresses WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.Street, &a.Number, &a.City, &a.State, &a.Country, &a.PostalCode)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query address: %w", err)
	}
	return &a, nil
}

// InsertAddress stores an address and returns its id.
func (s *Store) InsertAddress(ctx context.Context, a domain.Address) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, street, number, city, state, country, postal_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		a.UserID, a.Street, a.Number, a.City, a.State, a.Country, a.PostalCode,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert address: %w", err)
	}
	return id, nil
}
