package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
)

type addressRepository struct{ s *Store }

func (r *addressRepository) Get(ctx context.Context, id int64) (*domain.Address, error) {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.addresses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}
