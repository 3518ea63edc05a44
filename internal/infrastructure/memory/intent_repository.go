package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type intentRepository struct{ s *Store }

func (r *intentRepository) Save(ctx context.Context, intent domain.Intent) error {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.intents[intent.ExternalOrderID]; ok {
		return domain.ErrIntentExists
	}
	r.s.intents[intent.ExternalOrderID] = intent
	return nil
}

func (r *intentRepository) Get(ctx context.Context, externalOrderID string) (*domain.Intent, error) {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in, ok := r.s.intents[externalOrderID]
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	return &in, nil
}
