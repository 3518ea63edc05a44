package memory

import (
	"context"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
)

type reconciliationRepository struct{ s *Store }

func (r *reconciliationRepository) Record(ctx context.Context, item domain.Item) error {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.recon = append(r.s.recon, item)
	return nil
}

func (r *reconciliationRepository) FindOpenCapture(ctx context.Context, externalOrderID string) (*domain.Item, error) {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.recon) - 1; i >= 0; i-- {
		it := r.s.recon[i]
		if it.ExternalOrderID == externalOrderID && it.Kind == domain.KindCaptureWithoutOrder && !it.Resolved() {
			return &it, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *reconciliationRepository) Resolve(ctx context.Context, reference, orderID string) error {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.recon {
		if r.s.recon[i].Reference == reference {
			now := time.Now().UTC()
			r.s.recon[i].OrderID = orderID
			r.s.recon[i].ResolvedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *reconciliationRepository) List(ctx context.Context) ([]domain.Item, error) {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.Item(nil), r.s.recon...), nil
}
