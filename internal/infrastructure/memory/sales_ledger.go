package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
)

type salesLedger struct {
	s *Store
	t *txn
}

func (l *salesLedger) Record(ctx context.Context, r domain.Record) error {
	_ = ctx
	l.s.locked(l.t, func() {
		n := len(l.s.sales)
		l.s.sales = append(l.s.sales, r)
		l.t.onRollback(func() { l.s.sales = l.s.sales[:n] })
	})
	return nil
}

func (l *salesLedger) QuantitySold(ctx context.Context, productID int64) (total int, err error) {
	_ = ctx
	l.s.locked(l.t, func() {
		for _, r := range l.s.sales {
			if r.ProductID == productID {
				total += r.Quantity
			}
		}
	})
	return total, nil
}

// Records returns a copy of the ledger in insertion order.
func (s *Store) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Record(nil), s.sales...)
}
