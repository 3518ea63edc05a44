package memory

import (
	"context"

	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

type inventoryLedger struct {
	s *Store
	t *txn
}

func (l *inventoryLedger) DecrementIfAvailable(ctx context.Context, productID int64, quantity int) (err error) {
	_ = ctx
	l.s.locked(l.t, func() {
		item, ok := l.s.stock[productID]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		if err = item.Take(quantity); err != nil {
			return
		}
		l.t.onRollback(func() { item.PutBack(quantity) })
	})
	return err
}

func (l *inventoryLedger) Stock(ctx context.Context, productID int64) (qty int, err error) {
	_ = ctx
	l.s.locked(l.t, func() {
		item, ok := l.s.stock[productID]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		qty = item.OnHand
	})
	return qty, err
}

type catalogReader struct {
	s *Store
	t *txn
}

func (c *catalogReader) Get(ctx context.Context, id int64) (product *domcatalog.Product, err error) {
	_ = ctx
	c.s.locked(c.t, func() {
		p, ok := c.s.products[id]
		if !ok {
			err = domcatalog.ErrNotFound
			return
		}
		if item, ok := c.s.stock[id]; ok {
			p.Stock = item.OnHand
		}
		product = &p
	})
	return product, err
}
