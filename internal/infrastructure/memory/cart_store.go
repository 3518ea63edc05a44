package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
)

type cartStore struct {
	s *Store
	t *txn
}

func (c *cartStore) Get(ctx context.Context, userID string) (cart *domain.Cart, err error) {
	_ = ctx
	c.s.locked(c.t, func() {
		cart = cloneCart(c.s.carts[userID])
		if cart == nil {
			cart = &domain.Cart{UserID: userID}
		}
	})
	return cart, nil
}

func (c *cartStore) AddItem(ctx context.Context, userID string, productID int64, quantity int) (err error) {
	_ = ctx
	c.s.locked(c.t, func() {
		prev := c.s.carts[userID]
		next := cloneCart(prev)
		if next == nil {
			next = &domain.Cart{UserID: userID}
		}
		if err = next.Add(productID, quantity); err != nil {
			return
		}
		c.s.carts[userID] = next
		c.t.onRollback(func() { c.restore(userID, prev) })
	})
	return err
}

func (c *cartStore) Clear(ctx context.Context, userID string) error {
	_ = ctx
	c.s.locked(c.t, func() {
		prev, ok := c.s.carts[userID]
		if !ok {
			return
		}
		delete(c.s.carts, userID)
		c.t.onRollback(func() { c.restore(userID, prev) })
	})
	return nil
}

func (c *cartStore) restore(userID string, prev *domain.Cart) {
	if prev == nil {
		delete(c.s.carts, userID)
		return
	}
	c.s.carts[userID] = prev
}

func cloneCart(c *domain.Cart) *domain.Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]domain.Item(nil), c.Items...)
	return &cp
}
