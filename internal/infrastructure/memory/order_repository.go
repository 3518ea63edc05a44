package memory

import (
	"context"
	"fmt"
	"sort"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

type orderRepository struct {
	s *Store
	t *txn
}

func (r *orderRepository) Insert(ctx context.Context, order *domain.Order) (err error) {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.s.locked(r.t, func() {
		if _, exists := r.s.orders[order.ID]; exists {
			err = domain.ErrConflict
			return
		}
		if _, exists := r.s.byExternal[order.ExternalOrderID]; exists {
			err = domain.ErrConflict
			return
		}
		r.s.orders[order.ID] = order.Clone()
		r.s.byExternal[order.ExternalOrderID] = order.ID
		r.t.onRollback(func() {
			delete(r.s.orders, order.ID)
			delete(r.s.byExternal, order.ExternalOrderID)
		})
	})
	return err
}

func (r *orderRepository) Get(ctx context.Context, id string) (order *domain.Order, err error) {
	_ = ctx
	r.s.locked(r.t, func() {
		o, ok := r.s.orders[id]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		order = o.Clone()
	})
	return order, err
}

func (r *orderRepository) FindByExternalID(ctx context.Context, externalOrderID string) (order *domain.Order, err error) {
	_ = ctx
	r.s.locked(r.t, func() {
		id, ok := r.s.byExternal[externalOrderID]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		order = r.s.orders[id].Clone()
	})
	return order, err
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string) (orders []*domain.Order, err error) {
	_ = ctx
	r.s.locked(r.t, func() {
		for _, o := range r.s.orders {
			if o.CustomerID == customerID {
				orders = append(orders, o.Clone())
			}
		}
	})
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) (err error) {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.s.locked(r.t, func() {
		prev, exists := r.s.orders[order.ID]
		if !exists {
			err = domain.ErrNotFound
			return
		}
		r.s.orders[order.ID] = order.Clone()
		r.t.onRollback(func() { r.s.orders[order.ID] = prev })
	})
	return err
}
