package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/google/uuid"
)

type orderRepository struct {
	s  *Store
	q  querier
	tx *sql.Tx
}

// atomic runs fn inside the surrounding transaction, or a new one.
func (r *orderRepository) atomic(ctx context.Context, fn func(q querier) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	return r.s.inTx(ctx, func(tx *sql.Tx) error { return fn(tx) })
}

func (r *orderRepository) Insert(ctx context.Context, order *domain.Order) error {
	return r.atomic(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO orders (id, external_order_id, customer_id, address_id, total, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			order.ID, order.ExternalOrderID, order.CustomerID, order.AddressID,
			order.Total, string(order.Status), order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if pqCode(err) == pgUniqueViolation {
				return domain.ErrConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, it := range order.Items {
			_, err := q.ExecContext(ctx,
				`INSERT INTO order_items (order_id, position, product_id, quantity, unit_price, subtotal)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				order.ID, i, it.ProductID, it.Quantity, it.UnitPrice, it.Subtotal,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return r.scanOne(ctx, `WHERE id = $1`, uid)
}

func (r *orderRepository) FindByExternalID(ctx context.Context, externalOrderID string) (*domain.Order, error) {
	return r.scanOne(ctx, `WHERE external_order_id = $1`, externalOrderID)
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query customer orders: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate customer orders: %w", err)
	}
	_ = rows.Close()

	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.scanOne(ctx, `WHERE id = $1`, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	uid, err := uuid.Parse(order.ID)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		uid, string(order.Status), order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepository) scanOne(ctx context.Context, where string, arg any) (*domain.Order, error) {
	var o domain.Order
	var status string
	err := r.q.QueryRowContext(ctx,
		`SELECT id, external_order_id, customer_id, address_id, total, status, created_at, updated_at
		 FROM orders `+where, arg,
	).Scan(&o.ID, &o.ExternalOrderID, &o.CustomerID, &o.AddressID, &o.Total, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.Status = domain.Status(status)

	rows, err := r.q.QueryContext(ctx,
		`SELECT product_id, quantity, unit_price, subtotal
		 FROM order_items WHERE order_id = $1 ORDER BY position`, o.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return &o, nil
}
