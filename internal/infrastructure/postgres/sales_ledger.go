package postgres

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
)

type salesLedger struct{ q querier }

func (l *salesLedger) Record(ctx context.Context, r domain.Record) error {
	_, err := l.q.ExecContext(ctx,
		`INSERT INTO sales (id, order_id, product_id, quantity, unit_price, total, customer_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.OrderID, r.ProductID, r.Quantity, r.UnitPrice, r.Total, r.CustomerID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (l *salesLedger) QuantitySold(ctx context.Context, productID int64) (int, error) {
	var total int
	err := l.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM sales WHERE product_id = $1`, productID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum sales: %w", err)
	}
	return total, nil
}
