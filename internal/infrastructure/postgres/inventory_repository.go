package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	dominventory "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

type inventoryLedger struct{ q querier }

func (l *inventoryLedger) DecrementIfAvailable(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return dominventory.ErrInvalidQuantity
	}
	res, err := l.q.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1`,
		quantity, productID,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := l.Stock(ctx, productID); err != nil {
		return err
	}
	return dominventory.ErrInsufficientStock
}

func (l *inventoryLedger) Stock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := l.q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if isNoRows(err) {
		return 0, dominventory.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return stock, nil
}

type catalogReader struct{ q querier }

func (c *catalogReader) Get(ctx context.Context, id int64) (*domcatalog.Product, error) {
	var p domcatalog.Product
	err := c.q.QueryRowContext(ctx,
		`SELECT id, name, price, stock FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if isNoRows(err) {
		return nil, domcatalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

// InsertProduct adds a catalog product and returns its id.
func (s *Store) InsertProduct(ctx context.Context, p domcatalog.Product) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO products (name, price, stock) VALUES ($1, $2, $3) RETURNING id`,
		p.Name, p.Price, p.Stock,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
