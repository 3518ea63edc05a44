package postgres

import (
	"context"
	"fmt"

	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
)

type cartStore struct {
	q querier
	// lock takes the cart row with FOR UPDATE so concurrent checkouts of one user serialize.
	lock bool
}

func (c *cartStore) Get(ctx context.Context, userID string) (*domcart.Cart, error) {
	if c.lock {
		var locked string
		err := c.q.QueryRowContext(ctx, `SELECT user_id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&locked)
		if err != nil && !isNoRows(err) {
			return nil, fmt.Errorf("lock cart: %w", err)
		}
	}

	rows, err := c.q.QueryContext(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY product_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	cart := &domcart.Cart{UserID: userID}
	for rows.Next() {
		var it domcart.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	return cart, nil
}

func (c *cartStore) AddItem(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return domcart.ErrInvalidQuantity
	}
	_, err := c.q.ExecContext(ctx,
		`WITH cart AS (
			INSERT INTO carts (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
			RETURNING user_id
		)
		INSERT INTO cart_items (user_id, product_id, quantity)
		SELECT user_id, $2, $3 FROM cart
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		userID, productID, quantity,
	)
	if err != nil {
		if pqCode(err) == pgForeignKeyViolation {
			return domcatalog.ErrNotFound
		}
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// Clear removes the lines but keeps the cart row, which is what checkouts lock on.
func (c *cartStore) Clear(ctx context.Context, userID string) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
