package postgres

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type intentRepository struct{ q querier }

func (r *intentRepository) Save(ctx context.Context, intent domain.Intent) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO payment_intents (external_order_id, user_id, address_id, total, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		intent.ExternalOrderID, intent.UserID, intent.AddressID, intent.Total, intent.CreatedAt,
	)
	if pqCode(err) == pgUniqueViolation {
		return domain.ErrIntentExists
	}
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

func (r *intentRepository) Get(ctx context.Context, externalOrderID string) (*domain.Intent, error) {
	var in domain.Intent
	err := r.q.QueryRowContext(ctx,
		`SELECT external_order_id, user_id, address_id, total, created_at
		 FROM payment_intents WHERE external_order_id = $1`, externalOrderID,
	).Scan(&in.ExternalOrderID, &in.UserID, &in.AddressID, &in.Total, &in.CreatedAt)
	if isNoRows(err) {
		return nil, domain.ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment intent: %w", err)
	}
	return &in, nil
}
