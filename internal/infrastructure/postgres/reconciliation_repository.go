package postgres

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
)

type reconciliationRepository struct{ q querier }

const reconciliationColumns = `reference, kind, external_order_id, user_id, order_id, captured_amount, reason, occurred_at, resolved_at`

func (r *reconciliationRepository) Record(ctx context.Context, item domain.Item) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO reconciliation_items (`+reconciliationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.Reference, string(item.Kind), item.ExternalOrderID, item.UserID, item.OrderID,
		item.CapturedAmount, item.Reason, item.OccurredAt, item.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation item: %w", err)
	}
	return nil
}

func (r *reconciliationRepository) FindOpenCapture(ctx context.Context, externalOrderID string) (*domain.Item, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_items
		 WHERE external_order_id = $1 AND kind = $2 AND resolved_at IS NULL
		 ORDER BY occurred_at DESC LIMIT 1`,
		externalOrderID, string(domain.KindCaptureWithoutOrder),
	)
	item, err := scanItem(row.Scan)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query reconciliation item: %w", err)
	}
	return item, nil
}

func (r *reconciliationRepository) Resolve(ctx context.Context, reference, orderID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE reconciliation_items SET order_id = $2, resolved_at = NOW() WHERE reference::text = $1`,
		reference, orderID,
	)
	if err != nil {
		return fmt.Errorf("resolve reconciliation item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *reconciliationRepository) List(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_items ORDER BY occurred_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation items: %w", err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reconciliation item: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reconciliation items: %w", err)
	}
	return out, nil
}

func scanItem(scan func(dest ...any) error) (*domain.Item, error) {
	var (
		item     domain.Item
		kind     string
		resolved sql.NullTime
	)
	err := scan(&item.Reference, &kind, &item.ExternalOrderID, &item.UserID, &item.OrderID,
		&item.CapturedAmount, &item.Reason, &item.OccurredAt, &resolved)
	if err != nil {
		return nil, err
	}
	item.Kind = domain.Kind(kind)
	if resolved.Valid {
		t := resolved.Time
		item.ResolvedAt = &t
	}
	return &item, nil
}
