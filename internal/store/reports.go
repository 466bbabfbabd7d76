package store

import (
	"context"
	"fmt"
	"time"

	"stock-service/internal/models"
)

// SummaryByLocation aggregates balances per location, biggest stock first.
func (s *Store) SummaryByLocation(ctx context.Context, limit int) ([]models.LocationSummary, error) {
	query := `
		SELECT location_id,
		       SUM(quantity) AS quantity,
		       SUM(reserved) AS reserved,
		       SUM(quantity - reserved) AS available
		FROM stock_balances
		GROUP BY location_id
		ORDER BY SUM(quantity) DESC
		LIMIT $1`

	groups := []models.LocationSummary{}
	if err := s.db.SelectContext(ctx, &groups, query, limit); err != nil {
		return nil, err
	}
	return groups, nil
}

// TurnoverByItem aggregates ledger movement per item inside the optional
// window, most active items first. Transfers are excluded: they move stock
// between locations without changing the business total.
func (s *Store) TurnoverByItem(ctx context.Context, from, to *time.Time) ([]models.ItemTurnover, error) {
	query := `
		SELECT item_id,
		       SUM(CASE WHEN type IN ('in', 'return') THEN qty ELSE 0 END) AS qty_in,
		       SUM(CASE WHEN type = 'out' THEN qty ELSE 0 END) AS qty_out
		FROM stock_operations
		WHERE type <> 'transfer'`
	args := []interface{}{}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	query += `
		GROUP BY item_id
		ORDER BY SUM(qty) DESC`

	rows := []models.ItemTurnover{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
