package store

import (
	"context"
	"database/sql"

	"stock-service/internal/models"
)

// OrderItems reads the order collaborator's line items. The ledger never
// writes to order tables.
func (s *Store) OrderItems(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	lines := []models.OrderLine{}
	err := s.db.SelectContext(ctx, &lines,
		"SELECT item_id, qty FROM order_items WHERE order_id = $1", orderID)
	return lines, err
}

// OrderLocation returns the order-level location hint, 0 when the order has
// none (or does not exist); the caller falls back to the configured default.
func (s *Store) OrderLocation(ctx context.Context, orderID int64) (int64, error) {
	var locationID int64
	err := s.db.GetContext(ctx, &locationID,
		"SELECT COALESCE(location_id, 0) FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return locationID, nil
}
