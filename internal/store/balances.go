package store

import (
	"context"
	"database/sql"
	"fmt"

	"stock-service/internal/models"
	"stock-service/internal/port"
)

const balanceColumns = "item_id, location_id, quantity, reserved, quantity - reserved AS available, updated_at"

// BalanceForUpdate reads a balance row and locks it for the rest of the
// transaction. Returns nil for a pair that has no row yet.
func (t *Tx) BalanceForUpdate(ctx context.Context, itemID, locationID int64) (*models.Balance, error) {
	var bal models.Balance
	err := t.tx.GetContext(ctx, &bal,
		"SELECT "+balanceColumns+" FROM stock_balances WHERE item_id = $1 AND location_id = $2 FOR UPDATE",
		itemID, locationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	return &bal, nil
}

// ApplyBalanceDelta upserts the (item, location) row, incrementing quantity
// and reserved by the deltas. Invariant checks happen in the service under
// the row lock, so a negative result never reaches this statement.
func (t *Tx) ApplyBalanceDelta(ctx context.Context, itemID, locationID int64, qtyDelta, reservedDelta int) (*models.Balance, error) {
	query := `
		INSERT INTO stock_balances (item_id, location_id, quantity, reserved, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (item_id, location_id) DO UPDATE
		SET quantity = stock_balances.quantity + EXCLUDED.quantity,
		    reserved = stock_balances.reserved + EXCLUDED.reserved,
		    updated_at = NOW()
		RETURNING ` + balanceColumns

	var bal models.Balance
	if err := t.tx.GetContext(ctx, &bal, query, itemID, locationID, qtyDelta, reservedDelta); err != nil {
		return nil, fmt.Errorf("failed to apply balance delta: %w", err)
	}
	return &bal, nil
}

// ListBalances returns balances matching the filter, highest quantity first.
func (s *Store) ListBalances(ctx context.Context, f port.BalanceFilter) ([]models.Balance, error) {
	query := "SELECT " + balanceColumns + " FROM stock_balances WHERE 1=1"
	args := []interface{}{}

	if f.ItemID != 0 {
		args = append(args, f.ItemID)
		query += fmt.Sprintf(" AND item_id = $%d", len(args))
	}
	if f.LocationID != 0 {
		args = append(args, f.LocationID)
		query += fmt.Sprintf(" AND location_id = $%d", len(args))
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY quantity DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	balances := []models.Balance{}
	if err := s.db.SelectContext(ctx, &balances, query, args...); err != nil {
		return nil, err
	}
	return balances, nil
}
