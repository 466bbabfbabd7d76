package store

import (
	"context"
	"fmt"

	"stock-service/internal/models"
)

// OperationExists checks whether a movement with this idempotency signature
// is already in the ledger. Running it inside the same transaction that
// locks the balance row closes the race between concurrent retries for the
// same source event.
func (t *Tx) OperationExists(ctx context.Context, opType, sourceType string, sourceID, itemID int64, qty int) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists,
		`SELECT EXISTS(
			SELECT 1 FROM stock_operations
			WHERE type = $1 AND source_type = $2 AND source_id = $3 AND item_id = $4 AND qty = $5
		)`,
		opType, sourceType, sourceID, itemID, qty)
	if err != nil {
		return false, fmt.Errorf("failed to check operation signature: %w", err)
	}
	return exists, nil
}

// InsertOperation appends one immutable row to the operation log. Rows are
// never updated or deleted after this.
func (t *Tx) InsertOperation(ctx context.Context, op *models.Operation) error {
	query := `
		INSERT INTO stock_operations
			(id, type, item_id, qty, location_from_id, location_to_id, source_type, source_id, note, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := t.tx.ExecContext(ctx, query,
		op.ID, op.Type, op.ItemID, op.Qty,
		op.LocationFromID, op.LocationToID,
		op.SourceType, op.SourceID, op.Note, op.PerformedBy, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}
