package models

import "time"

// Operation types
const (
	OpTypeIn       = "in"
	OpTypeOut      = "out"
	OpTypeReturn   = "return"
	OpTypeTransfer = "transfer"
)

// Operation sources
const (
	SourceManual  = "manual"
	SourceOrder   = "order"
	SourcePayment = "payment"
)

// Balance is one row per (item, location) pair. Quantity and Reserved never
// go negative, and Quantity-Reserved never goes negative as an observable
// state. Rows are upserted on first mutation and only written by the stock
// and reservation services.
type Balance struct {
	ItemID     int64     `db:"item_id" json:"item_id"`
	LocationID int64     `db:"location_id" json:"location_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	Reserved   int       `db:"reserved" json:"reserved"`
	Available  int       `db:"available" json:"available"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Operation is one immutable row per stock movement. The tuple
// (Type, SourceType, SourceID, ItemID, Qty) is the idempotency signature for
// order/payment driven movements.
type Operation struct {
	ID             string    `db:"id" json:"id"`
	Type           string    `db:"type" json:"type"`
	ItemID         int64     `db:"item_id" json:"item_id"`
	Qty            int       `db:"qty" json:"qty"`
	LocationFromID *int64    `db:"location_from_id" json:"location_from_id,omitempty"`
	LocationToID   *int64    `db:"location_to_id" json:"location_to_id,omitempty"`
	SourceType     string    `db:"source_type" json:"source_type"`
	SourceID       int64     `db:"source_id" json:"source_id,omitempty"`
	Note           string    `db:"note" json:"note,omitempty"`
	PerformedBy    int64     `db:"performed_by" json:"performed_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// OrderLine is the read-only contract consumed from the order collaborator.
type OrderLine struct {
	ItemID int64 `db:"item_id" json:"item_id"`
	Qty    int   `db:"qty" json:"qty"`
}

// LocationSummary aggregates balances for one location.
type LocationSummary struct {
	LocationID int64 `db:"location_id" json:"location_id"`
	Quantity   int   `db:"quantity" json:"qty"`
	Reserved   int   `db:"reserved" json:"reserved"`
	Available  int   `db:"available" json:"available"`
}

// ItemTurnover is the per-item movement aggregate. The in bucket merges
// "in" and "return" operations, the out bucket is "out" operations;
// transfers move nothing in or out of the business and are excluded.
type ItemTurnover struct {
	ItemID int64 `db:"item_id" json:"item_id"`
	In     int   `db:"qty_in" json:"in"`
	Out    int   `db:"qty_out" json:"out"`
	Net    int   `db:"-" json:"net"`
}

// TurnoverTotals sums movement across all items in the window.
type TurnoverTotals struct {
	In  int `json:"in"`
	Out int `json:"out"`
	Net int `json:"net"`
}
