package models

import "time"

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeOrderItemsChanged = "ORDER_ITEMS_CHANGED"
	EventTypeOrderCompleted    = "ORDER_COMPLETED"
	EventTypeOrderCancelled    = "ORDER_CANCELLED"
	EventTypePaymentRefunded   = "PAYMENT_REFUNDED"
	EventTypeStockOperation    = "STOCK_OPERATION"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent triggers a reservation for the order's line items.
// Lines are not carried in the payload; the service reads them through the
// order collaborator so the reservation always sees the committed order.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    int64 `json:"order_id"`
	LocationID int64 `json:"location_id,omitempty"`
	UserID     int64 `json:"user_id"`
}

// OrderItemsChangedEvent triggers reservation reconciliation. Previous
// lines must ride in the event because the collaborator only exposes the
// current state of the order.
type OrderItemsChangedEvent struct {
	BaseEvent
	OrderID    int64       `json:"order_id"`
	LocationID int64       `json:"location_id,omitempty"`
	UserID     int64       `json:"user_id"`
	PrevItems  []OrderLine `json:"prev_items"`
	Items      []OrderLine `json:"items"`
}

// OrderCompletedEvent triggers physical issue of the order's items.
type OrderCompletedEvent struct {
	BaseEvent
	OrderID    int64 `json:"order_id"`
	LocationID int64 `json:"location_id,omitempty"`
	UserID     int64 `json:"user_id"`
}

// OrderCancelledEvent triggers release of the order's reservation.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	LocationID int64  `json:"location_id,omitempty"`
	UserID     int64  `json:"user_id"`
	Reason     string `json:"reason,omitempty"`
}

// PaymentRefundedEvent triggers restock of the refunded order's items.
type PaymentRefundedEvent struct {
	BaseEvent
	OrderID    int64 `json:"order_id"`
	PaymentID  int64 `json:"payment_id"`
	LocationID int64 `json:"location_id,omitempty"`
	UserID     int64 `json:"user_id"`
}

// StockOperationEvent is published after a movement lands in the ledger,
// for downstream consumers (reporting, notifications). Best effort only.
type StockOperationEvent struct {
	BaseEvent
	OperationID    string `json:"operation_id"`
	Type           string `json:"type"`
	ItemID         int64  `json:"item_id"`
	Qty            int    `json:"qty"`
	LocationFromID *int64 `json:"location_from_id,omitempty"`
	LocationToID   *int64 `json:"location_to_id,omitempty"`
	SourceType     string `json:"source_type"`
	SourceID       int64  `json:"source_id,omitempty"`
}
