package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"stock-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes ledger events keyed by item so per-item ordering
// survives partitioning.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishStockOperation publishes a StockOperation event after a movement
// has committed.
func (ep *EventPublisher) PublishStockOperation(ctx context.Context, event *models.StockOperationEvent) error {
	key := fmt.Sprintf("item-%d", event.ItemID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes order lifecycle events to registered callbacks.
type EventHandler struct {
	onOrderCreated      func(context.Context, *models.OrderCreatedEvent) error
	onOrderItemsChanged func(context.Context, *models.OrderItemsChangedEvent) error
	onOrderCompleted    func(context.Context, *models.OrderCompletedEvent) error
	onOrderCancelled    func(context.Context, *models.OrderCancelledEvent) error
	onPaymentRefunded   func(context.Context, *models.PaymentRefundedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

func (eh *EventHandler) OnOrderItemsChanged(handler func(context.Context, *models.OrderItemsChangedEvent) error) {
	eh.onOrderItemsChanged = handler
}

func (eh *EventHandler) OnOrderCompleted(handler func(context.Context, *models.OrderCompletedEvent) error) {
	eh.onOrderCompleted = handler
}

func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

func (eh *EventHandler) OnPaymentRefunded(handler func(context.Context, *models.PaymentRefundedEvent) error) {
	eh.onPaymentRefunded = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeOrderItemsChanged:
		if eh.onOrderItemsChanged != nil {
			var event models.OrderItemsChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderItemsChanged event: %w", err)
			}
			return eh.onOrderItemsChanged(ctx, &event)
		}

	case models.EventTypeOrderCompleted:
		if eh.onOrderCompleted != nil {
			var event models.OrderCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCompleted event: %w", err)
			}
			return eh.onOrderCompleted(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}

	case models.EventTypePaymentRefunded:
		if eh.onPaymentRefunded != nil {
			var event models.PaymentRefundedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentRefunded event: %w", err)
			}
			return eh.onPaymentRefunded(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
