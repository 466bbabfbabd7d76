package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"stock-service/internal/broker"
	"stock-service/internal/models"
	"stock-service/internal/redisclient"
	"stock-service/internal/service"
	"stock-service/internal/util"

	"go.uber.org/zap"
)

// StockWorker consumes order lifecycle events and drives the ledger:
// create reserves, edit reconciles, complete issues, cancel releases,
// refund returns. It is the retry collaborator the issue/return contract is
// shaped for: a 409-class outcome is final (a human decides), anything
// transient leaves the message uncommitted for redelivery.
type StockWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	redis        *redisclient.Client
	dedupeTTL    time.Duration
	logger       *zap.Logger
}

// NewStockWorker wires the order event routes to the stock and reservation
// services.
func NewStockWorker(
	consumer *broker.Consumer,
	stocks *service.StockService,
	reservations *service.ReservationService,
	redis *redisclient.Client,
	dedupeTTL time.Duration,
) *StockWorker {
	w := &StockWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		redis:        redis,
		dedupeTTL:    dedupeTTL,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderCreated(func(ctx context.Context, event *models.OrderCreatedEvent) error {
		return w.handle(ctx, event.BaseEvent, event.OrderID, func() error {
			_, err := reservations.ReserveForOrder(ctx, event.OrderID, event.LocationID, event.UserID)
			return err
		})
	})

	w.eventHandler.OnOrderItemsChanged(func(ctx context.Context, event *models.OrderItemsChangedEvent) error {
		return w.handle(ctx, event.BaseEvent, event.OrderID, func() error {
			_, err := reservations.ApplyDiffForOrderEdit(ctx, event.OrderID, event.PrevItems, event.Items, event.LocationID, event.UserID)
			return err
		})
	})

	w.eventHandler.OnOrderCompleted(func(ctx context.Context, event *models.OrderCompletedEvent) error {
		return w.handle(ctx, event.BaseEvent, event.OrderID, func() error {
			result, err := stocks.IssueFromOrder(ctx, event.OrderID, event.UserID, event.LocationID)
			if err != nil {
				return err
			}
			return batchError(result)
		})
	})

	w.eventHandler.OnOrderCancelled(func(ctx context.Context, event *models.OrderCancelledEvent) error {
		return w.handle(ctx, event.BaseEvent, event.OrderID, func() error {
			_, err := reservations.ReleaseForOrder(ctx, event.OrderID, event.LocationID, event.UserID)
			return err
		})
	})

	w.eventHandler.OnPaymentRefunded(func(ctx context.Context, event *models.PaymentRefundedEvent) error {
		return w.handle(ctx, event.BaseEvent, event.OrderID, func() error {
			result, err := stocks.ReturnFromRefund(ctx, event.OrderID, event.PaymentID, event.UserID, event.LocationID)
			if err != nil {
				return err
			}
			return batchError(result)
		})
	})

	return w
}

// Start starts the worker
func (w *StockWorker) Start(ctx context.Context) error {
	log.Println("Starting stock worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockWorker) Stop() error {
	log.Println("Stopping stock worker...")
	return w.consumer.Close()
}

// handle runs one event through dedupe, the service call and the consume
// decision. Returning nil commits the message; returning an error leaves it
// for redelivery.
func (w *StockWorker) handle(ctx context.Context, base models.BaseEvent, orderID int64, fn func() error) error {
	if w.alreadySeen(ctx, base.EventID) {
		util.EventsConsumedTotal.WithLabelValues(base.EventType, "duplicate").Inc()
		return nil
	}

	err := fn()
	if err != nil {
		var svcErr *models.ServiceError
		if errors.As(err, &svcErr) && svcErr.StatusCode == 409 {
			// Final: retrying without a human decision cannot succeed.
			util.EventsConsumedTotal.WithLabelValues(base.EventType, "rejected").Inc()
			w.logger.Warn("Order event rejected by ledger invariant",
				zap.String("event_type", base.EventType),
				zap.Int64("order_id", orderID),
				zap.String("code", svcErr.Code))
			w.markSeen(ctx, base.EventID)
			return nil
		}
		util.EventsConsumedTotal.WithLabelValues(base.EventType, "retry").Inc()
		return err
	}

	util.EventsConsumedTotal.WithLabelValues(base.EventType, "ok").Inc()
	w.markSeen(ctx, base.EventID)
	return nil
}

// alreadySeen is the redis fast path for redeliveries. On redis trouble the
// event proceeds: the operation log's idempotency signature is the
// authoritative check, so a duplicate pass-through stays a no-op.
func (w *StockWorker) alreadySeen(ctx context.Context, eventID string) bool {
	if w.redis == nil || eventID == "" {
		return false
	}
	seen, err := w.redis.EventSeen(ctx, eventID)
	if err != nil {
		w.logger.Warn("Event dedupe check failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return seen
}

// markSeen records the event only after its effects have committed.
func (w *StockWorker) markSeen(ctx context.Context, eventID string) {
	if w.redis == nil || eventID == "" {
		return
	}
	if err := w.redis.MarkEventSeen(ctx, eventID, w.dedupeTTL); err != nil {
		w.logger.Warn("Failed to mark event seen", zap.String("event_id", eventID), zap.Error(err))
	}
}

// batchError converts a value-based issue/return rejection into the typed
// 409 error so handle applies one consume policy to both contract styles.
func batchError(result *service.BatchResult) error {
	if result.OK {
		return nil
	}
	return &models.ServiceError{Code: result.Code, StatusCode: result.StatusCode}
}
