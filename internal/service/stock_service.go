package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/port"
	"stock-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes ledger events to downstream consumers. Publishing
// is best effort and never part of the storage transaction.
type EventPublisher interface {
	PublishStockOperation(ctx context.Context, event *models.StockOperationEvent) error
}

// StockService is the single point of truth for physical quantity changes
// and their audit trail.
type StockService struct {
	store             port.Store
	events            EventPublisher
	logger            *zap.Logger
	defaultLocationID int64
}

// NewStockService creates a new stock service. events may be nil when no
// broker is wired (tests, dev runs).
func NewStockService(store port.Store, events EventPublisher, defaultLocationID int64) *StockService {
	return &StockService{
		store:             store,
		events:            events,
		logger:            util.GetLogger(),
		defaultLocationID: defaultLocationID,
	}
}

// AdjustRequest is a manual correction. Qty may be positive (in) or
// negative (out); the magnitude is the moved amount.
type AdjustRequest struct {
	ItemID      int64
	LocationID  int64
	Qty         int
	Note        string
	PerformedBy int64
}

// AdjustResult returns the post-adjustment row and the audit entry id.
type AdjustResult struct {
	Item        *models.Balance `json:"item"`
	OperationID string          `json:"operation_id"`
}

// TransferRequest moves qty units of one item between two locations.
type TransferRequest struct {
	ItemID      int64
	From        int64
	To          int64
	Qty         int
	Note        string
	PerformedBy int64
}

// TransferResult returns both post-transfer rows, source first.
type TransferResult struct {
	Items       []models.Balance `json:"items"`
	OperationID string           `json:"operation_id"`
}

// BatchResult is the value-based outcome of issue and return calls. The
// kafka worker inspects it instead of unwrapping errors: OK=false with a
// 409 StatusCode means the batch must not be blindly retried, while a
// non-nil error from the method means storage trouble and safe redelivery.
type BatchResult struct {
	OK           bool     `json:"ok"`
	StatusCode   int      `json:"status_code,omitempty"`
	Code         string   `json:"error,omitempty"`
	Processed    int      `json:"processed"`
	OperationIDs []string `json:"operations"`
}

// ListBalances returns balance rows matching the optional filters, sorted
// by descending quantity. Limit is clamped to [1,200].
func (s *StockService) ListBalances(ctx context.Context, f port.BalanceFilter) ([]models.Balance, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ListBalances")
	defer span.End()

	f.Limit = clampLimit(f.Limit, 50)
	if f.Offset < 0 {
		f.Offset = 0
	}

	balances, err := s.store.ListBalances(ctx, f)
	if err != nil {
		return nil, storeFailure(err)
	}
	return balances, nil
}

// Adjust applies a manual correction and records one in/out operation. A
// correction that would drive quantity negative aborts without writing.
func (s *StockService) Adjust(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Adjust")
	defer span.End()

	if req.ItemID <= 0 || req.LocationID <= 0 {
		return nil, models.NewValidationError("item_id and location_id are required")
	}
	if req.Qty == 0 {
		return nil, models.NewValidationError("qty must be a non-zero number")
	}

	opType := models.OpTypeIn
	magnitude := req.Qty
	if req.Qty < 0 {
		opType = models.OpTypeOut
		magnitude = -req.Qty
	}

	var result AdjustResult
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		current := 0
		if bal, err := tx.BalanceForUpdate(ctx, req.ItemID, req.LocationID); err != nil {
			return err
		} else if bal != nil {
			current = bal.Quantity
		}

		if current+req.Qty < 0 {
			return models.ErrNegativeBalance
		}

		updated, err := tx.ApplyBalanceDelta(ctx, req.ItemID, req.LocationID, req.Qty, 0)
		if err != nil {
			return err
		}

		op := &models.Operation{
			ID:          uuid.New().String(),
			Type:        opType,
			ItemID:      req.ItemID,
			Qty:         magnitude,
			SourceType:  models.SourceManual,
			Note:        req.Note,
			PerformedBy: req.PerformedBy,
			CreatedAt:   time.Now(),
		}
		if opType == models.OpTypeIn {
			op.LocationToID = &req.LocationID
		} else {
			op.LocationFromID = &req.LocationID
		}
		if err := tx.InsertOperation(ctx, op); err != nil {
			return err
		}

		result = AdjustResult{Item: updated, OperationID: op.ID}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNegativeBalance) {
			util.InvariantRejectionsTotal.WithLabelValues("negative_balance").Inc()
			return nil, models.ErrNegativeBalance
		}
		return nil, storeFailure(err)
	}

	util.OperationsAppliedTotal.WithLabelValues(opType, models.SourceManual).Inc()
	s.logger.Info("Stock adjusted",
		zap.Int64("item_id", req.ItemID),
		zap.Int64("location_id", req.LocationID),
		zap.Int("qty", req.Qty),
		zap.String("operation_id", result.OperationID))
	s.publishOperation(ctx, opType, result.OperationID, req.ItemID, magnitude, nil, nil, models.SourceManual, 0)

	return &result, nil
}

// Transfer moves stock between two locations as one atomic unit: source
// decrement, destination increment and the audit row commit together or
// not at all.
func (s *StockService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Transfer")
	defer span.End()

	start := time.Now()
	defer func() { util.TransferLatency.Observe(time.Since(start).Seconds()) }()

	if req.ItemID <= 0 || req.From <= 0 || req.To <= 0 {
		return nil, models.NewValidationError("item_id, from and to are required")
	}
	if req.From == req.To {
		return nil, models.NewValidationError("from and to must differ")
	}
	if req.Qty <= 0 {
		return nil, models.NewValidationError("qty must be greater than zero")
	}

	var result TransferResult
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		// Lock both rows in location order so two opposite-direction
		// transfers cannot deadlock.
		first, second := req.From, req.To
		if second < first {
			first, second = second, first
		}
		locked := map[int64]*models.Balance{}
		for _, loc := range []int64{first, second} {
			bal, err := tx.BalanceForUpdate(ctx, req.ItemID, loc)
			if err != nil {
				return err
			}
			locked[loc] = bal
		}

		source := locked[req.From]
		if source == nil || source.Quantity < req.Qty {
			return models.ErrInsufficientStock
		}

		fromRow, err := tx.ApplyBalanceDelta(ctx, req.ItemID, req.From, -req.Qty, 0)
		if err != nil {
			return err
		}
		toRow, err := tx.ApplyBalanceDelta(ctx, req.ItemID, req.To, req.Qty, 0)
		if err != nil {
			return err
		}

		op := &models.Operation{
			ID:             uuid.New().String(),
			Type:           models.OpTypeTransfer,
			ItemID:         req.ItemID,
			Qty:            req.Qty,
			LocationFromID: &req.From,
			LocationToID:   &req.To,
			SourceType:     models.SourceManual,
			Note:           req.Note,
			PerformedBy:    req.PerformedBy,
			CreatedAt:      time.Now(),
		}
		if err := tx.InsertOperation(ctx, op); err != nil {
			return err
		}

		result = TransferResult{Items: []models.Balance{*fromRow, *toRow}, OperationID: op.ID}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.InvariantRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, models.ErrInsufficientStock
		}
		return nil, storeFailure(err)
	}

	util.OperationsAppliedTotal.WithLabelValues(models.OpTypeTransfer, models.SourceManual).Inc()
	s.logger.Info("Stock transferred",
		zap.Int64("item_id", req.ItemID),
		zap.Int64("from", req.From),
		zap.Int64("to", req.To),
		zap.Int("qty", req.Qty))
	s.publishOperation(ctx, models.OpTypeTransfer, result.OperationID, req.ItemID, req.Qty, &req.From, &req.To, models.SourceManual, 0)

	return &result, nil
}

// IssueFromOrder consumes physical stock for every line of an order, once.
// Lines whose out-operation signature is already in the ledger count as
// processed without a second write. If any line lacks stock the whole batch
// aborts and the result reports INSUFFICIENT_STOCK by value.
func (s *StockService) IssueFromOrder(ctx context.Context, orderID, performedBy, locationID int64) (*BatchResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.IssueFromOrder")
	defer span.End()

	start := time.Now()
	defer func() { util.IssueBatchLatency.Observe(time.Since(start).Seconds()) }()

	lines, err := s.store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	loc, err := s.resolveLocation(ctx, locationID, orderID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{OK: true, OperationIDs: []string{}}
	var published []models.Operation
	err = s.store.WithinTx(ctx, func(tx port.Tx) error {
		published = published[:0]
		for _, line := range lines {
			exists, err := tx.OperationExists(ctx, models.OpTypeOut, models.SourceOrder, orderID, line.ItemID, line.Qty)
			if err != nil {
				return err
			}
			if exists {
				util.OperationsSkippedTotal.WithLabelValues(models.OpTypeOut).Inc()
				result.Processed++
				continue
			}

			bal, err := tx.BalanceForUpdate(ctx, line.ItemID, loc)
			if err != nil {
				return err
			}
			quantity, reserved := 0, 0
			if bal != nil {
				quantity, reserved = bal.Quantity, bal.Reserved
			}
			if quantity < line.Qty {
				return models.ErrInsufficientStock
			}

			// A reservation may have been partially consumed or never
			// fully matched; release only what is actually held.
			releaseReserved := line.Qty
			if reserved < releaseReserved {
				releaseReserved = reserved
			}
			if _, err := tx.ApplyBalanceDelta(ctx, line.ItemID, loc, -line.Qty, -releaseReserved); err != nil {
				return err
			}

			op := &models.Operation{
				ID:             uuid.New().String(),
				Type:           models.OpTypeOut,
				ItemID:         line.ItemID,
				Qty:            line.Qty,
				LocationFromID: &loc,
				SourceType:     models.SourceOrder,
				SourceID:       orderID,
				PerformedBy:    performedBy,
				CreatedAt:      time.Now(),
			}
			if err := tx.InsertOperation(ctx, op); err != nil {
				return err
			}
			result.Processed++
			result.OperationIDs = append(result.OperationIDs, op.ID)
			published = append(published, *op)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.InvariantRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
			s.logger.Warn("Issue rejected: insufficient stock", zap.Int64("order_id", orderID))
			return &BatchResult{StatusCode: http.StatusConflict, Code: models.ErrInsufficientStock.Code}, nil
		}
		return nil, err
	}

	for _, op := range published {
		util.OperationsAppliedTotal.WithLabelValues(models.OpTypeOut, models.SourceOrder).Inc()
		s.publishOperation(ctx, op.Type, op.ID, op.ItemID, op.Qty, op.LocationFromID, op.LocationToID, op.SourceType, op.SourceID)
	}
	s.logger.Info("Order issued",
		zap.Int64("order_id", orderID),
		zap.Int64("location_id", loc),
		zap.Int("processed", result.Processed))
	return result, nil
}

// ReturnFromRefund restocks an order's lines after a refund, keyed by the
// payment id so each refund lands exactly once. Returns only add stock, so
// there is no insufficiency path.
func (s *StockService) ReturnFromRefund(ctx context.Context, orderID, paymentID, performedBy, locationID int64) (*BatchResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ReturnFromRefund")
	defer span.End()

	lines, err := s.store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	loc, err := s.resolveLocation(ctx, locationID, orderID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{OK: true, OperationIDs: []string{}}
	var published []models.Operation
	err = s.store.WithinTx(ctx, func(tx port.Tx) error {
		published = published[:0]
		for _, line := range lines {
			exists, err := tx.OperationExists(ctx, models.OpTypeReturn, models.SourcePayment, paymentID, line.ItemID, line.Qty)
			if err != nil {
				return err
			}
			if exists {
				util.OperationsSkippedTotal.WithLabelValues(models.OpTypeReturn).Inc()
				result.Processed++
				continue
			}

			if _, err := tx.ApplyBalanceDelta(ctx, line.ItemID, loc, line.Qty, 0); err != nil {
				return err
			}

			op := &models.Operation{
				ID:           uuid.New().String(),
				Type:         models.OpTypeReturn,
				ItemID:       line.ItemID,
				Qty:          line.Qty,
				LocationToID: &loc,
				SourceType:   models.SourcePayment,
				SourceID:     paymentID,
				PerformedBy:  performedBy,
				CreatedAt:    time.Now(),
			}
			if err := tx.InsertOperation(ctx, op); err != nil {
				return err
			}
			result.Processed++
			result.OperationIDs = append(result.OperationIDs, op.ID)
			published = append(published, *op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, op := range published {
		util.OperationsAppliedTotal.WithLabelValues(models.OpTypeReturn, models.SourcePayment).Inc()
		s.publishOperation(ctx, op.Type, op.ID, op.ItemID, op.Qty, op.LocationFromID, op.LocationToID, op.SourceType, op.SourceID)
	}
	s.logger.Info("Refund returned to stock",
		zap.Int64("order_id", orderID),
		zap.Int64("payment_id", paymentID),
		zap.Int("processed", result.Processed))
	return result, nil
}

// resolveLocation applies the documented precedence: explicit parameter,
// then the order-level hint, then the configured default.
func (s *StockService) resolveLocation(ctx context.Context, explicit, orderID int64) (int64, error) {
	if explicit > 0 {
		return explicit, nil
	}
	if orderID > 0 {
		hint, err := s.store.OrderLocation(ctx, orderID)
		if err != nil {
			return 0, fmt.Errorf("failed to read order location: %w", err)
		}
		if hint > 0 {
			return hint, nil
		}
	}
	return s.defaultLocationID, nil
}

func (s *StockService) publishOperation(ctx context.Context, opType, opID string, itemID int64, qty int, from, to *int64, sourceType string, sourceID int64) {
	if s.events == nil {
		return
	}
	event := &models.StockOperationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockOperation,
			Timestamp: time.Now(),
		},
		OperationID:    opID,
		Type:           opType,
		ItemID:         itemID,
		Qty:            qty,
		LocationFromID: from,
		LocationToID:   to,
		SourceType:     sourceType,
		SourceID:       sourceID,
	}
	if err := s.events.PublishStockOperation(ctx, event); err != nil {
		s.logger.Error("Failed to publish stock operation event",
			zap.String("operation_id", opID), zap.Error(err))
	}
}

// clampLimit clamps a page size to [1,200], using def when unset.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	return limit
}

// storeFailure maps raw storage errors to the transient 503-class code.
func storeFailure(err error) error {
	var svcErr *models.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return &models.ServiceError{
		Code:       models.ErrStoreNotReady.Code,
		StatusCode: models.ErrStoreNotReady.StatusCode,
		Message:    err.Error(),
	}
}
