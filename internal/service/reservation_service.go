package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"stock-service/internal/models"
	"stock-service/internal/port"
	"stock-service/internal/util"

	"go.uber.org/zap"
)

// ReservationService manages soft holds: reserved counters that respect
// availability but move no physical stock and write no ledger rows.
type ReservationService struct {
	store             port.Store
	logger            *zap.Logger
	defaultLocationID int64
}

func NewReservationService(store port.Store, defaultLocationID int64) *ReservationService {
	return &ReservationService{
		store:             store,
		logger:            util.GetLogger(),
		defaultLocationID: defaultLocationID,
	}
}

// ReservationResult reports how many units the call reserved, released or
// reconciled in total.
type ReservationResult struct {
	OK    bool `json:"ok"`
	Units int  `json:"units"`
}

// ReserveForOrder holds the order's aggregated line quantities against
// availability. Either every item fits and the whole hold commits, or the
// call aborts with INSUFFICIENT_STOCK and no row changes.
func (s *ReservationService) ReserveForOrder(ctx context.Context, orderID, locationID, userID int64) (*ReservationResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.ReserveForOrder")
	defer span.End()

	wants, err := s.aggregatedOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	loc, err := s.resolveLocation(ctx, locationID, orderID)
	if err != nil {
		return nil, err
	}

	reserved := 0
	err = s.store.WithinTx(ctx, func(tx port.Tx) error {
		reserved = 0
		for _, want := range wants {
			bal, err := tx.BalanceForUpdate(ctx, want.ItemID, loc)
			if err != nil {
				return err
			}
			available := 0
			if bal != nil {
				available = bal.Quantity - bal.Reserved
			}
			if available < want.Qty {
				return models.ErrInsufficientStock
			}
			if _, err := tx.ApplyBalanceDelta(ctx, want.ItemID, loc, 0, want.Qty); err != nil {
				return err
			}
			reserved += want.Qty
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.InvariantRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, models.ErrInsufficientStock
		}
		return nil, storeFailure(err)
	}

	util.ReservationUnitsTotal.WithLabelValues("reserve").Add(float64(reserved))
	s.logger.Info("Order reserved",
		zap.Int64("order_id", orderID),
		zap.Int64("location_id", loc),
		zap.Int("units", reserved))
	return &ReservationResult{OK: true, Units: reserved}, nil
}

// ReleaseForOrder drops the order's hold. Release clamps to zero: a
// partially issued or never fully matched reservation releases only what is
// still held.
func (s *ReservationService) ReleaseForOrder(ctx context.Context, orderID, locationID, userID int64) (*ReservationResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.ReleaseForOrder")
	defer span.End()

	wants, err := s.aggregatedOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	loc, err := s.resolveLocation(ctx, locationID, orderID)
	if err != nil {
		return nil, err
	}

	released := 0
	err = s.store.WithinTx(ctx, func(tx port.Tx) error {
		released = 0
		for _, want := range wants {
			dec, err := releaseClamped(ctx, tx, want.ItemID, loc, want.Qty)
			if err != nil {
				return err
			}
			released += dec
		}
		return nil
	})
	if err != nil {
		return nil, storeFailure(err)
	}

	util.ReservationUnitsTotal.WithLabelValues("release").Add(float64(released))
	s.logger.Info("Order released",
		zap.Int64("order_id", orderID),
		zap.Int64("location_id", loc),
		zap.Int("units", released))
	return &ReservationResult{OK: true, Units: released}, nil
}

// ApplyDiffForOrderEdit reconciles the hold after an order edit: items whose
// quantity grew reserve the difference against availability, items that
// shrank or disappeared release it (clamped). One atomic unit; if any
// increase does not fit, nothing from this call lands.
func (s *ReservationService) ApplyDiffForOrderEdit(ctx context.Context, orderID int64, prevItems, nextItems []models.OrderLine, locationID, userID int64) (*ReservationResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.ApplyDiffForOrderEdit")
	defer span.End()

	deltas := make(map[int64]int)
	for _, line := range prevItems {
		deltas[line.ItemID] -= line.Qty
	}
	for _, line := range nextItems {
		deltas[line.ItemID] += line.Qty
	}

	// Deterministic item order keeps concurrent edits from deadlocking on
	// each other's row locks.
	itemIDs := make([]int64, 0, len(deltas))
	for itemID, delta := range deltas {
		if delta != 0 {
			itemIDs = append(itemIDs, itemID)
		}
	}
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })

	loc, err := s.resolveLocation(ctx, locationID, orderID)
	if err != nil {
		return nil, err
	}

	adjusted := 0
	err = s.store.WithinTx(ctx, func(tx port.Tx) error {
		adjusted = 0
		for _, itemID := range itemIDs {
			delta := deltas[itemID]
			if delta > 0 {
				bal, err := tx.BalanceForUpdate(ctx, itemID, loc)
				if err != nil {
					return err
				}
				available := 0
				if bal != nil {
					available = bal.Quantity - bal.Reserved
				}
				if available < delta {
					return models.ErrInsufficientStock
				}
				if _, err := tx.ApplyBalanceDelta(ctx, itemID, loc, 0, delta); err != nil {
					return err
				}
				adjusted += delta
			} else {
				dec, err := releaseClamped(ctx, tx, itemID, loc, -delta)
				if err != nil {
					return err
				}
				adjusted += dec
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.InvariantRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, models.ErrInsufficientStock
		}
		return nil, storeFailure(err)
	}

	util.ReservationUnitsTotal.WithLabelValues("reconcile").Add(float64(adjusted))
	s.logger.Info("Order reservation reconciled",
		zap.Int64("order_id", orderID),
		zap.Int64("location_id", loc),
		zap.Int("units", adjusted))
	return &ReservationResult{OK: true, Units: adjusted}, nil
}

// aggregatedOrderItems sums duplicate item references into one quantity per
// item and returns them in ascending item order for stable locking.
func (s *ReservationService) aggregatedOrderItems(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	lines, err := s.store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}

	byItem := make(map[int64]int)
	for _, line := range lines {
		byItem[line.ItemID] += line.Qty
	}

	aggregated := make([]models.OrderLine, 0, len(byItem))
	for itemID, qty := range byItem {
		aggregated = append(aggregated, models.OrderLine{ItemID: itemID, Qty: qty})
	}
	sort.Slice(aggregated, func(i, j int) bool { return aggregated[i].ItemID < aggregated[j].ItemID })
	return aggregated, nil
}

func (s *ReservationService) resolveLocation(ctx context.Context, explicit, orderID int64) (int64, error) {
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

// releaseClamped decrements a reservation by min(held, requested) so the
// counter never goes negative, and skips rows that do not exist.
func releaseClamped(ctx context.Context, tx port.Tx, itemID, locationID int64, requested int) (int, error) {
	bal, err := tx.BalanceForUpdate(ctx, itemID, locationID)
	if err != nil {
		return 0, err
	}
	if bal == nil || bal.Reserved == 0 {
		return 0, nil
	}
	dec := requested
	if bal.Reserved < dec {
		dec = bal.Reserved
	}
	if _, err := tx.ApplyBalanceDelta(ctx, itemID, locationID, 0, -dec); err != nil {
		return 0, err
	}
	return dec, nil
}
