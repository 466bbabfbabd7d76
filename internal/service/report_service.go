package service

import (
	"context"
	"fmt"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/port"
	"stock-service/internal/util"

	"go.uber.org/zap"
)

// ReportCache is the cache-aside port for derived reports. Backed by redis
// in production; nil disables caching.
type ReportCache interface {
	FetchJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	CacheJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReportService serves read-only aggregations derived from the balance
// store and the operation log. Never authoritative.
type ReportService struct {
	store    port.Store
	cache    ReportCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewReportService(store port.Store, cache ReportCache, cacheTTL time.Duration) *ReportService {
	return &ReportService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// SummaryReport groups balances by location.
type SummaryReport struct {
	Groups   []models.LocationSummary `json:"groups"`
	TotalQty int                      `json:"total_qty"`
}

// TurnoverReport is ledger movement inside an optional window.
type TurnoverReport struct {
	Totals models.TurnoverTotals `json:"totals"`
	ByItem []models.ItemTurnover `json:"by_item"`
}

// SummaryByLocation aggregates balance rows per location, largest stock
// first, capped to [1,200] groups. Cached briefly: the report is derived
// data and a few seconds of staleness is acceptable.
func (s *ReportService) SummaryByLocation(ctx context.Context, limit int) (*SummaryReport, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.SummaryByLocation")
	defer span.End()

	limit = clampLimit(limit, 200)
	cacheKey := fmt.Sprintf("reports:stock-summary:%d", limit)

	if s.cache != nil {
		var cached SummaryReport
		hit, err := s.cache.FetchJSON(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("Summary cache read failed", zap.Error(err))
		} else if hit {
			util.ReportCacheTotal.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		util.ReportCacheTotal.WithLabelValues("miss").Inc()
	}

	groups, err := s.store.SummaryByLocation(ctx, limit)
	if err != nil {
		return nil, storeFailure(err)
	}

	report := &SummaryReport{Groups: groups}
	for _, g := range groups {
		report.TotalQty += g.Quantity
	}

	if s.cache != nil {
		if err := s.cache.CacheJSON(ctx, cacheKey, report, s.cacheTTL); err != nil {
			s.logger.Warn("Summary cache write failed", zap.Error(err))
		}
	}
	return report, nil
}

// Turnover aggregates operations inside the optional [from, to] window,
// both bounds inclusive. Nil bounds mean no filter. Per-item rows are
// sorted by total activity and capped to limit.
func (s *ReportService) Turnover(ctx context.Context, from, to *time.Time, limit int) (*TurnoverReport, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Turnover")
	defer span.End()

	limit = clampLimit(limit, 50)

	rows, err := s.store.TurnoverByItem(ctx, from, to)
	if err != nil {
		return nil, storeFailure(err)
	}

	report := &TurnoverReport{ByItem: []models.ItemTurnover{}}
	for _, row := range rows {
		row.Net = row.In - row.Out
		report.Totals.In += row.In
		report.Totals.Out += row.Out
		if len(report.ByItem) < limit {
			report.ByItem = append(report.ByItem, row)
		}
	}
	report.Totals.Net = report.Totals.In - report.Totals.Out
	return report, nil
}
