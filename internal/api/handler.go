package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/port"
	"stock-service/internal/service"
	"stock-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	stocks  *service.StockService
	reports *service.ReportService
	store   port.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(stocks *service.StockService, reports *service.ReportService, store port.Store) *Handler {
	return &Handler{
		stocks:  stocks,
		reports: reports,
		store:   store,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stocks", h.listStocks)
		v1.POST("/stocks/adjust", h.adjustStock)
		v1.POST("/stocks/transfer", h.transferStock)
		v1.GET("/reports/stocks/summary", h.stockSummary)
		v1.GET("/reports/stocks/turnover", h.stockTurnover)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the balance store answers.
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ok":    false,
			"error": models.ErrStoreNotReady.Code,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listStocks handles GET /stocks with optional item/location filters.
func (h *Handler) listStocks(c *gin.Context) {
	filter := port.BalanceFilter{
		ItemID:     queryInt64(c, "item_id"),
		LocationID: queryInt64(c, "location_id"),
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	}

	items, err := h.stocks.ListBalances(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

type adjustRequest struct {
	ItemID     int64  `json:"item_id" binding:"required"`
	LocationID int64  `json:"location_id" binding:"required"`
	Qty        int    `json:"qty" binding:"required"`
	Note       string `json:"note"`
}

// adjustStock handles POST /stocks/adjust
func (h *Handler) adjustStock(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"error":   "VALIDATION_ERROR",
			"details": err.Error(),
		})
		return
	}

	result, err := h.stocks.Adjust(c.Request.Context(), service.AdjustRequest{
		ItemID:      req.ItemID,
		LocationID:  req.LocationID,
		Qty:         req.Qty,
		Note:        req.Note,
		PerformedBy: actorID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"item":         result.Item,
		"operation_id": result.OperationID,
	})
}

type transferRequest struct {
	ItemID int64  `json:"item_id" binding:"required"`
	From   int64  `json:"from" binding:"required"`
	To     int64  `json:"to" binding:"required"`
	Qty    int    `json:"qty" binding:"required,min=1"`
	Note   string `json:"note"`
}

// transferStock handles POST /stocks/transfer
func (h *Handler) transferStock(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"error":   "VALIDATION_ERROR",
			"details": err.Error(),
		})
		return
	}

	result, err := h.stocks.Transfer(c.Request.Context(), service.TransferRequest{
		ItemID:      req.ItemID,
		From:        req.From,
		To:          req.To,
		Qty:         req.Qty,
		Note:        req.Note,
		PerformedBy: actorID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"items":        result.Items,
		"operation_id": result.OperationID,
	})
}

// stockSummary handles GET /reports/stocks/summary
func (h *Handler) stockSummary(c *gin.Context) {
	report, err := h.reports.SummaryByLocation(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"groups":    report.Groups,
		"total_qty": report.TotalQty,
	})
}

// stockTurnover handles GET /reports/stocks/turnover
func (h *Handler) stockTurnover(c *gin.Context) {
	from := parseDate(c.Query("from"))
	to := parseDate(c.Query("to"))

	report, err := h.reports.Turnover(c.Request.Context(), from, to, queryInt(c, "limit"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"totals":  report.Totals,
		"by_item": report.ByItem,
	})
}

// writeError maps typed service errors to their status class.
func writeError(c *gin.Context, err error) {
	var svcErr *models.ServiceError
	if errors.As(err, &svcErr) {
		body := gin.H{"ok": false, "error": svcErr.Code}
		if svcErr.Message != "" && svcErr.Message != svcErr.Code {
			body["details"] = svcErr.Message
		}
		c.JSON(svcErr.StatusCode, body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"ok":      false,
		"error":   "INTERNAL_ERROR",
		"details": err.Error(),
	})
}

// actorID reads the authenticated actor set upstream by the auth layer.
func actorID(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	return id
}

// parseDate accepts RFC3339 or plain dates; anything else means no filter
// rather than an error.
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func queryInt(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}

func queryInt64(c *gin.Context, name string) int64 {
	v, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return v
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
