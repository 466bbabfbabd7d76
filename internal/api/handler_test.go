package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock-service/internal/service"
	"stock-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	stocks := service.NewStockService(mem, nil, 1)
	reports := service.NewReportService(mem, nil, time.Second)

	router := gin.New()
	NewHandler(stocks, reports, mem).SetupRoutes(router)
	return router, mem
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListStocks(t *testing.T) {
	router, mem := newTestRouter(t)
	mem.SeedBalance(7, 1, 10, 3)

	w := doJSON(router, http.MethodGet, "/api/v1/stocks?item_id=7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK    bool `json:"ok"`
		Items []struct {
			Quantity  int `json:"quantity"`
			Reserved  int `json:"reserved"`
			Available int `json:"available"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 10, resp.Items[0].Quantity)
	assert.Equal(t, 7, resp.Items[0].Available)
}

func TestAdjustEndpoint(t *testing.T) {
	router, mem := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/stocks/adjust", gin.H{
		"item_id": 7, "location_id": 1, "qty": 5, "note": "cycle count",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK          bool   `json:"ok"`
		OperationID string `json:"operation_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.OperationID)

	ops := mem.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, int64(42), ops[0].PerformedBy)
}

func TestAdjustEndpointRejectsNegativeBalance(t *testing.T) {
	router, mem := newTestRouter(t)
	mem.SeedBalance(7, 1, 2, 0)

	w := doJSON(router, http.MethodPost, "/api/v1/stocks/adjust", gin.H{
		"item_id": 7, "location_id": 1, "qty": -3,
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "NEGATIVE_BALANCE_FORBIDDEN")
	assert.Empty(t, mem.Operations())
}

func TestAdjustEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	// Missing qty fails binding before the service runs.
	w := doJSON(router, http.MethodPost, "/api/v1/stocks/adjust", gin.H{
		"item_id": 7, "location_id": 1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestTransferEndpoint(t *testing.T) {
	router, mem := newTestRouter(t)
	mem.SeedBalance(7, 1, 7, 0)
	mem.SeedBalance(7, 2, 2, 0)

	w := doJSON(router, http.MethodPost, "/api/v1/stocks/transfer", gin.H{
		"item_id": 7, "from": 1, "to": 2, "qty": 5,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK    bool `json:"ok"`
		Items []struct {
			LocationID int64 `json:"location_id"`
			Quantity   int   `json:"quantity"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 2, resp.Items[0].Quantity)
	assert.Equal(t, 7, resp.Items[1].Quantity)
}

func TestTransferEndpointInsufficientStock(t *testing.T) {
	router, mem := newTestRouter(t)
	mem.SeedBalance(7, 1, 1, 0)

	w := doJSON(router, http.MethodPost, "/api/v1/stocks/transfer", gin.H{
		"item_id": 7, "from": 1, "to": 2, "qty": 2,
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_STOCK")
}

func TestSummaryEndpoint(t *testing.T) {
	router, mem := newTestRouter(t)
	mem.SeedBalance(7, 1, 5, 1)
	mem.SeedBalance(7, 2, 9, 0)

	w := doJSON(router, http.MethodGet, "/api/v1/reports/stocks/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK       bool `json:"ok"`
		TotalQty int  `json:"total_qty"`
		Groups   []struct {
			LocationID int64 `json:"location_id"`
			Qty        int   `json:"qty"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 14, resp.TotalQty)
	require.Len(t, resp.Groups, 2)
	assert.Equal(t, int64(2), resp.Groups[0].LocationID)
}

func TestTurnoverEndpointIgnoresInvalidDates(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/reports/stocks/turnover?from=not-a-date&to=whenever", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totals"`)
}

func TestReadyEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
