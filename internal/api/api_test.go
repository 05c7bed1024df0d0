package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jag2430/fix-executor/internal/audit"
	"github.com/jag2430/fix-executor/internal/execution"
	"github.com/jag2430/fix-executor/internal/marketdata"
	"github.com/jag2430/fix-executor/internal/orderbook"
	"github.com/jag2430/fix-executor/internal/session"
	"github.com/jag2430/fix-executor/internal/types"
)

type fixture struct {
	router *gin.Engine
	engine *execution.Engine
	book   *orderbook.Book
	market *marketdata.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&audit.ReportRecord{}))
	journal := audit.NewStore(db)

	sessions := session.NewRegistry(zerolog.Nop())
	sessions.Register(session.Info{Key: "default"}, session.NewLogSink(zerolog.Nop()))

	market := marketdata.NewService(nil, time.Minute, decimal.RequireFromString("100.00"), zerolog.Nop())
	book := orderbook.NewBook()

	cfg := execution.DefaultConfig()
	cfg.FillMode = execution.ModeManual
	sink := audit.NewSink(sessions, journal, zerolog.Nop())
	engine := execution.NewEngine(book, market, sink, cfg, zerolog.Nop())
	t.Cleanup(engine.Close)

	h := NewHandlers(engine, book, market, sessions, journal, zerolog.Nop())
	router := gin.New()
	router.GET("/api/v1/health", h.Health)
	h.RegisterRoutes(router.Group("/api/v1"))

	return &fixture{router: router, engine: engine, book: book, market: market}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) submit(t *testing.T, clOrdID string, qty int64) {
	t.Helper()
	require.NoError(t, f.engine.Submit(&types.Order{
		ClOrdID:   clOrdID,
		Symbol:    "AAPL",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeLimit,
		Quantity:  qty,
		Price:     decimal.RequireFromString("150.00"),
	}, "default"))
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"mode":"MANUAL"`)
}

func TestGetAndUpdateConfig(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fill_mode":"MANUAL"`)

	w = f.do(t, http.MethodPut, "/api/v1/config", map[string]interface{}{
		"fill_mode":          "DELAYED",
		"delay_ms":           250,
		"reject_probability": 0.1,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, execution.ModeDelayed, f.engine.Config().FillMode)
	assert.Equal(t, int64(250), f.engine.Config().DelayMs)

	// Invalid values are refused and leave the config untouched.
	w = f.do(t, http.MethodPut, "/api/v1/config", map[string]interface{}{
		"reject_probability": 7,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0.1, f.engine.Config().RejectProbability)
}

func TestSetMode(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/config/mode/immediate_full", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, execution.ModeImmediateFull, f.engine.Config().FillMode)

	w = f.do(t, http.MethodPost, "/api/v1/config/mode/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNKNOWN_MODE", env.Error.Code)
}

func TestListAndGetOrders(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "ORD-1", 100)
	f.submit(t, "ORD-2", 50)
	f.engine.Cancel("ORD-2", "CXL-1", "default")

	w := f.do(t, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var all []types.Order
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &all))
	assert.Len(t, all, 2)

	w = f.do(t, http.MethodGet, "/api/v1/orders?open_only=true", nil)
	var open []types.Order
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &open))
	require.Len(t, open, 1)
	assert.Equal(t, "ORD-1", open[0].ClOrdID)

	w = f.do(t, http.MethodGet, "/api/v1/orders/ORD-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderStats(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "ORD-1", 100)

	w := f.do(t, http.MethodGet, "/api/v1/orders/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
	assert.Contains(t, w.Body.String(), `"open":1`)
}

func TestExecuteOrder(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "ORD-1", 100)

	w := f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/execute", map[string]interface{}{
		"quantity": 40,
		"price":    149.50,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	var rpt types.ExecutionReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &rpt))
	assert.Equal(t, types.ExecTypePartialFill, rpt.ExecType)
	assert.Equal(t, int64(40), rpt.LastQty)

	// Empty body fills the remainder at the oracle price.
	w = f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/execute", nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	o, err := f.book.Get("ORD-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, o.Status)

	// A filled order cannot be executed again.
	w = f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/execute", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ORDER_NOT_OPEN", env.Error.Code)
}

func TestRejectOrder(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "ORD-1", 100)

	w := f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/reject", map[string]string{
		"reason": "manual reject",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	o, err := f.book.Get("ORD-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, o.Status)

	w = f.do(t, http.MethodPost, "/api/v1/orders/missing/reject", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClearOrders(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "ORD-1", 100)

	w := f.do(t, http.MethodDelete, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.book.Count())

	w = f.do(t, http.MethodGet, "/api/v1/executions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var recs []audit.ReportRecord
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &recs))
	assert.Empty(t, recs)
}

func TestMarketDataEndpoints(t *testing.T) {
	f := newFixture(t)

	// No source configured: unknown symbols have no quote.
	w := f.do(t, http.MethodGet, "/api/v1/market-data/AAPL", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/market-data/AAPL", map[string]float64{"price": 187.50})
	assert.Equal(t, http.StatusCreated, w.Code)
	var q types.MarketQuote
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &q))
	assert.True(t, q.Last.Equal(decimal.RequireFromString("187.50")))

	w = f.do(t, http.MethodGet, "/api/v1/market-data/AAPL", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/market-data", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AAPL")

	w = f.do(t, http.MethodPost, "/api/v1/market-data/AAPL", map[string]float64{"price": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListExecutions(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "ORD-1", 100)
	w := f.do(t, http.MethodPost, "/api/v1/orders/ORD-1/execute", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/executions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var recs []audit.ReportRecord
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &recs))
	// NEW ack plus the fill.
	require.Len(t, recs, 2)
	assert.Equal(t, string(types.ExecTypeFill), recs[0].ExecType)

	w = f.do(t, http.MethodGet, "/api/v1/executions?cl_ord_id=ORD-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/executions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":1`)
}
