// Package api exposes the control surface: runtime inspection and test
// control over the simulator's configuration, orders, market data and
// journaled reports.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jag2430/fix-executor/internal/audit"
	"github.com/jag2430/fix-executor/internal/execution"
	"github.com/jag2430/fix-executor/internal/marketdata"
	"github.com/jag2430/fix-executor/internal/orderbook"
	"github.com/jag2430/fix-executor/internal/session"
	"github.com/jag2430/fix-executor/pkg/response"
)

// Handlers wires the control surface to the simulator's services.
type Handlers struct {
	engine   *execution.Engine
	book     *orderbook.Book
	market   *marketdata.Service
	sessions *session.Registry
	journal  *audit.Store
	log      zerolog.Logger
}

func NewHandlers(
	engine *execution.Engine,
	book *orderbook.Book,
	market *marketdata.Service,
	sessions *session.Registry,
	journal *audit.Store,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		engine:   engine,
		book:     book,
		market:   market,
		sessions: sessions,
		journal:  journal,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes attaches the control endpoints to a router group.
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/config", h.GetConfig)
	rg.PUT("/config", h.UpdateConfig)
	rg.POST("/config/mode/:mode", h.SetMode)

	rg.GET("/orders", h.ListOrders)
	rg.GET("/orders/stats", h.OrderStats)
	rg.GET("/orders/:cl_ord_id", h.GetOrder)
	rg.DELETE("/orders", h.ClearOrders)
	rg.POST("/orders/:cl_ord_id/execute", h.ExecuteOrder)
	rg.POST("/orders/:cl_ord_id/reject", h.RejectOrder)

	rg.GET("/market-data", h.ListQuotes)
	rg.GET("/market-data/:symbol", h.GetQuote)
	rg.POST("/market-data/:symbol", h.OverrideQuote)
	rg.POST("/market-data/:symbol/refresh", h.RefreshQuote)

	rg.GET("/sessions", h.ListSessions)
	rg.GET("/executions", h.ListExecutions)
}

// GetConfig returns the active execution policy.
func (h *Handlers) GetConfig(c *gin.Context) {
	response.Success(c, h.engine.Config())
}

// UpdateConfig replaces the execution policy wholesale. Unset fields fall
// back to the current values, so partial updates work.
func (h *Handlers) UpdateConfig(c *gin.Context) {
	cfg := h.engine.Config()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if err := h.engine.UpdateConfig(cfg); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, h.engine.Config())
}

// SetMode changes only the fill mode.
func (h *Handlers) SetMode(c *gin.Context) {
	cfg, err := h.engine.SetMode(c.Param("mode"))
	response.Handle(c, cfg, err)
}

// ListOrders returns all orders, or only open ones with ?open_only=true.
func (h *Handlers) ListOrders(c *gin.Context) {
	if c.Query("open_only") == "true" {
		response.Success(c, h.book.OpenOrders())
		return
	}
	response.Success(c, h.book.AllOrders())
}

// OrderStats returns order counts grouped by status.
func (h *Handlers) OrderStats(c *gin.Context) {
	response.Success(c, gin.H{
		"total":     h.book.Count(),
		"open":      h.book.OpenCount(),
		"by_status": h.book.Stats(),
	})
}

// GetOrder returns one order by client order id.
func (h *Handlers) GetOrder(c *gin.Context) {
	o, err := h.book.Get(c.Param("cl_ord_id"))
	response.Handle(c, o, err)
}

// ClearOrders drops the whole book and the report journal. Test control.
func (h *Handlers) ClearOrders(c *gin.Context) {
	h.book.Clear()
	if err := h.journal.Clear(); err != nil {
		h.log.Error().Err(err).Msg("failed to clear report journal")
	}
	h.log.Warn().Msg("order book and journal cleared via API")
	response.Success(c, gin.H{"cleared": true})
}

type executeRequest struct {
	Quantity *int64   `json:"quantity"`
	Price    *float64 `json:"price"`
}

// ExecuteOrder books one manual fill against an open order. Quantity
// defaults to the remaining quantity, price to the market execution price.
func (h *Handlers) ExecuteOrder(c *gin.Context) {
	var req executeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
	}
	var px *decimal.Decimal
	if req.Price != nil {
		p := decimal.NewFromFloat(*req.Price)
		px = &p
	}
	rpt, err := h.engine.ManualExecute(c.Param("cl_ord_id"), req.Quantity, px)
	response.Handle(c, rpt, err)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectOrder rejects an open order with an optional reason.
func (h *Handlers) RejectOrder(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
	}
	clOrdID := c.Param("cl_ord_id")
	if err := h.engine.ManualReject(clOrdID, req.Reason); err != nil {
		response.Handle(c, nil, err)
		return
	}
	o, err := h.book.Get(clOrdID)
	response.Handle(c, o, err)
}

// ListQuotes returns every cached quote.
func (h *Handlers) ListQuotes(c *gin.Context) {
	response.Success(c, h.market.All())
}

// GetQuote returns the quote for one symbol, fetching it if stale.
func (h *Handlers) GetQuote(c *gin.Context) {
	q, err := h.market.Quote(c.Param("symbol"))
	response.Handle(c, q, err)
}

type overrideRequest struct {
	Price float64 `json:"price" binding:"required,gt=0"`
}

// OverrideQuote pins a symbol's quote to the given price.
func (h *Handlers) OverrideQuote(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Price must be a positive number")
		return
	}
	q := h.market.Override(c.Param("symbol"), decimal.NewFromFloat(req.Price))
	response.Success(c, q)
}

// RefreshQuote drops the cache TTL for a symbol and refetches.
func (h *Handlers) RefreshQuote(c *gin.Context) {
	q, err := h.market.Refresh(c.Param("symbol"))
	response.Handle(c, q, err)
}

// ListSessions returns the known counterparty sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	response.Success(c, gin.H{
		"active":   h.sessions.ActiveCount(),
		"sessions": h.sessions.List(),
	})
}

// ListExecutions returns the most recent journaled reports, newest first.
func (h *Handlers) ListExecutions(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if clOrdID := c.Query("cl_ord_id"); clOrdID != "" {
		recs, err := h.journal.ListByClOrdID(clOrdID)
		response.Handle(c, recs, err)
		return
	}
	recs, err := h.journal.List(limit)
	response.Handle(c, recs, err)
}

// Health reports liveness plus a summary of the simulator's state. Not
// behind auth so probes can reach it.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"mode":            h.engine.Config().FillMode,
		"active_sessions": h.sessions.ActiveCount(),
		"total_orders":    h.book.Count(),
		"open_orders":     h.book.OpenCount(),
		"pending_fills":   h.engine.Pending(),
	})
}
