// Package execution implements the fill-policy state machine that turns
// accepted orders into execution reports, synchronously or via scheduled
// callbacks, according to the active configuration.
package execution

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jag2430/fix-executor/internal/metrics"
	"github.com/jag2430/fix-executor/internal/orderbook"
	"github.com/jag2430/fix-executor/internal/types"
)

// priceScale is the precision of execution prices.
const priceScale = 2

// Timing constants of the simulated market. Variables so tests can shrink
// them; the configurable delays live in Config.
var (
	finalFillDelay       = 500 * time.Millisecond
	marketFillBaseDelay  = 100 * time.Millisecond
	marketFillStep       = 100 * time.Millisecond
	marketFillStepJitter = 500 * time.Millisecond
	restingPollBase      = 1 * time.Second
	restingPollJitter    = 3 * time.Second
)

// Oracle resolves side-aware execution prices. A nil limitPrice asks for
// the price a marketable order of that side would get.
type Oracle interface {
	ExecutionPrice(symbol string, side types.Side, limitPrice *decimal.Decimal) decimal.Decimal
}

// ReportSink receives generated reports for transmission to the
// counterparty session identified by sessionKey.
type ReportSink interface {
	SendReport(sessionKey string, report types.ExecutionReport) error
	SendCancelReject(sessionKey string, reject types.CancelReject) error
}

// Engine applies the active fill policy to inbound orders. Scheduled
// callbacks always re-read order state from the book and the current config
// before acting, so concurrent cancels, replaces and config changes take
// effect on the next tick of any in-flight sequence.
type Engine struct {
	book   *orderbook.Book
	oracle Oracle
	sink   ReportSink
	sched  *Scheduler
	log    zerolog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	// Per-order mutual exclusion around commit+report, so reports go out in
	// the order their state transitions committed.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// Partial-fill progress per client order id, kept only while an
	// IMMEDIATE_PARTIAL chain is in flight.
	countMu      sync.Mutex
	partialFills map[string]int
}

// NewEngine creates an engine with a two-worker scheduler, matching the
// original executor's thread pool.
func NewEngine(book *orderbook.Book, oracle Oracle, sink ReportSink, cfg Config, log zerolog.Logger) *Engine {
	e := &Engine{
		book:         book,
		oracle:       oracle,
		sink:         sink,
		sched:        NewScheduler(2, log),
		log:          log.With().Str("component", "execution").Logger(),
		cfg:          cfg,
		locks:        make(map[string]*sync.Mutex),
		partialFills: make(map[string]int),
	}
	e.log.Info().Str("mode", string(cfg.FillMode)).Msg("execution engine initialized")
	return e
}

// Close stops the scheduler. Callbacks that have not fired are dropped.
func (e *Engine) Close() {
	e.sched.Stop()
}

// Config returns the current policy snapshot.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// UpdateConfig swaps the policy. In-flight fill sequences pick it up on
// their next callback.
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
	e.log.Info().
		Str("mode", string(cfg.FillMode)).
		Int("partial_pct", cfg.PartialFillPercentage).
		Int64("delay_ms", cfg.DelayMs).
		Float64("reject_probability", cfg.RejectProbability).
		Msg("execution config updated")
	return nil
}

// SetMode changes only the fill mode, by name.
func (e *Engine) SetMode(mode string) (Config, error) {
	m, err := ParseFillMode(mode)
	if err != nil {
		return Config{}, err
	}
	cfg := e.Config()
	cfg.FillMode = m
	if err := e.UpdateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Pending returns the number of fill callbacks waiting to fire.
func (e *Engine) Pending() int {
	return e.sched.Pending()
}

// Submit registers an inbound order and executes it per the active mode.
// The reject-probability trial runs first: a rejected order is registered
// and rejected without ever being acknowledged.
func (e *Engine) Submit(order *types.Order, sessionKey string) error {
	if order.Quantity <= 0 {
		return types.ErrInvalidQuantity
	}
	order.SessionKey = sessionKey
	order.Status = types.StatusPending
	order.FilledQuantity = 0
	order.LeavesQuantity = order.Quantity
	order.AvgPrice = decimal.Zero

	added, err := e.book.Add(order)
	if err != nil {
		return err
	}
	metrics.OrdersSubmitted.Inc()

	cfg := e.Config()
	e.log.Info().
		Str("cl_ord_id", added.ClOrdID).
		Str("mode", string(cfg.FillMode)).
		Msg("processing order")

	if cfg.RejectProbability > 0 && rand.Float64() < cfg.RejectProbability {
		return e.rejectOrder(added.ClOrdID, cfg.RejectReason)
	}

	accepted, err := e.book.Accept(added.ClOrdID)
	if err != nil {
		return err
	}
	e.sendAck(accepted)
	e.dispatch(accepted, cfg)
	return nil
}

// ManualExecute performs exactly one fill against an open order. Quantity
// defaults to the full leaves quantity and is clamped to it; price defaults
// to the oracle's execution price.
func (e *Engine) ManualExecute(clOrdID string, quantity *int64, price *decimal.Decimal) (types.ExecutionReport, error) {
	o, err := e.book.Get(clOrdID)
	if err != nil {
		return types.ExecutionReport{}, err
	}
	if !o.IsOpen() {
		return types.ExecutionReport{}, types.ErrOrderNotOpen
	}

	qty := o.LeavesQuantity
	if quantity != nil {
		qty = *quantity
	}
	if qty > o.LeavesQuantity {
		qty = o.LeavesQuantity
	}

	var px decimal.Decimal
	if price != nil {
		px = price.Round(priceScale)
	} else {
		px = e.executionPrice(o, e.Config())
	}
	return e.fill(clOrdID, qty, px)
}

// ManualReject rejects an order from any non-terminal status.
func (e *Engine) ManualReject(clOrdID, reason string) error {
	if reason == "" {
		reason = e.Config().RejectReason
	}
	if _, err := e.book.Get(clOrdID); err != nil {
		return err
	}
	return e.rejectOrder(clOrdID, reason)
}

// Cancel processes an order cancel request. A missing or closed original
// produces a cancel reject to the requesting session, not a hard error.
func (e *Engine) Cancel(origClOrdID, cancelClOrdID, sessionKey string) {
	if _, err := e.book.Get(origClOrdID); err != nil {
		e.log.Warn().Str("orig_cl_ord_id", origClOrdID).Msg("cancel request for unknown order")
		e.sendCancelReject(sessionKey, cancelClOrdID, origClOrdID, "Unknown order")
		return
	}

	unlock := e.lockOrder(origClOrdID)
	defer unlock()

	cancelled, err := e.book.Cancel(origClOrdID)
	if err != nil {
		e.sendCancelReject(sessionKey, cancelClOrdID, origClOrdID, "Order not open")
		return
	}

	rpt := e.newReport(cancelled, types.ExecTypeCancelled)
	rpt.ClOrdID = cancelClOrdID
	rpt.OrigClOrdID = origClOrdID
	e.send(cancelled.SessionKey, rpt)
	metrics.CancelsTotal.Inc()
	e.log.Info().Str("cl_ord_id", origClOrdID).Msg("order cancelled")
}

// Replace processes a cancel/replace request: the original is marked
// REPLACED, fills carry over, and unless the active mode is MANUAL the
// replacement re-enters submit-style dispatch for its residual quantity.
func (e *Engine) Replace(origClOrdID string, newOrder *types.Order, sessionKey string) {
	orig, err := e.book.Get(origClOrdID)
	if err != nil {
		e.log.Warn().Str("orig_cl_ord_id", origClOrdID).Msg("replace request for unknown order")
		e.sendCancelReject(sessionKey, newOrder.ClOrdID, origClOrdID, "Unknown order")
		return
	}
	if newOrder.SessionKey == "" {
		newOrder.SessionKey = sessionKey
	}

	unlock := e.lockOrder(origClOrdID)
	replacement, err := e.book.Replace(origClOrdID, newOrder)
	if err != nil {
		unlock()
		reason := "Order not open"
		if err == types.ErrInvalidQuantity {
			reason = "Replace quantity below filled quantity"
		}
		e.sendCancelReject(sessionKey, newOrder.ClOrdID, origClOrdID, reason)
		return
	}

	rpt := e.newReport(replacement, types.ExecTypeReplaced)
	rpt.OrigClOrdID = orig.ClOrdID
	e.send(replacement.SessionKey, rpt)
	unlock()
	metrics.ReplacesTotal.Inc()

	cfg := e.Config()
	if replacement.LeavesQuantity > 0 && cfg.FillMode != ModeManual {
		if cfg.RejectProbability > 0 && rand.Float64() < cfg.RejectProbability {
			_ = e.rejectOrder(replacement.ClOrdID, cfg.RejectReason)
			return
		}
		e.dispatch(replacement, cfg)
	}
}

// dispatch executes an accepted order according to the given policy snapshot.
func (e *Engine) dispatch(o types.Order, cfg Config) {
	switch cfg.FillMode {
	case ModeImmediateFull:
		_, _ = e.fill(o.ClOrdID, o.LeavesQuantity, e.executionPrice(o, cfg))

	case ModeImmediatePartial:
		e.immediatePartial(o, cfg)

	case ModeDelayed:
		clOrdID := o.ClOrdID
		e.sched.Schedule(time.Duration(cfg.DelayMs)*time.Millisecond, func() {
			cur, err := e.book.Get(clOrdID)
			if err != nil || !cur.IsOpen() {
				return
			}
			_, _ = e.fill(clOrdID, cur.LeavesQuantity, e.executionPrice(cur, e.Config()))
		})

	case ModeMarketSimulation:
		e.marketSimulation(o, cfg)

	case ModeRejectAll:
		_ = e.rejectOrder(o.ClOrdID, cfg.RejectReason)

	case ModeManual:
		e.log.Info().Str("cl_ord_id", o.ClOrdID).Msg("order queued for manual execution")
	}
}

// immediatePartial fills max(minPartialQty, percentage of leaves) capped at
// leaves, then hands the residual to the scheduled partial-fill loop.
func (e *Engine) immediatePartial(o types.Order, cfg Config) {
	total := o.LeavesQuantity
	qty := total * int64(cfg.PartialFillPercentage) / 100
	if qty < cfg.MinPartialFillQty {
		qty = cfg.MinPartialFillQty
	}
	if qty > total {
		qty = total
	}
	_, _ = e.fill(o.ClOrdID, qty, e.executionPrice(o, cfg))

	if cur, err := e.book.Get(o.ClOrdID); err == nil && cur.IsOpen() && cur.LeavesQuantity > 0 {
		e.scheduleRemainingFills(o.ClOrdID, o.Quantity)
	}
}

// scheduleRemainingFills continues an IMMEDIATE_PARTIAL chain: 25% of the
// original quantity per iteration at a randomized delay, bounded by the
// configured minimum fill quantity and the remaining leaves. Once the
// per-order counter reaches the configured maximum, one final full-remainder
// fill is scheduled and the counter is cleared.
func (e *Engine) scheduleRemainingFills(clOrdID string, originalQty int64) {
	cfg := e.Config()
	count := e.partialCount(clOrdID)

	cur, err := e.book.Get(clOrdID)
	if err != nil || !cur.IsOpen() {
		e.clearPartialCount(clOrdID)
		return
	}

	if count >= cfg.MaxPartialFills || cur.LeavesQuantity == 0 {
		if cur.LeavesQuantity > 0 {
			e.sched.Schedule(finalFillDelay, func() {
				cur, err := e.book.Get(clOrdID)
				if err != nil || !cur.IsOpen() {
					return
				}
				_, _ = e.fill(clOrdID, cur.LeavesQuantity, e.executionPrice(cur, e.Config()))
			})
		}
		e.clearPartialCount(clOrdID)
		return
	}

	e.sched.Schedule(e.randomFillDelay(cfg), func() {
		cfg := e.Config()
		cur, err := e.book.Get(clOrdID)
		if err != nil || !cur.IsOpen() {
			e.clearPartialCount(clOrdID)
			return
		}

		qty := originalQty / 4
		if qty < cfg.MinPartialFillQty {
			qty = cfg.MinPartialFillQty
		}
		if qty > cur.LeavesQuantity {
			qty = cur.LeavesQuantity
		}

		_, _ = e.fill(clOrdID, qty, e.executionPrice(cur, cfg))
		e.bumpPartialCount(clOrdID)

		if next, err := e.book.Get(clOrdID); err == nil && next.IsOpen() && next.LeavesQuantity > 0 {
			e.scheduleRemainingFills(clOrdID, originalQty)
		} else {
			e.clearPartialCount(clOrdID)
		}
	})
}

// marketSimulation routes marketable orders into a short burst of random
// fills and leaves non-marketable limit orders resting in the book.
func (e *Engine) marketSimulation(o types.Order, cfg Config) {
	if o.IsLimit() {
		ref := e.oracle.ExecutionPrice(o.Symbol, o.Side, nil)
		marketable := o.Price.GreaterThanOrEqual(ref)
		if !o.IsBuy() {
			marketable = o.Price.LessThanOrEqual(ref)
		}
		if !marketable {
			e.scheduleRestingFills(o.ClOrdID)
			return
		}
	}
	e.scheduleRandomFills(o, cfg)
}

// scheduleRandomFills books 1-4 fills at randomized intervals summing to the
// full leaves quantity, each at the execution price perturbed by up to
// +/-0.05%.
func (e *Engine) scheduleRandomFills(o types.Order, cfg Config) {
	remaining := o.LeavesQuantity
	numFills := 1 + rand.Intn(4)
	delay := marketFillBaseDelay
	clOrdID := o.ClOrdID

	for i := 0; i < numFills && remaining > 0; i++ {
		var qty int64
		if i == numFills-1 || remaining < 2 {
			qty = remaining
		} else {
			qty = rand.Int63n(remaining/2) + 1
			if qty < cfg.MinPartialFillQty {
				qty = cfg.MinPartialFillQty
			}
			if qty > remaining {
				qty = remaining
			}
		}

		fillQty := qty
		e.sched.Schedule(delay, func() {
			cur, err := e.book.Get(clOrdID)
			if err != nil || !cur.IsOpen() {
				return
			}
			px := e.executionPrice(cur, e.Config())
			variation := px.Mul(decimal.NewFromFloat((rand.Float64() - 0.5) * 0.001))
			px = px.Add(variation).Round(priceScale)

			q := fillQty
			if q > cur.LeavesQuantity {
				q = cur.LeavesQuantity
			}
			_, _ = e.fill(clOrdID, q, px)
		})

		remaining -= fillQty
		delay += marketFillStep + time.Duration(rand.Int63n(int64(marketFillStepJitter)))
	}
}

// scheduleRestingFills polls a resting limit order: each tick has a 50%
// chance of filling a random quantity at the order's own limit price, and
// reschedules itself while the order stays open.
func (e *Engine) scheduleRestingFills(clOrdID string) {
	e.sched.Schedule(e.restingPollDelay(), func() {
		cur, err := e.book.Get(clOrdID)
		if err != nil || !cur.IsOpen() {
			return
		}
		if rand.Intn(2) == 0 {
			cfg := e.Config()
			qty := cfg.MinPartialFillQty + rand.Int63n(cur.LeavesQuantity)
			if qty > cur.LeavesQuantity {
				qty = cur.LeavesQuantity
			}
			_, _ = e.fill(clOrdID, qty, cur.Price)
		}
		if next, err := e.book.Get(clOrdID); err == nil && next.IsOpen() && next.LeavesQuantity > 0 {
			e.scheduleRestingFills(clOrdID)
		}
	})
}

// fill books one fill and emits its report. The caller's quantity is clamped
// to the current leaves; closed or vanished orders return an error that
// scheduled callers ignore.
func (e *Engine) fill(clOrdID string, qty int64, px decimal.Decimal) (types.ExecutionReport, error) {
	unlock := e.lockOrder(clOrdID)
	defer unlock()

	o, err := e.book.Get(clOrdID)
	if err != nil {
		return types.ExecutionReport{}, err
	}
	if !o.IsOpen() {
		return types.ExecutionReport{}, types.ErrOrderNotOpen
	}
	if qty <= 0 {
		return types.ExecutionReport{}, types.ErrInvalidQuantity
	}
	if qty > o.LeavesQuantity {
		qty = o.LeavesQuantity
	}

	updated, err := e.book.ApplyFill(clOrdID, qty, px)
	if err != nil {
		return types.ExecutionReport{}, err
	}

	execType := types.ExecTypePartialFill
	if updated.Status == types.StatusFilled {
		execType = types.ExecTypeFill
	}
	rpt := e.newReport(updated, execType)
	rpt.LastQty = qty
	rpt.LastPx = px
	e.send(updated.SessionKey, rpt)
	metrics.FillsTotal.Inc()

	if e.Config().LogExecutions {
		e.log.Info().
			Str("cl_ord_id", clOrdID).
			Str("side", string(updated.Side)).
			Str("symbol", updated.Symbol).
			Int64("last_qty", qty).
			Str("last_px", px.String()).
			Int64("filled", updated.FilledQuantity).
			Int64("leaves", updated.LeavesQuantity).
			Msg("fill")
	}
	return rpt, nil
}

// rejectOrder moves an order to REJECTED and emits the reject report.
func (e *Engine) rejectOrder(clOrdID, reason string) error {
	unlock := e.lockOrder(clOrdID)
	defer unlock()

	rejected, err := e.book.Reject(clOrdID)
	if err != nil {
		return err
	}

	rpt := e.newReport(rejected, types.ExecTypeRejected)
	rpt.Text = reason
	e.send(rejected.SessionKey, rpt)
	metrics.OrdersRejected.Inc()
	e.log.Info().Str("cl_ord_id", clOrdID).Str("reason", reason).Msg("order rejected")
	return nil
}

func (e *Engine) sendAck(o types.Order) {
	unlock := e.lockOrder(o.ClOrdID)
	defer unlock()
	e.send(o.SessionKey, e.newReport(o, types.ExecTypeNew))
}

func (e *Engine) newReport(o types.Order, execType types.ExecType) types.ExecutionReport {
	return types.ExecutionReport{
		ExecID:       e.book.NextExecID(),
		OrderID:      o.OrderID,
		ClOrdID:      o.ClOrdID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		OrderType:    o.OrderType,
		ExecType:     execType,
		OrdStatus:    o.Status,
		OrderQty:     o.Quantity,
		CumQty:       o.FilledQuantity,
		LeavesQty:    o.LeavesQuantity,
		AvgPx:        o.AvgPrice,
		Price:        o.Price,
		TransactTime: time.Now(),
	}
}

func (e *Engine) send(sessionKey string, rpt types.ExecutionReport) {
	if err := e.sink.SendReport(sessionKey, rpt); err != nil {
		e.log.Error().Err(err).
			Str("cl_ord_id", rpt.ClOrdID).
			Str("exec_type", string(rpt.ExecType)).
			Msg("failed to deliver execution report")
		return
	}
	metrics.ReportsSent.WithLabelValues(string(rpt.ExecType)).Inc()
}

func (e *Engine) sendCancelReject(sessionKey, clOrdID, origClOrdID, reason string) {
	reject := types.CancelReject{
		OrderID:      "UNKNOWN",
		ClOrdID:      clOrdID,
		OrigClOrdID:  origClOrdID,
		Reason:       reason,
		TransactTime: time.Now(),
	}
	if err := e.sink.SendCancelReject(sessionKey, reject); err != nil {
		e.log.Error().Err(err).Str("orig_cl_ord_id", origClOrdID).Msg("failed to deliver cancel reject")
	}
	metrics.CancelRejectsTotal.Inc()
}

// executionPrice resolves the price a fill should print at: the
// marketable-constrained price for limit orders, bid/ask plus configured
// slippage for market orders, rounded half-up.
func (e *Engine) executionPrice(o types.Order, cfg Config) decimal.Decimal {
	var limit *decimal.Decimal
	if o.IsLimit() {
		p := o.Price
		limit = &p
	}
	px := e.oracle.ExecutionPrice(o.Symbol, o.Side, limit)
	if o.IsMarket() && cfg.PriceSlippage.IsPositive() {
		if o.IsBuy() {
			px = px.Add(cfg.PriceSlippage)
		} else {
			px = px.Sub(cfg.PriceSlippage)
		}
	}
	return px.Round(priceScale)
}

func (e *Engine) randomFillDelay(cfg Config) time.Duration {
	jitter := cfg.MaxFillDelayMs - cfg.MinFillDelayMs
	ms := cfg.MinFillDelayMs
	if jitter > 0 {
		ms += rand.Int63n(jitter + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Engine) restingPollDelay() time.Duration {
	return restingPollBase + time.Duration(rand.Int63n(int64(restingPollJitter)))
}

func (e *Engine) lockOrder(clOrdID string) func() {
	e.locksMu.Lock()
	m, ok := e.locks[clOrdID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[clOrdID] = m
	}
	e.locksMu.Unlock()
	m.Lock()
	return m.Unlock
}

func (e *Engine) partialCount(clOrdID string) int {
	e.countMu.Lock()
	defer e.countMu.Unlock()
	if v, ok := e.partialFills[clOrdID]; ok {
		return v
	}
	e.partialFills[clOrdID] = 1
	return 1
}

func (e *Engine) bumpPartialCount(clOrdID string) {
	e.countMu.Lock()
	defer e.countMu.Unlock()
	if _, ok := e.partialFills[clOrdID]; !ok {
		e.partialFills[clOrdID] = 2
		return
	}
	e.partialFills[clOrdID]++
}

func (e *Engine) clearPartialCount(clOrdID string) {
	e.countMu.Lock()
	defer e.countMu.Unlock()
	delete(e.partialFills, clOrdID)
}
