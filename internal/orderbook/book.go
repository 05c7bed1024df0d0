// Package orderbook is the authoritative store for all orders received by
// the simulator, indexed by client order id, exchange order id and symbol.
package orderbook

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jag2430/fix-executor/internal/types"
)

// avgPxScale is the precision of the running volume-weighted average price.
const avgPxScale = 4

// Book tracks every order and its lifecycle. All mutating methods are safe
// for concurrent use; mutations against the same client order id are fully
// serialized, so no caller ever observes a half-updated order.
type Book struct {
	mu        sync.RWMutex
	byClOrdID map[string]*types.Order
	byOrderID map[string]*types.Order
	bySymbol  map[string][]*types.Order

	orderSeq int64
	execSeq  int64
}

func NewBook() *Book {
	return &Book{
		byClOrdID: make(map[string]*types.Order),
		byOrderID: make(map[string]*types.Order),
		bySymbol:  make(map[string][]*types.Order),
	}
}

// Add registers a new order, assigning an exchange order id when absent.
// Resubmitting a client order id that still has an open entry fails with
// ErrDuplicateOrder.
func (b *Book) Add(o *types.Order) (types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(o)
}

func (b *Book) addLocked(o *types.Order) (types.Order, error) {
	if existing, ok := b.byClOrdID[o.ClOrdID]; ok && existing.IsOpen() {
		return types.Order{}, types.ErrDuplicateOrder
	}

	stored := *o
	if stored.OrderID == "" {
		stored.OrderID = b.nextOrderIDLocked()
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	b.byClOrdID[stored.ClOrdID] = &stored
	b.byOrderID[stored.OrderID] = &stored
	b.bySymbol[stored.Symbol] = append(b.bySymbol[stored.Symbol], &stored)

	log.Info().
		Str("cl_ord_id", stored.ClOrdID).
		Str("order_id", stored.OrderID).
		Str("symbol", stored.Symbol).
		Str("side", string(stored.Side)).
		Int64("quantity", stored.Quantity).
		Msg("order added to book")

	return stored, nil
}

// Get returns a copy of the order with the given client order id.
func (b *Book) Get(clOrdID string) (types.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byClOrdID[clOrdID]
	if !ok {
		return types.Order{}, types.ErrOrderNotFound
	}
	return *o, nil
}

// GetByOrderID returns a copy of the order with the given exchange order id.
func (b *Book) GetByOrderID(orderID string) (types.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byOrderID[orderID]
	if !ok {
		return types.Order{}, types.ErrOrderNotFound
	}
	return *o, nil
}

// Accept moves a pending order to NEW. Terminal orders are left untouched.
func (b *Book) Accept(clOrdID string) (types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byClOrdID[clOrdID]
	if !ok {
		return types.Order{}, types.ErrOrderNotFound
	}
	if !o.IsOpen() {
		return types.Order{}, types.ErrOrderNotOpen
	}
	if o.Status == types.StatusPending {
		o.Status = types.StatusNew
		o.UpdatedAt = time.Now()
	}
	return *o, nil
}

// ApplyFill books a fill against an open order, updating filled/leaves
// quantities, the running average price and the status. The fill quantity
// must be positive and no greater than the leaves quantity.
func (b *Book) ApplyFill(clOrdID string, fillQty int64, fillPx decimal.Decimal) (types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.byClOrdID[clOrdID]
	if !ok {
		return types.Order{}, types.ErrOrderNotFound
	}
	if !o.IsOpen() {
		return types.Order{}, types.ErrOrderNotOpen
	}
	if fillQty <= 0 || fillQty > o.LeavesQuantity {
		return types.Order{}, types.ErrInvalidQuantity
	}

	newFilled := o.FilledQuantity + fillQty

	// Running accumulation, never re-derived from history:
	// (avg*filled + px*qty) / newFilled, rounded half-up.
	oldNotional := o.AvgPrice.Mul(decimal.NewFromInt(o.FilledQuantity))
	newNotional := oldNotional.Add(fillPx.Mul(decimal.NewFromInt(fillQty)))
	o.AvgPrice = newNotional.DivRound(decimal.NewFromInt(newFilled), avgPxScale)

	o.FilledQuantity = newFilled
	o.LeavesQuantity = o.Quantity - newFilled
	if o.LeavesQuantity == 0 {
		o.Status = types.StatusFilled
	} else {
		o.Status = types.StatusPartiallyFilled
	}
	o.UpdatedAt = time.Now()

	return *o, nil
}

// Cancel closes an open order, zeroing its leaves quantity.
func (b *Book) Cancel(clOrdID string) (types.Order, error) {
	return b.terminate(clOrdID, types.StatusCancelled)
}

// Reject marks an open order rejected.
func (b *Book) Reject(clOrdID string) (types.Order, error) {
	return b.terminate(clOrdID, types.StatusRejected)
}

func (b *Book) terminate(clOrdID string, status types.OrdStatus) (types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.byClOrdID[clOrdID]
	if !ok {
		return types.Order{}, types.ErrOrderNotFound
	}
	if !o.IsOpen() {
		return types.Order{}, types.ErrOrderNotOpen
	}
	o.Status = status
	o.LeavesQuantity = 0
	o.UpdatedAt = time.Now()
	return *o, nil
}

// Replace marks the original order REPLACED and inserts newOrder as a fresh
// book entry carrying forward the original's filled quantity and average
// price. The new leaves quantity is newOrder.Quantity minus the carried
// fills; a new quantity below the carried fills fails with ErrInvalidQuantity
// and leaves the original untouched.
func (b *Book) Replace(origClOrdID string, newOrder *types.Order) (types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	orig, ok := b.byClOrdID[origClOrdID]
	if !ok {
		return types.Order{}, types.ErrOrderNotFound
	}
	if !orig.IsOpen() {
		return types.Order{}, types.ErrOrderNotOpen
	}
	if newOrder.Quantity < orig.FilledQuantity {
		return types.Order{}, types.ErrInvalidQuantity
	}
	if existing, ok := b.byClOrdID[newOrder.ClOrdID]; ok && existing.IsOpen() {
		return types.Order{}, types.ErrDuplicateOrder
	}

	orig.Status = types.StatusReplaced
	orig.UpdatedAt = time.Now()

	replacement := *newOrder
	replacement.OrderID = b.nextOrderIDLocked()
	replacement.FilledQuantity = orig.FilledQuantity
	replacement.AvgPrice = orig.AvgPrice
	replacement.LeavesQuantity = replacement.Quantity - orig.FilledQuantity
	if replacement.LeavesQuantity == 0 {
		replacement.Status = types.StatusFilled
	} else {
		replacement.Status = types.StatusNew
	}
	if replacement.SessionKey == "" {
		replacement.SessionKey = orig.SessionKey
	}

	return b.addLocked(&replacement)
}

// OpenOrders returns copies of every non-terminal order.
func (b *Book) OpenOrders() []types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]types.Order, 0)
	for _, o := range b.byClOrdID {
		if o.IsOpen() {
			res = append(res, *o)
		}
	}
	return res
}

// OpenOrdersBySymbol returns copies of the open orders for one symbol.
func (b *Book) OpenOrdersBySymbol(symbol string) []types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]types.Order, 0)
	for _, o := range b.bySymbol[symbol] {
		if o.IsOpen() {
			res = append(res, *o)
		}
	}
	return res
}

// AllOrders returns copies of every order in the book.
func (b *Book) AllOrders() []types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]types.Order, 0, len(b.byClOrdID))
	for _, o := range b.byClOrdID {
		res = append(res, *o)
	}
	return res
}

// Stats returns order counts grouped by status.
func (b *Book) Stats() map[types.OrdStatus]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := make(map[types.OrdStatus]int64)
	for _, o := range b.byClOrdID {
		stats[o.Status]++
	}
	return stats
}

// Count returns the total number of orders tracked.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byClOrdID)
}

// OpenCount returns the number of non-terminal orders.
func (b *Book) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, o := range b.byClOrdID {
		if o.IsOpen() {
			n++
		}
	}
	return n
}

// Clear drops every order. For test control only.
func (b *Book) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byClOrdID = make(map[string]*types.Order)
	b.byOrderID = make(map[string]*types.Order)
	b.bySymbol = make(map[string][]*types.Order)
	log.Info().Msg("order book cleared")
}

// NextExecID returns a unique execution id.
func (b *Book) NextExecID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.execSeq++
	return fmt.Sprintf("EXEC%08d", b.execSeq)
}

func (b *Book) nextOrderIDLocked() string {
	b.orderSeq++
	return fmt.Sprintf("ORD%08d", b.orderSeq)
}
