package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order, from the counterparty's perspective.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrdStatus is the lifecycle state of an order in the book.
type OrdStatus string

const (
	StatusPending         OrdStatus = "PENDING"
	StatusNew             OrdStatus = "NEW"
	StatusPartiallyFilled OrdStatus = "PARTIALLY_FILLED"
	StatusFilled          OrdStatus = "FILLED"
	StatusCancelled       OrdStatus = "CANCELLED"
	StatusRejected        OrdStatus = "REJECTED"
	StatusReplaced        OrdStatus = "REPLACED"
)

// Terminal reports whether the status can never change again.
func (s OrdStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusReplaced:
		return true
	}
	return false
}

// Order is a client order as tracked by the simulator. The order book owns
// every Order record; callers always receive copies.
type Order struct {
	ClOrdID        string          `json:"cl_ord_id"`
	OrderID        string          `json:"order_id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	OrderType      OrderType       `json:"order_type"`
	Quantity       int64           `json:"quantity"`
	FilledQuantity int64           `json:"filled_quantity"`
	LeavesQuantity int64           `json:"leaves_quantity"`
	Price          decimal.Decimal `json:"price"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	Status         OrdStatus       `json:"status"`
	SessionKey     string          `json:"session_key"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsOpen reports whether the order can still be filled, cancelled or replaced.
func (o *Order) IsOpen() bool {
	return o.Status != "" && !o.Status.Terminal()
}

func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

func (o *Order) IsLimit() bool {
	return o.OrderType == OrderTypeLimit
}

func (o *Order) IsMarket() bool {
	return o.OrderType == OrderTypeMarket
}
