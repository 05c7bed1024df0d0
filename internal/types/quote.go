package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketQuote is a point-in-time bid/ask pair for a symbol.
type MarketQuote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	BidSize   int64           `json:"bid_size"`
	AskSize   int64           `json:"ask_size"`
	Volume    int64           `json:"volume"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Mid returns the bid/ask midpoint, or the last price when one side is missing.
func (q MarketQuote) Mid() decimal.Decimal {
	if q.Bid.IsPositive() && q.Ask.IsPositive() {
		return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
	}
	return q.Last
}

// Spread returns ask minus bid.
func (q MarketQuote) Spread() decimal.Decimal {
	if q.Bid.IsPositive() && q.Ask.IsPositive() {
		return q.Ask.Sub(q.Bid)
	}
	return decimal.Zero
}
