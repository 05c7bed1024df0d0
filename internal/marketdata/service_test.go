package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jag2430/fix-executor/internal/types"
)

// stubSource serves canned prices and counts fetches.
type stubSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (s *stubSource) LastPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	px, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("unknown symbol")
	}
	return px, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestService(src Source, ttl time.Duration) *Service {
	return NewService(src, ttl, decimal.RequireFromString("100.00"), zerolog.Nop())
}

func TestQuoteSynthesizesAroundLast(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("200.00")}}
	s := newTestService(src, time.Minute)

	q, err := s.Quote("AAPL")
	require.NoError(t, err)
	assert.True(t, q.Last.Equal(decimal.RequireFromString("200.00")))
	assert.True(t, q.Bid.LessThan(q.Last), "bid %s below last", q.Bid)
	assert.True(t, q.Ask.GreaterThan(q.Last), "ask %s above last", q.Ask)
	assert.True(t, q.Ask.Sub(q.Bid).GreaterThanOrEqual(decimal.RequireFromString("0.01")))
	assert.Positive(t, q.BidSize)
	assert.Positive(t, q.AskSize)
}

func TestQuoteSymbolIsCaseInsensitive(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("200.00")}}
	s := newTestService(src, time.Minute)

	q1, err := s.Quote("aapl")
	require.NoError(t, err)
	q2, err := s.Quote("AAPL")
	require.NoError(t, err)
	assert.Equal(t, q1.Symbol, q2.Symbol)
	assert.Equal(t, 1, src.callCount())
}

func TestQuoteCachedWithinTTL(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("200.00")}}
	s := newTestService(src, time.Minute)

	_, err := s.Quote("AAPL")
	require.NoError(t, err)
	_, err = s.Quote("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, src.callCount())
}

func TestQuoteRefetchedAfterTTL(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("200.00")}}
	s := newTestService(src, time.Millisecond)

	_, err := s.Quote("AAPL")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.Quote("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestQuoteUnavailable(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	s := newTestService(src, time.Minute)

	_, err := s.Quote("AAPL")
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)

	// No source at all behaves the same.
	s = newTestService(nil, time.Minute)
	_, err = s.Quote("AAPL")
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestStaleCacheServedWhenSourceFails(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("200.00")}}
	s := newTestService(src, time.Millisecond)

	_, err := s.Quote("AAPL")
	require.NoError(t, err)

	// Source goes dark; the stale entry keeps serving.
	src.mu.Lock()
	src.err = errors.New("connection refused")
	src.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	q, err := s.Quote("AAPL")
	require.NoError(t, err)
	assert.True(t, q.Last.Equal(decimal.RequireFromString("200.00")))
}

func TestOverrideBypassesSource(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{}}
	s := newTestService(src, time.Minute)

	q := s.Override("msft", decimal.RequireFromString("310.00"))
	assert.Equal(t, "MSFT", q.Symbol)
	assert.True(t, q.Last.Equal(decimal.RequireFromString("310.00")))

	got, err := s.Quote("MSFT")
	require.NoError(t, err)
	assert.True(t, got.Last.Equal(q.Last))
	assert.Equal(t, 0, src.callCount())
}

func TestRefreshForcesFetch(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("200.00")}}
	s := newTestService(src, time.Hour)

	_, err := s.Quote("AAPL")
	require.NoError(t, err)

	src.mu.Lock()
	src.prices["AAPL"] = decimal.RequireFromString("205.00")
	src.mu.Unlock()

	q, err := s.Refresh("AAPL")
	require.NoError(t, err)
	assert.True(t, q.Last.Equal(decimal.RequireFromString("205.00")))
	assert.Equal(t, 2, src.callCount())
}

func TestAllAndClearCache(t *testing.T) {
	s := newTestService(nil, time.Minute)
	s.Override("AAPL", decimal.RequireFromString("200.00"))
	s.Override("MSFT", decimal.RequireFromString("310.00"))

	assert.Len(t, s.All(), 2)
	s.ClearCache()
	assert.Empty(t, s.All())
}

func TestExecutionPriceLimitOrders(t *testing.T) {
	s := newTestService(nil, time.Minute)
	s.Override("AAPL", decimal.RequireFromString("100.00"))
	q, err := s.Quote("AAPL")
	require.NoError(t, err)

	// Buy limit below the ask executes at the limit.
	low := decimal.RequireFromString("90.00")
	px := s.ExecutionPrice("AAPL", types.SideBuy, &low)
	assert.True(t, px.Equal(low))

	// Buy limit through the ask executes at the ask.
	high := decimal.RequireFromString("200.00")
	px = s.ExecutionPrice("AAPL", types.SideBuy, &high)
	assert.True(t, px.Equal(q.Ask))

	// Sell limit above the bid executes at the limit.
	px = s.ExecutionPrice("AAPL", types.SideSell, &high)
	assert.True(t, px.Equal(high))

	// Sell limit through the bid executes at the bid.
	px = s.ExecutionPrice("AAPL", types.SideSell, &low)
	assert.True(t, px.Equal(q.Bid))
}

func TestExecutionPriceMarketOrders(t *testing.T) {
	s := newTestService(nil, time.Minute)
	s.Override("AAPL", decimal.RequireFromString("100.00"))
	q, err := s.Quote("AAPL")
	require.NoError(t, err)

	assert.True(t, s.ExecutionPrice("AAPL", types.SideBuy, nil).Equal(q.Ask))
	assert.True(t, s.ExecutionPrice("AAPL", types.SideSell, nil).Equal(q.Bid))
}

func TestExecutionPriceFallbacks(t *testing.T) {
	s := newTestService(nil, time.Minute)

	// No quote: limit orders execute at their limit.
	limit := decimal.RequireFromString("42.00")
	assert.True(t, s.ExecutionPrice("GME", types.SideBuy, &limit).Equal(limit))

	// No quote, no limit: the configured default.
	assert.True(t, s.ExecutionPrice("GME", types.SideSell, nil).Equal(decimal.RequireFromString("100.00")))
}
