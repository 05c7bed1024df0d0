// Package marketdata provides TTL-cached market quotes for execution
// pricing, backed by a pluggable last-price source with a manual override
// for test control.
package marketdata

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jag2430/fix-executor/internal/metrics"
	"github.com/jag2430/fix-executor/internal/types"
)

const priceScale = 2

// minHalfSpread keeps synthesized quotes at least $0.01 wide.
var minHalfSpread = decimal.RequireFromString("0.005")

// Source supplies a last-trade price for a symbol.
type Source interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Service caches quotes per symbol and synthesizes a bid/ask pair around the
// source's last price. When the source is unreachable and nothing is cached,
// callers fall back to the order's limit price or the configured default
// rather than failing the fill.
type Service struct {
	mu      sync.RWMutex
	quotes  map[string]types.MarketQuote
	fetched map[string]time.Time

	source       Source
	ttl          time.Duration
	fetchTimeout time.Duration
	defaultPrice decimal.Decimal
	log          zerolog.Logger
}

// NewService creates the oracle. defaultPrice is the safe fallback for
// market orders with no quote and no limit price.
func NewService(source Source, ttl time.Duration, defaultPrice decimal.Decimal, log zerolog.Logger) *Service {
	return &Service{
		quotes:       make(map[string]types.MarketQuote),
		fetched:      make(map[string]time.Time),
		source:       source,
		ttl:          ttl,
		fetchTimeout: 5 * time.Second,
		defaultPrice: defaultPrice,
		log:          log.With().Str("component", "marketdata").Logger(),
	}
}

// Quote returns the cached quote for a symbol, refreshing from the backing
// source when the cache entry is missing or older than the TTL. With no
// source data and no cache it returns ErrQuoteUnavailable.
func (s *Service) Quote(symbol string) (types.MarketQuote, error) {
	symbol = strings.ToUpper(symbol)

	if s.stale(symbol) {
		s.refresh(symbol)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return types.MarketQuote{}, types.ErrQuoteUnavailable
	}
	return q, nil
}

// Override forces a quote for a symbol, bypassing the TTL. Manual test
// control via the API.
func (s *Service) Override(symbol string, price decimal.Decimal) types.MarketQuote {
	symbol = strings.ToUpper(symbol)
	q := s.synthesize(symbol, price.Round(priceScale))

	s.mu.Lock()
	s.quotes[symbol] = q
	s.fetched[symbol] = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("symbol", symbol).
		Str("price", price.String()).
		Str("bid", q.Bid.String()).
		Str("ask", q.Ask.String()).
		Msg("quote overridden")
	return q
}

// Refresh drops the TTL for a symbol and fetches a fresh quote.
func (s *Service) Refresh(symbol string) (types.MarketQuote, error) {
	symbol = strings.ToUpper(symbol)
	s.mu.Lock()
	delete(s.fetched, symbol)
	s.mu.Unlock()
	return s.Quote(symbol)
}

// All returns a copy of every cached quote.
func (s *Service) All() map[string]types.MarketQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make(map[string]types.MarketQuote, len(s.quotes))
	for sym, q := range s.quotes {
		res[sym] = q
	}
	return res
}

// ClearCache drops all cached quotes.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.quotes = make(map[string]types.MarketQuote)
	s.fetched = make(map[string]time.Time)
	s.mu.Unlock()
	s.log.Info().Msg("market data cache cleared")
}

// ExecutionPrice resolves the price an order of the given side executes at:
// min(limit, ask) for buy limits, max(limit, bid) for sell limits, the
// ask/bid for market orders. Without a quote it falls back to the limit
// price, or to the configured default for market orders.
func (s *Service) ExecutionPrice(symbol string, side types.Side, limitPrice *decimal.Decimal) decimal.Decimal {
	q, err := s.Quote(symbol)
	if err != nil {
		if limitPrice != nil {
			s.log.Info().
				Str("symbol", symbol).
				Str("limit", limitPrice.String()).
				Msg("no market data, executing at limit price")
			return *limitPrice
		}
		s.log.Warn().
			Str("symbol", symbol).
			Str("default", s.defaultPrice.String()).
			Msg("no market data for market order, using default price")
		return s.defaultPrice
	}

	if limitPrice != nil {
		if side == types.SideBuy {
			return decimal.Min(*limitPrice, q.Ask)
		}
		return decimal.Max(*limitPrice, q.Bid)
	}
	if side == types.SideBuy {
		return q.Ask
	}
	return q.Bid
}

func (s *Service) stale(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.fetched[symbol]
	if !ok {
		return true
	}
	return time.Since(at) > s.ttl
}

func (s *Service) refresh(symbol string) {
	if s.source == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	last, err := s.source.LastPrice(ctx, symbol)
	if err != nil {
		metrics.QuoteFailures.Inc()
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to fetch price from source")
		return
	}
	metrics.QuoteRefreshes.Inc()

	q := s.synthesize(symbol, last.Round(priceScale))
	s.mu.Lock()
	s.quotes[symbol] = q
	s.fetched[symbol] = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("symbol", symbol).
		Str("last", q.Last.String()).
		Str("bid", q.Bid.String()).
		Str("ask", q.Ask.String()).
		Msg("quote refreshed")
}

// synthesize builds a bid/ask pair around a last price using a randomized
// 0.01%-0.03% spread with an absolute floor.
func (s *Service) synthesize(symbol string, last decimal.Decimal) types.MarketQuote {
	spreadPct := decimal.NewFromFloat(0.0001 + rand.Float64()*0.0002)
	half := last.Mul(spreadPct).DivRound(decimal.NewFromInt(2), priceScale+1)
	if half.LessThan(minHalfSpread) {
		half = minHalfSpread
	}
	return types.MarketQuote{
		Symbol:    symbol,
		Last:      last,
		Bid:       last.Sub(half).Round(priceScale),
		Ask:       last.Add(half).Round(priceScale),
		BidSize:   100 + rand.Int63n(900),
		AskSize:   100 + rand.Int63n(900),
		Volume:    rand.Int63n(1_000_000),
		UpdatedAt: time.Now(),
	}
}
