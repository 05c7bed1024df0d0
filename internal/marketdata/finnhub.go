package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultFinnhubURL is the REST endpoint quotes are fetched from.
const DefaultFinnhubURL = "https://finnhub.io/api/v1"

// FinnhubSource fetches real last-trade prices from the Finnhub quote
// endpoint. Without an API key every fetch fails and the oracle falls back
// to limit prices.
type FinnhubSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

func NewFinnhubSource(baseURL, apiKey string, log zerolog.Logger) *FinnhubSource {
	if baseURL == "" {
		baseURL = DefaultFinnhubURL
	}
	if apiKey == "" {
		log.Warn().Msg("no market data API key configured, orders will fill at limit prices")
	}
	return &FinnhubSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log.With().Str("component", "finnhub").Logger(),
	}
}

// quoteResponse is the Finnhub quote payload; "c" is the current price.
type quoteResponse struct {
	Current float64 `json:"c"`
	Error   string  `json:"error"`
}

// LastPrice fetches the current price for a symbol.
func (f *FinnhubSource) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if f.apiKey == "" {
		return decimal.Zero, fmt.Errorf("no API key configured")
	}

	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		f.baseURL, url.QueryEscape(symbol), url.QueryEscape(f.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return decimal.Zero, fmt.Errorf("rate limit reached for %s", symbol)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("quote request returned %d: %s", resp.StatusCode, body)
	}

	var q quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return decimal.Zero, fmt.Errorf("decoding quote response: %w", err)
	}
	if q.Error != "" {
		return decimal.Zero, fmt.Errorf("quote error for %s: %s", symbol, q.Error)
	}
	if q.Current <= 0 {
		return decimal.Zero, fmt.Errorf("no valid price for %s", symbol)
	}
	return decimal.NewFromFloat(q.Current), nil
}
