package execution

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jag2430/fix-executor/internal/types"
)

// FillMode determines how accepted orders are executed.
type FillMode string

const (
	// ModeImmediateFull fills the entire order synchronously.
	ModeImmediateFull FillMode = "IMMEDIATE_FULL"
	// ModeImmediatePartial fills part of the order synchronously, the rest
	// over scheduled callbacks.
	ModeImmediatePartial FillMode = "IMMEDIATE_PARTIAL"
	// ModeDelayed fills the full order after a configured delay.
	ModeDelayed FillMode = "DELAYED"
	// ModeMarketSimulation simulates realistic matching against the quote.
	ModeMarketSimulation FillMode = "MARKET_SIMULATION"
	// ModeRejectAll rejects every order.
	ModeRejectAll FillMode = "REJECT_ALL"
	// ModeManual rests orders until a manual execute or reject arrives.
	ModeManual FillMode = "MANUAL"
)

// ParseFillMode converts a mode name, case-insensitively.
func ParseFillMode(s string) (FillMode, error) {
	switch m := FillMode(strings.ToUpper(s)); m {
	case ModeImmediateFull, ModeImmediatePartial, ModeDelayed,
		ModeMarketSimulation, ModeRejectAll, ModeManual:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrUnknownMode, s)
	}
}

// Config is the hot-swappable execution policy. Every scheduled callback
// reads the current config at fire time, not at schedule time, so changes
// take effect on the next tick of any in-flight sequence.
type Config struct {
	FillMode              FillMode        `json:"fill_mode"`
	PartialFillPercentage int             `json:"partial_fill_percentage"`
	DelayMs               int64           `json:"delay_ms"`
	MinFillDelayMs        int64           `json:"min_fill_delay_ms"`
	MaxFillDelayMs        int64           `json:"max_fill_delay_ms"`
	RejectProbability     float64         `json:"reject_probability"`
	PriceSlippage         decimal.Decimal `json:"price_slippage"`
	MinPartialFillQty     int64           `json:"min_partial_fill_qty"`
	MaxPartialFills       int             `json:"max_partial_fills"`
	RejectReason          string          `json:"reject_reason"`
	LogExecutions         bool            `json:"log_executions"`
}

// DefaultConfig mirrors the defaults orders get before any operator change.
func DefaultConfig() Config {
	return Config{
		FillMode:              ModeImmediateFull,
		PartialFillPercentage: 50,
		DelayMs:               1000,
		MinFillDelayMs:        500,
		MaxFillDelayMs:        1500,
		RejectProbability:     0,
		PriceSlippage:         decimal.Zero,
		MinPartialFillQty:     10,
		MaxPartialFills:       5,
		RejectReason:          "Order rejected by exchange",
		LogExecutions:         true,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if _, err := ParseFillMode(string(c.FillMode)); err != nil {
		return err
	}
	if c.PartialFillPercentage < 0 || c.PartialFillPercentage > 100 {
		return fmt.Errorf("partial_fill_percentage must be within [0,100], got %d", c.PartialFillPercentage)
	}
	if c.RejectProbability < 0 || c.RejectProbability > 1 {
		return fmt.Errorf("reject_probability must be within [0,1], got %v", c.RejectProbability)
	}
	if c.DelayMs < 0 || c.MinFillDelayMs < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.MaxFillDelayMs < c.MinFillDelayMs {
		return fmt.Errorf("max_fill_delay_ms %d below min_fill_delay_ms %d", c.MaxFillDelayMs, c.MinFillDelayMs)
	}
	if c.MinPartialFillQty < 1 {
		return fmt.Errorf("min_partial_fill_qty must be at least 1, got %d", c.MinPartialFillQty)
	}
	if c.MaxPartialFills < 1 {
		return fmt.Errorf("max_partial_fills must be at least 1, got %d", c.MaxPartialFills)
	}
	if c.PriceSlippage.IsNegative() {
		return fmt.Errorf("price_slippage must not be negative")
	}
	return nil
}
