package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jag2430/fix-executor/internal/execution"
	"github.com/jag2430/fix-executor/internal/marketdata"
	"github.com/jag2430/fix-executor/internal/orderbook"
	"github.com/jag2430/fix-executor/internal/types"
)

var (
	symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	sides   = []types.Side{types.SideBuy, types.SideSell}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// collectorSink records every report the engine emits so scenarios can be
// summarized after the fact.
type collectorSink struct {
	mu      sync.Mutex
	reports []types.ExecutionReport
	rejects []types.CancelReject
}

func (c *collectorSink) SendReport(_ string, report types.ExecutionReport) error {
	c.mu.Lock()
	c.reports = append(c.reports, report)
	c.mu.Unlock()
	return nil
}

func (c *collectorSink) SendCancelReject(_ string, reject types.CancelReject) error {
	c.mu.Lock()
	c.rejects = append(c.rejects, reject)
	c.mu.Unlock()
	return nil
}

func (c *collectorSink) snapshot() ([]types.ExecutionReport, []types.CancelReject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ExecutionReport(nil), c.reports...),
		append([]types.CancelReject(nil), c.rejects...)
}

// scenario is one fill-mode exercise: a fresh book and engine, a batch of
// orders, and a wait long enough for the mode's scheduled fills to land.
type scenario struct {
	name   string
	config execution.Config
	orders int
	wait   time.Duration
	// extra runs after submission, for modes that need follow-up actions.
	extra func(e *execution.Engine, submitted []string)
}

func main() {
	base := execution.DefaultConfig()
	base.MinFillDelayMs = 50
	base.MaxFillDelayMs = 200
	base.DelayMs = 200

	scenarios := []scenario{
		{
			name:   "IMMEDIATE_FULL",
			config: withMode(base, execution.ModeImmediateFull),
			orders: 20,
			wait:   200 * time.Millisecond,
		},
		{
			name:   "IMMEDIATE_PARTIAL",
			config: withMode(base, execution.ModeImmediatePartial),
			orders: 10,
			wait:   3 * time.Second,
		},
		{
			name:   "DELAYED",
			config: withMode(base, execution.ModeDelayed),
			orders: 10,
			wait:   time.Second,
		},
		{
			name:   "MARKET_SIMULATION",
			config: withMode(base, execution.ModeMarketSimulation),
			orders: 10,
			wait:   5 * time.Second,
		},
		{
			name:   "REJECT_ALL",
			config: withMode(base, execution.ModeRejectAll),
			orders: 10,
			wait:   200 * time.Millisecond,
		},
		{
			name:   "MANUAL",
			config: withMode(base, execution.ModeManual),
			orders: 6,
			wait:   500 * time.Millisecond,
			extra: func(e *execution.Engine, submitted []string) {
				// Execute half manually, reject one, cancel one.
				for i, clOrdID := range submitted {
					switch {
					case i < len(submitted)/2:
						if _, err := e.ManualExecute(clOrdID, nil, nil); err != nil {
							log.Error().Err(err).Str("cl_ord_id", clOrdID).Msg("manual execute failed")
						}
					case i == len(submitted)/2:
						_ = e.ManualReject(clOrdID, "Manual reject from simulation")
					default:
						e.Cancel(clOrdID, clOrdID+"-CXL", "sim")
					}
				}
			},
		},
		{
			name:   "REJECT_PROBABILITY",
			config: withRejectProbability(withMode(base, execution.ModeImmediateFull), 0.3),
			orders: 40,
			wait:   300 * time.Millisecond,
		},
	}

	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("EXECUTION SIMULATOR SCENARIO RUN")
	fmt.Println(strings.Repeat("=", 72))

	for _, sc := range scenarios {
		runScenario(sc)
	}
}

func withMode(cfg execution.Config, mode execution.FillMode) execution.Config {
	cfg.FillMode = mode
	return cfg
}

func withRejectProbability(cfg execution.Config, p float64) execution.Config {
	cfg.RejectProbability = p
	return cfg
}

func runScenario(sc scenario) {
	book := orderbook.NewBook()
	market := marketdata.NewService(nil, 30*time.Second, decimal.NewFromInt(100), log.Logger)
	sink := &collectorSink{}
	engine := execution.NewEngine(book, market, sink, sc.config, log.Logger)
	defer engine.Close()

	// Seed quotes so limit orders have something to cross.
	for _, sym := range symbols {
		market.Override(sym, decimal.NewFromFloat(100+rand.Float64()*400))
	}

	start := time.Now()
	var submitted []string
	for i := 0; i < sc.orders; i++ {
		sym := symbols[rand.Intn(len(symbols))]
		side := sides[rand.Intn(len(sides))]
		order := &types.Order{
			ClOrdID:   fmt.Sprintf("%s-%03d", sc.name, i),
			Symbol:    sym,
			Side:      side,
			OrderType: types.OrderTypeLimit,
			Quantity:  int64(rand.Intn(400) + 100),
		}
		// Price through the quote so marketable checks pass most of the time.
		q, err := market.Quote(sym)
		if err == nil {
			if side == types.SideBuy {
				order.Price = q.Ask.Add(decimal.NewFromInt(1))
			} else {
				order.Price = q.Bid.Sub(decimal.NewFromInt(1))
			}
		}

		if err := engine.Submit(order, "sim"); err != nil {
			log.Error().Err(err).Str("cl_ord_id", order.ClOrdID).Msg("submit failed")
			continue
		}
		submitted = append(submitted, order.ClOrdID)
	}

	if sc.extra != nil {
		sc.extra(engine, submitted)
	}

	deadline := time.Now().Add(sc.wait)
	for time.Now().Before(deadline) {
		if engine.Pending() == 0 && book.OpenCount() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	reports, rejects := sink.snapshot()
	byType := make(map[types.ExecType]int)
	for _, r := range reports {
		byType[r.ExecType]++
	}
	stats := book.Stats()

	fmt.Printf("\n%s  (%d orders, %v)\n", sc.name, len(submitted), time.Since(start).Round(time.Millisecond))
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("  reports: %d  cancel rejects: %d\n", len(reports), len(rejects))
	for _, et := range []types.ExecType{
		types.ExecTypeNew, types.ExecTypePartialFill, types.ExecTypeFill,
		types.ExecTypeCancelled, types.ExecTypeReplaced, types.ExecTypeRejected,
	} {
		if n := byType[et]; n > 0 {
			fmt.Printf("    %-18s %d\n", et, n)
		}
	}
	fmt.Printf("  book: total=%d open=%d", book.Count(), book.OpenCount())
	for st, n := range stats {
		fmt.Printf(" %s=%d", st, n)
	}
	fmt.Println()
}
