// Package metrics exposes Prometheus instrumentation for the executor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_orders_submitted_total",
		Help: "Orders received by the execution engine.",
	})
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_orders_rejected_total",
		Help: "Orders rejected, whether by probability, mode or manual action.",
	})
	FillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_fills_total",
		Help: "Individual fills applied to the book.",
	})
	CancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_cancels_total",
		Help: "Orders cancelled.",
	})
	ReplacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_replaces_total",
		Help: "Orders replaced.",
	})
	CancelRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_cancel_rejects_total",
		Help: "Cancel/replace requests refused because the order was not open.",
	})
	ReportsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_executor_reports_sent_total",
		Help: "Execution reports emitted, by exec type.",
	}, []string{"exec_type"})
	ScheduledTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fix_executor_scheduled_tasks",
		Help: "Fill callbacks currently waiting in the scheduler.",
	})
	CallbackPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_callback_panics_total",
		Help: "Panics recovered inside scheduled fill callbacks.",
	})
	QuoteRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_quote_refreshes_total",
		Help: "Quotes fetched from the backing market data source.",
	})
	QuoteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fix_executor_quote_failures_total",
		Help: "Failed attempts to fetch a quote from the backing source.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
