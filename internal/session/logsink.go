package session

import (
	"github.com/rs/zerolog"

	"github.com/jag2430/fix-executor/internal/types"
)

// LogSink is a ClientSink that writes reports to the log. It stands in for
// the wire protocol engine when the executor runs without one attached.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "report_sink").Logger()}
}

func (s *LogSink) OnReport(report types.ExecutionReport) error {
	s.log.Info().
		Str("exec_id", report.ExecID).
		Str("cl_ord_id", report.ClOrdID).
		Str("exec_type", string(report.ExecType)).
		Str("ord_status", string(report.OrdStatus)).
		Int64("last_qty", report.LastQty).
		Str("last_px", report.LastPx.String()).
		Int64("cum_qty", report.CumQty).
		Int64("leaves_qty", report.LeavesQty).
		Str("avg_px", report.AvgPx.String()).
		Msg("execution report")
	return nil
}

func (s *LogSink) OnCancelReject(reject types.CancelReject) error {
	s.log.Info().
		Str("cl_ord_id", reject.ClOrdID).
		Str("orig_cl_ord_id", reject.OrigClOrdID).
		Str("reason", reject.Reason).
		Msg("cancel reject")
	return nil
}
