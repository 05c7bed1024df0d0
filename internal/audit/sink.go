package audit

import (
	"github.com/rs/zerolog"

	"github.com/jag2430/fix-executor/internal/execution"
	"github.com/jag2430/fix-executor/internal/types"
)

// Sink journals reports before forwarding them to the real sink. Journal
// failures are logged, never allowed to block delivery.
type Sink struct {
	next  execution.ReportSink
	store *Store
	log   zerolog.Logger
}

func NewSink(next execution.ReportSink, store *Store, log zerolog.Logger) *Sink {
	return &Sink{
		next:  next,
		store: store,
		log:   log.With().Str("component", "audit").Logger(),
	}
}

func (s *Sink) SendReport(sessionKey string, report types.ExecutionReport) error {
	if err := s.store.RecordReport(sessionKey, report); err != nil {
		s.log.Error().Err(err).Str("exec_id", report.ExecID).Msg("failed to journal report")
	}
	return s.next.SendReport(sessionKey, report)
}

func (s *Sink) SendCancelReject(sessionKey string, reject types.CancelReject) error {
	if err := s.store.RecordCancelReject(sessionKey, reject); err != nil {
		s.log.Error().Err(err).Str("cl_ord_id", reject.ClOrdID).Msg("failed to journal cancel reject")
	}
	return s.next.SendCancelReject(sessionKey, reject)
}
