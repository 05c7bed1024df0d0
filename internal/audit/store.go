// Package audit journals every outbound report so the control surface can
// replay what the simulator told its counterparties.
package audit

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jag2430/fix-executor/internal/types"
)

// Store reads and writes the report journal.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RecordReport journals one execution report.
func (s *Store) RecordReport(sessionKey string, r types.ExecutionReport) error {
	rec := ReportRecord{
		RecordID:    uuid.New().String(),
		Kind:        kindReport,
		ExecID:      r.ExecID,
		OrderID:     r.OrderID,
		ClOrdID:     r.ClOrdID,
		OrigClOrdID: r.OrigClOrdID,
		Symbol:      r.Symbol,
		Side:        string(r.Side),
		ExecType:    string(r.ExecType),
		OrdStatus:   string(r.OrdStatus),
		LastQty:     r.LastQty,
		LastPx:      r.LastPx,
		CumQty:      r.CumQty,
		LeavesQty:   r.LeavesQty,
		AvgPx:       r.AvgPx,
		Text:        r.Text,
		SessionKey:  sessionKey,
		SentAt:      r.TransactTime,
	}
	return s.db.Create(&rec).Error
}

// RecordCancelReject journals one cancel reject.
func (s *Store) RecordCancelReject(sessionKey string, r types.CancelReject) error {
	rec := ReportRecord{
		RecordID:    uuid.New().String(),
		Kind:        kindCancelReject,
		OrderID:     r.OrderID,
		ClOrdID:     r.ClOrdID,
		OrigClOrdID: r.OrigClOrdID,
		Text:        r.Reason,
		SessionKey:  sessionKey,
		SentAt:      r.TransactTime,
	}
	return s.db.Create(&rec).Error
}

// List returns the most recent records, newest first.
func (s *Store) List(limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []ReportRecord
	err := s.db.Order("id desc").Limit(limit).Find(&recs).Error
	return recs, err
}

// ListByClOrdID returns every record for one client order id, oldest first.
func (s *Store) ListByClOrdID(clOrdID string) ([]ReportRecord, error) {
	var recs []ReportRecord
	err := s.db.Where("cl_ord_id = ? OR orig_cl_ord_id = ?", clOrdID, clOrdID).
		Order("id asc").Find(&recs).Error
	return recs, err
}

// Clear drops the whole journal.
func (s *Store) Clear() error {
	return s.db.Where("1 = 1").Delete(&ReportRecord{}).Error
}
