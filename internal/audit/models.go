package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportRecord is one journaled outbound report. The journal lives in an
// in-memory database by default, so it shares the process lifetime of the
// order book.
type ReportRecord struct {
	gorm.Model  `json:"-"`
	RecordID    string          `gorm:"uniqueIndex" json:"record_id"`
	Kind        string          `json:"kind"` // REPORT or CANCEL_REJECT
	ExecID      string          `json:"exec_id,omitempty"`
	OrderID     string          `json:"order_id"`
	ClOrdID     string          `json:"cl_ord_id"`
	OrigClOrdID string          `json:"orig_cl_ord_id,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Side        string          `json:"side,omitempty"`
	ExecType    string          `json:"exec_type,omitempty"`
	OrdStatus   string          `json:"ord_status,omitempty"`
	LastQty     int64           `json:"last_qty"`
	LastPx      decimal.Decimal `gorm:"type:numeric" json:"last_px"`
	CumQty      int64           `json:"cum_qty"`
	LeavesQty   int64           `json:"leaves_qty"`
	AvgPx       decimal.Decimal `gorm:"type:numeric" json:"avg_px"`
	Text        string          `json:"text,omitempty"`
	SessionKey  string          `json:"session_key"`
	SentAt      time.Time       `json:"sent_at"`
}

const (
	kindReport       = "REPORT"
	kindCancelReject = "CANCEL_REJECT"
)
