package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecType identifies what an execution report describes.
type ExecType string

const (
	ExecTypeNew         ExecType = "NEW"
	ExecTypePartialFill ExecType = "PARTIAL_FILL"
	ExecTypeFill        ExecType = "FILL"
	ExecTypeCancelled   ExecType = "CANCELLED"
	ExecTypeReplaced    ExecType = "REPLACED"
	ExecTypeRejected    ExecType = "REJECTED"
)

// ExecutionReport is the outbound report for a single order state transition.
// LastQty/LastPx are set only on fills.
type ExecutionReport struct {
	ExecID       string          `json:"exec_id"`
	OrderID      string          `json:"order_id"`
	ClOrdID      string          `json:"cl_ord_id"`
	OrigClOrdID  string          `json:"orig_cl_ord_id,omitempty"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	OrderType    OrderType       `json:"order_type"`
	ExecType     ExecType        `json:"exec_type"`
	OrdStatus    OrdStatus       `json:"ord_status"`
	OrderQty     int64           `json:"order_qty"`
	LastQty      int64           `json:"last_qty,omitempty"`
	LastPx       decimal.Decimal `json:"last_px"`
	CumQty       int64           `json:"cum_qty"`
	LeavesQty    int64           `json:"leaves_qty"`
	AvgPx        decimal.Decimal `json:"avg_px"`
	Price        decimal.Decimal `json:"price"`
	Text         string          `json:"text,omitempty"`
	TransactTime time.Time       `json:"transact_time"`
}

// CancelReject is the negative acknowledgement for a cancel or replace
// request that could not be honoured.
type CancelReject struct {
	OrderID      string    `json:"order_id"`
	ClOrdID      string    `json:"cl_ord_id"`
	OrigClOrdID  string    `json:"orig_cl_ord_id"`
	Reason       string    `json:"reason"`
	TransactTime time.Time `json:"transact_time"`
}
