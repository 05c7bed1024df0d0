package types

import "errors"

// Domain errors. Nothing in the simulator is fatal: API handlers map these
// to negative responses and protocol-side failures become cancel rejects.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNotOpen     = errors.New("order is not open")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrDuplicateOrder   = errors.New("duplicate client order id")
	ErrQuoteUnavailable = errors.New("no market data available")
	ErrUnknownMode      = errors.New("unknown fill mode")
	ErrNoSession        = errors.New("no active session")
)
