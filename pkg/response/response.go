// Package response standardizes the control-surface API envelope.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jag2430/fix-executor/internal/types"
)

// Response represents a standardized API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeOrderNotOpen      = "ORDER_NOT_OPEN"
	ErrCodeInvalidQuantity   = "INVALID_QUANTITY"
	ErrCodeUnknownMode       = "UNKNOWN_MODE"
)

// Handle maps a domain error to the appropriate response, or sends data on
// success.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrOrderNotFound):
		NotFound(c, "Order not found")
	case errors.Is(err, types.ErrQuoteUnavailable):
		NotFound(c, "No market data for symbol")
	case errors.Is(err, types.ErrDuplicateOrder):
		Conflict(c, "Order already exists")
	case errors.Is(err, types.ErrOrderNotOpen):
		fail(c, http.StatusBadRequest, ErrCodeOrderNotOpen, "Order is not open")
	case errors.Is(err, types.ErrInvalidQuantity):
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuantity, err.Error())
	case errors.Is(err, types.ErrUnknownMode):
		fail(c, http.StatusBadRequest, ErrCodeUnknownMode, err.Error())
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response.
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}
	c.JSON(status, Response{Success: true, Data: data})
}

// NotFound sends a 404 response.
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response.
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response.
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Conflict sends a 409 response.
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

// InternalError sends a 500 response.
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   &Error{Code: code, Message: message},
	})
}
