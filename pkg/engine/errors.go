package engine

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, caller-facing failure classification. Codes tell
// the caller what to do next: retry (TRADE_CONFLICT), top up
// (INSUFFICIENT_BALANCE), or abandon the request.
type ErrorCode string

const (
	CodeInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeMarketFrozen        ErrorCode = "MARKET_FROZEN"
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeInsufficientShares  ErrorCode = "INSUFFICIENT_SHARES"
	CodeTradeConflict       ErrorCode = "TRADE_CONFLICT"
	CodeConsistencyFailure  ErrorCode = "CONSISTENCY_FAILURE"
)

// TradeError is the typed failure every engine operation returns. All codes
// except CodeConsistencyFailure are expected, recoverable-by-caller
// conditions; a consistency failure means a compensating action failed and
// the affected market has been halted pending manual reconciliation.
type TradeError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *TradeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TradeError) Unwrap() error { return e.Cause }

// Retryable reports whether the caller may safely retry the whole request.
// A retried request should carry the same idempotency key.
func (e *TradeError) Retryable() bool { return e.Code == CodeTradeConflict }

func newError(code ErrorCode, message string) *TradeError {
	return &TradeError{Code: code, Message: message}
}

func wrapError(code ErrorCode, message string, cause error) *TradeError {
	return &TradeError{Code: code, Message: message, Cause: cause}
}

// AsTradeError extracts a TradeError from an error chain.
func AsTradeError(err error) (*TradeError, bool) {
	var te *TradeError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
