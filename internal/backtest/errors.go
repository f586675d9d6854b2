package backtest

import (
	"errors"
	"fmt"
)

// ErrorKind classifies back-test failures
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// Request validation (client errors)
	KindInvalidRequest
	KindInvalidTradingDay
	KindNoData
	// Recovered per row, never returned by Run
	KindInsufficientHistory
	// Evaluator / calculator contracts
	KindUnsupportedOperator
	KindUnsupportedConvention
	// Collaborator failure
	KindStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindInvalidTradingDay:
		return "InvalidTradingDay"
	case KindNoData:
		return "NoData"
	case KindInsufficientHistory:
		return "InsufficientHistory"
	case KindUnsupportedOperator:
		return "UnsupportedOperator"
	case KindUnsupportedConvention:
		return "UnsupportedConvention"
	case KindStore:
		return "Store"
	default:
		return "Unknown"
	}
}

// Error is a classified back-test error.
// Field names the offending request field for KindInvalidRequest.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Cause   error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrInvalidTradingDay     = &Error{Kind: KindInvalidTradingDay, Message: "not a valid trading day"}
	ErrNoData                = &Error{Kind: KindNoData, Message: "no data available for the given date range"}
	ErrInsufficientHistory   = &Error{Kind: KindInsufficientHistory, Message: "insufficient history"}
	ErrUnsupportedOperator   = &Error{Kind: KindUnsupportedOperator, Message: "unsupported operator"}
	ErrUnsupportedConvention = &Error{Kind: KindUnsupportedConvention, Message: "unsupported purchase convention"}
)

func newError(kind ErrorKind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on kind so callers can test against the sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsClientError reports whether err should be surfaced to the caller as a
// request problem rather than a server fault.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInvalidRequest, KindInvalidTradingDay, KindNoData:
		return true
	default:
		return false
	}
}
