package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline and infrastructure failures.
// Kinds determine retry and propagation behavior: transient kinds
// (RateLimit, Timeout, External) are retried with backoff, permanent
// kinds (NoData, Invalid, Calculation, Configuration) never are.
type ErrorKind string

const (
	ErrRateLimit     ErrorKind = "RATELIMIT"
	ErrTimeout       ErrorKind = "TIMEOUT"
	ErrExternal      ErrorKind = "EXTERNAL"
	ErrNoData        ErrorKind = "NODATA"
	ErrInvalid       ErrorKind = "INVALID"
	ErrDB            ErrorKind = "DBERROR"
	ErrCalculation   ErrorKind = "CALCULATION"
	ErrConfiguration ErrorKind = "CONFIGURATION"
)

// AppError is the discriminated error value threaded through every
// pipeline stage. Ticker identifies the subject when the error is
// captured into a scan's failures map.
type AppError struct {
	Kind   ErrorKind
	Ticker string
	Op     string
	Err    error
}

func (e *AppError) Error() string {
	switch {
	case e.Ticker != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s [%s]: %v", e.Op, e.Ticker, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
	case e.Ticker != "":
		return fmt.Sprintf("%s: %s [%s]", e.Op, e.Ticker, e.Kind)
	default:
		return fmt.Sprintf("%s [%s]", e.Op, e.Kind)
	}
}

func (e *AppError) Unwrap() error { return e.Err }

// NewError creates an AppError with the given kind.
func NewError(kind ErrorKind, op string, err error) *AppError {
	return &AppError{Kind: kind, Op: op, Err: err}
}

// Errorf creates an AppError from a format string.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithTicker returns a copy of the error tagged with a ticker symbol.
func (e *AppError) WithTicker(ticker string) *AppError {
	clone := *e
	clone.Ticker = ticker
	return &clone
}

// KindOf extracts the error kind from any error in the chain.
// Unclassified errors report as External.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrExternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether an error is worth retrying.
// Contract violations and missing data never recover on retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrRateLimit, ErrTimeout, ErrExternal:
		return true
	default:
		return false
	}
}
