// Package gateway defines typed errors.
package gateway

import "errors"

// ErrorCode represents a typed error code.
type ErrorCode string

const (
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	CodeConfigInvalid       ErrorCode = "CONFIG_INVALID"
	CodeUnknownTier         ErrorCode = "UNKNOWN_TIER"
	CodeUnknownRoute        ErrorCode = "UNKNOWN_ROUTE"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeBindFailed          ErrorCode = "BIND_FAILED"
)

// AppError is a typed application error.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error returns the error message.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap creates a new AppError.
func Wrap(code ErrorCode, msg string, err error) error {
	return &AppError{Code: code, Message: msg, Err: err}
}

// CodeOf returns the ErrorCode for an error.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ErrInvalidInput indicates validation failures.
var ErrInvalidInput = &AppError{Code: CodeInvalidInput, Message: "invalid input"}

// ErrNotFound indicates missing resources.
var ErrNotFound = &AppError{Code: CodeNotFound, Message: "not found"}

// ErrUnknownTier indicates a tier name outside the canonical set.
var ErrUnknownTier = &AppError{Code: CodeUnknownTier, Message: "unknown tier"}
