// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Code returns the code of the first *Error in err's chain, or "UNKNOWN".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "UNKNOWN"
}

// Predefined errors
var (
	// Fetch outcomes
	ErrNotFound    = &Error{Code: "NOT_FOUND", Message: "no match upstream"}
	ErrUnavailable = &Error{Code: "UNAVAILABLE", Message: "upstream returned no usable data"}
	ErrTransient   = &Error{Code: "TRANSIENT", Message: "transient upstream failure"}

	// Data errors
	ErrInvalidSymbol = &Error{Code: "INVALID_SYMBOL", Message: "invalid symbol"}
	ErrNoData        = &Error{Code: "NO_DATA", Message: "no data available"}

	// Cache errors
	ErrCacheFailed = &Error{Code: "CACHE_FAILED", Message: "cache access failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
