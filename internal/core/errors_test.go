// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "[TEST_ERROR] test message" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Code: "WRAP", Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return cause")
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(ErrNotFound, ErrNotFound) {
		t.Error("same error should match")
	}
	if errors.Is(ErrNotFound, ErrUnavailable) {
		t.Error("different codes should not match")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original")
	wrapped := WrapError(ErrTransient, cause)
	if wrapped.Cause != cause {
		t.Error("cause not set")
	}
	if wrapped.Code != ErrTransient.Code {
		t.Error("code not preserved")
	}
	if !errors.Is(fmt.Errorf("fetching BTC: %w", wrapped), ErrTransient) {
		t.Error("wrapped error should match through fmt.Errorf")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{WrapError(ErrNotFound, errors.New("x")), "NOT_FOUND"},
		{fmt.Errorf("outer: %w", ErrUnavailable), "UNAVAILABLE"},
		{errors.New("plain"), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(WrapError(ErrTransient, errors.New("timeout"))) {
		t.Error("transient errors should be retryable")
	}
	if Retryable(ErrUnavailable) || Retryable(ErrNotFound) {
		t.Error("permanent outcomes should not be retryable")
	}
}
