package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass classifies a failed attempt for logs and metrics. Every class is
// retried the same way.
type ErrorClass string

const (
	// ErrorClassTimeout represents an attempt that hit its deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport failures (DNS, refused, reset).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassStatus represents any non-200 HTTP response.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassDecode represents a 200 response whose body is not a page document.
	ErrorClassDecode ErrorClass = "decode"
)

// FetchError describes one failed attempt at a page.
type FetchError struct {
	Page       int
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("page %d: %s error (status %d): %v", e.Page, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("page %d: %s error: %v", e.Page, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err. Errors that are not a *FetchError are
// classified as transport errors.
func ClassOf(err error) ErrorClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return classifyTransportError(err)
}

// classifyTransportError separates deadline hits from other transport failures.
func classifyTransportError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}
