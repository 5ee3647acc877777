package dap

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for requests on a closed client.
	ErrClosed = errors.New("dap client closed")

	// ErrRequestFailed is wrapped by RequestError.
	ErrRequestFailed = errors.New("dap request failed")
)

// RequestError reports an unsuccessful response from the debug adapter.
type RequestError struct {
	Command string
	Message string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed", e.Command)
	}
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// Unwrap lets errors.Is match ErrRequestFailed.
func (e *RequestError) Unwrap() error {
	return ErrRequestFailed
}
