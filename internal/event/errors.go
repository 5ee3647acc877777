package event

import (
	"errors"
	"strconv"
)

// ErrHandlerPanic is wrapped by errors reported for panicking handlers.
var ErrHandlerPanic = errors.New("handler panicked")

// HandlerError wraps an error from a subscriber with its subscription id.
type HandlerError struct {
	SubscriptionID uint64
	Err            error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler error for subscription " + strconv.FormatUint(e.SubscriptionID, 10) + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
