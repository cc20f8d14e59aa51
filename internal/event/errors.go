package event

import "errors"

var (
	// ErrBusClosed is returned by Emit after the bus has stopped.
	ErrBusClosed = errors.New("event: bus closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("event: handler panicked")
)
