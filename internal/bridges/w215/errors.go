package w215

import (
	"errors"
	"fmt"
)

// Domain errors for the W215 bridge package.
var (
	// ErrConfiguration is the parent of every error that aborts a cycle
	// before any network call. It is the only error PollOnce returns.
	ErrConfiguration = errors.New("w215: configuration error")

	// ErrInvalidExternalID is returned when a device external ID does not
	// decode to "w215:<ip>" or "w215:<ip>:<port>".
	ErrInvalidExternalID = fmt.Errorf("%w: invalid external id", ErrConfiguration)

	// ErrMissingPin is returned when the device has no pin code parameter.
	ErrMissingPin = fmt.Errorf("%w: missing pin code", ErrConfiguration)

	// ErrInvalidPin is returned when the pin code is not a number.
	ErrInvalidPin = fmt.Errorf("%w: invalid pin code", ErrConfiguration)

	// ErrInvalidReading is returned for sentinel or unparseable readings.
	ErrInvalidReading = errors.New("w215: invalid reading")

	// ErrTransport wraps a failed feature fetch.
	ErrTransport = errors.New("w215: transport failure")

	// ErrCycleInProgress is returned when a cycle for the same device is
	// already running.
	ErrCycleInProgress = errors.New("w215: cycle already in progress")
)
