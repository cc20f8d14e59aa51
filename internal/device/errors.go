package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID, slug or
	// external ID is already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidProtocol is returned when a protocol value is not recognised.
	ErrInvalidProtocol = errors.New("device: invalid protocol")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("device: invalid slug")

	// ErrInvalidFeature is returned when a feature category or type is not recognised.
	ErrInvalidFeature = errors.New("device: invalid feature")

	// ErrFeatureNotFound is returned when a device has no feature of the
	// requested category and type, or no feature has the external ID.
	ErrFeatureNotFound = errors.New("device: feature not found")

	// ErrParamNotFound is returned when a device has no parameter of that name.
	ErrParamNotFound = errors.New("device: param not found")
)
