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
	// ErrDeviceNotFound is returned when no device has the given home/node id.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrValueNotFound is returned when a value id is not present on a device.
	ErrValueNotFound = errors.New("device: value not found")

	// ErrCapabilityNotFound is returned when a device has no value matching
	// the requested command class and label.
	ErrCapabilityNotFound = errors.New("device: capability not found")

	// ErrValueTypeUnsupported is returned for a declared type the gateway
	// cannot convert to.
	ErrValueTypeUnsupported = errors.New("device: value type unsupported")

	// ErrBadValue is returned when text cannot be converted to the declared
	// type of a value.
	ErrBadValue = errors.New("device: bad value")

	// ErrNoMapping is returned when a device's generic/specific class pair
	// has no capability class mapping.
	ErrNoMapping = errors.New("device: no class mapping")
)
