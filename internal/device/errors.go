package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or MAC has no stored record.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a required identifier is missing.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidDeviceType is returned when an update carries an empty or
	// over-long device type.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrInvalidLabel is returned when a label exceeds the maximum length.
	ErrInvalidLabel = errors.New("device: invalid label")

	// ErrConfigNotFound is returned when no LED configuration matches.
	ErrConfigNotFound = errors.New("device: led config not found")
)
