package gateway

import "errors"

// Domain errors for the gateway package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, gateway.ErrDeviceNotFound) {
//	    // device is offline
//	}
var (
	// ErrDeviceNotFound is returned when a device ID has no live session.
	ErrDeviceNotFound = errors.New("gateway: device not connected")

	// ErrNotIdentified is returned when a session sends anything other than
	// identification before identifying.
	ErrNotIdentified = errors.New("gateway: device not identified")

	// ErrMalformedFrame is returned when an inbound frame is not a JSON
	// object with a string type field.
	ErrMalformedFrame = errors.New("gateway: malformed frame")

	// ErrIdentityConflict is returned when an identified session presents a
	// hardware address that derives a different device ID.
	ErrIdentityConflict = errors.New("gateway: device identity cannot change")

	// ErrMissingMAC is returned when an identification frame has no mac.
	ErrMissingMAC = errors.New("gateway: identification requires mac")

	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("gateway: session closed")
)
