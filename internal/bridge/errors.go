package bridge

import "errors"

var (
	// ErrMissingClient is returned when the bridge is built without a broker client.
	ErrMissingClient = errors.New("bridge: mqtt client is required")

	// ErrMissingRouter is returned when the bridge is built without a router.
	ErrMissingRouter = errors.New("bridge: router is required")

	// ErrInvalidCommand is returned for command messages that cannot be routed.
	ErrInvalidCommand = errors.New("bridge: invalid command message")
)
