package zwave

import "errors"

var (
	// ErrCommandTimeout is logged when the daemon never answers a request
	// within the response timeout.
	ErrCommandTimeout = errors.New("zwave: driver did not answer command")

	// ErrStopped is returned by operations after Stop.
	ErrStopped = errors.New("zwave: bridge stopped")

	// ErrSceneNotFound is returned for an unknown scene id.
	ErrSceneNotFound = errors.New("zwave: scene not found")

	// ErrSceneTableFull is returned when all 255 scene ids are taken.
	ErrSceneTableFull = errors.New("zwave: scene table full")

	// ErrBadEvent is returned by the event decoder for malformed messages.
	ErrBadEvent = errors.New("zwave: bad event")
)
