package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrSceneNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSceneNotFound is returned when no scene has the requested name.
	ErrSceneNotFound = errors.New("scene: not found")

	// ErrNoScenes is returned when the driver's scene table is empty.
	ErrNoScenes = errors.New("scene: no scenes created")

	// ErrInvalidName is returned when a scene name is empty.
	ErrInvalidName = errors.New("scene: invalid name")

	// ErrRoomNotFound is returned when no room has the requested name.
	ErrRoomNotFound = errors.New("room: not found")
)
