package orchestrator

import "errors"

var (
	// ErrInvalidOperation is returned when the request does not fit the
	// current call or audio state.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrDeviceUnavailable is returned when the engine refused a device,
	// scene, mute or volume change.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrLocalResourceMissing is returned when a required collaborator was
	// not supplied.
	ErrLocalResourceMissing = errors.New("local resource missing")
)
