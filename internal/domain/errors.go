package domain

import "errors"

var (
	// ErrDependencyUnavailable is returned when the player control capability cannot be obtained
	ErrDependencyUnavailable = errors.New("player control capability unavailable")
	// ErrDeviceInitFailed is returned when the MIDI transport cannot be opened or listened to
	ErrDeviceInitFailed = errors.New("MIDI device initialization failed")
	// ErrNoDeviceFound reports that no MIDI input source exists. Not fatal.
	ErrNoDeviceFound = errors.New("no MIDI input ports available")
	// ErrAlreadyInitialized is returned by Initialize outside the Uninitialized state
	ErrAlreadyInitialized = errors.New("plugin already initialized")
	// ErrServiceNotFound is returned by a service registry for an unknown identifier
	ErrServiceNotFound = errors.New("service not found")
	// ErrReleased is returned when a capability is used after Release
	ErrReleased = errors.New("capability already released")
	// ErrNoPlayer is returned when no media player can be located
	ErrNoPlayer = errors.New("no media player found")
)
