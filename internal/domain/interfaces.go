package domain

import "context"

// ServiceID identifies a capability in the host's service registry
type ServiceID string

// PlayerServiceID is the fixed identifier of the player control surface
const PlayerServiceID ServiceID = "player"

// Capability is a reference-counted handle obtained from a service registry
type Capability interface {
	// Release drops the caller's reference. It must be idempotent.
	Release() error
}

// Player is the playback control surface of a media player.
// All operations are synchronous and idempotent from the caller's perspective.
//
//go:generate mockgen -destination=mocks/player_mock.go -package=mocks github.com/genricoloni/midicontrol/internal/domain Player
type Player interface {
	Capability

	Pause() error
	Resume() error
	GoToNext() error
	GoToPrevious() error

	// SetVolume sets the volume to level, a fraction in [0.0, 1.0]
	SetVolume(level float64) error
}

// Services is the host's capability lookup
type Services interface {
	// Acquire returns a new reference to the capability registered under id
	Acquire(ctx context.Context, id ServiceID) (Capability, error)
}

// Sink receives raw MIDI messages on the transport's delivery goroutine.
// timestamp is in seconds; msg must not be retained after the call returns.
type Sink func(timestamp float64, msg []byte)

// Input is one open MIDI input source
type Input interface {
	// Listen registers sink as the message receiver and starts delivery
	Listen(filter Filter, sink Sink) error

	// Close stops delivery and releases the source.
	// No sink invocation starts after Close returns.
	Close() error
}

// Transport enumerates and opens MIDI input sources
type Transport interface {
	// PortCount returns the number of available input sources
	PortCount() (int, error)

	// Open opens the input source at index
	Open(index int) (Input, error)

	// Close releases the underlying driver
	Close() error
}

// TransportFactory creates a MIDI transport on demand
type TransportFactory func() (Transport, error)

// Plugin is the contract between the host runtime and a loaded plugin
type Plugin interface {
	Info() PluginInfo

	// Initialize attaches the plugin. A non-nil error always comes with StatusFatal.
	Initialize(ctx context.Context, services Services) (Status, error)

	// Finalize releases everything the plugin holds. It never fails.
	Finalize() Status

	// Notify delivers a host notification
	Notify(n Notification)
}

// Monitor defines the interface for watching a media player for notifications
type Monitor interface {
	// Start begins monitoring.
	// It should block until context is cancelled or an error occurs
	Start(ctx context.Context) error

	// Stop gracefully stops the monitor
	Stop(ctx context.Context) error

	// Events returns a read-only channel of notifications
	Events() <-chan Notification
}

// Config defines the interface for host configuration
type Config interface {
	// GetPlayerBackend returns "mpris" or "mpd"
	GetPlayerBackend() string

	// GetMprisPlayer returns the MPRIS bus name to control, empty for auto-detection
	GetMprisPlayer() string

	// GetMpdNetwork returns the MPD dial network ("tcp" or "unix")
	GetMpdNetwork() string

	// GetMpdAddress returns the MPD dial address
	GetMpdAddress() string

	// GetMpdPassword returns the MPD password, empty if none
	GetMpdPassword() string

	// GetMidiDriver returns "rtmidi" or "coremidi"
	GetMidiDriver() string

	// GetLogLevel returns the configured log level
	GetLogLevel() string
}
