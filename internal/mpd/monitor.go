package mpd

import (
	"context"
	"fmt"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/zap"
)

// Idle subsystems the monitor subscribes to
const (
	subsystemPlayer = "player"
	subsystemMixer  = "mixer"
)

// idleSource is an open idle subscription
type idleSource struct {
	events <-chan string
	errors <-chan error
	close  func() error
}

// Monitor turns MPD idle events into host notifications.
// It implements domain.Monitor.
type Monitor struct {
	logger *zap.Logger
	source string
	watch  func() (*idleSource, error)
	dial   Dialer
	events chan domain.Notification

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor for the MPD server at addr
func NewMonitor(logger *zap.Logger, network, addr, password string) *Monitor {
	return &Monitor{
		logger: logger,
		source: addr,
		watch: func() (*idleSource, error) {
			w, err := mpd.NewWatcher(network, addr, password, subsystemPlayer, subsystemMixer)
			if err != nil {
				return nil, err
			}
			return &idleSource{events: w.Event, errors: w.Error, close: w.Close}, nil
		},
		dial:   NewDialer(network, addr, password),
		events: make(chan domain.Notification, 10),
	}
}

// Start subscribes to idle events. It blocks until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	src, err := m.watch()
	if err != nil {
		m.logger.Error("Failed to subscribe to MPD idle events", zap.Error(err))
		return fmt.Errorf("mpd watcher failed: %w", err)
	}
	defer func() {
		if err := src.close(); err != nil {
			m.logger.Warn("Failed to close MPD watcher", zap.Error(err))
		}
	}()

	m.logger.Info("MPD monitor started", zap.String("server", m.source))

	for {
		select {
		case <-monitorCtx.Done():
			m.logger.Info("MPD monitor stopped")
			return monitorCtx.Err()

		case err, ok := <-src.errors:
			if !ok {
				src.errors = nil
				continue
			}
			// Watcher errors do not end the event stream
			m.logger.Warn("MPD watcher error", zap.Error(err))

		case subsystem, ok := <-src.events:
			if !ok {
				return fmt.Errorf("mpd watcher closed")
			}
			m.handleSubsystem(subsystem)
		}
	}
}

// Stop cancels the subscription and closes the events channel
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)

	m.logger.Info("MPD monitor shutdown complete")
	return nil
}

// Events returns a read-only channel of player notifications
func (m *Monitor) Events() <-chan domain.Notification {
	return m.events
}

// handleSubsystem maps one idle event to a notification. MPD only reports
// which subsystem changed, so the player state is queried on a short-lived
// connection.
func (m *Monitor) handleSubsystem(subsystem string) {
	switch subsystem {
	case subsystemPlayer:
		m.emit(domain.Notification{
			Kind:   domain.NotifyPlaybackChanged,
			Source: m.source,
			Status: m.fetchStatus(),
		})
	case subsystemMixer:
		m.emit(domain.Notification{Kind: domain.NotifyVolumeChanged, Source: m.source})
	default:
		m.logger.Debug("Ignoring MPD idle event", zap.String("subsystem", subsystem))
	}
}

// fetchStatus returns the current player state, StatusUnknown on failure
func (m *Monitor) fetchStatus() domain.PlayerStatus {
	c, err := m.dial()
	if err != nil {
		m.logger.Debug("MPD status dial failed", zap.Error(err))
		return domain.StatusUnknown
	}
	defer c.Close()

	attrs, err := c.Status()
	if err != nil {
		m.logger.Debug("MPD status failed", zap.Error(err))
		return domain.StatusUnknown
	}
	return parseState(attrs["state"])
}

// parseState maps the MPD status "state" attribute to the domain status
func parseState(state string) domain.PlayerStatus {
	switch state {
	case "play":
		return domain.StatusPlaying
	case "pause":
		return domain.StatusPaused
	case "stop":
		return domain.StatusStopped
	default:
		return domain.StatusUnknown
	}
}

// emit sends n without blocking the idle loop
func (m *Monitor) emit(n domain.Notification) {
	select {
	case m.events <- n:
	default:
		m.logger.Warn("Events channel full, dropping notification",
			zap.String("kind", string(n.Kind)))
	}
}
