package mpris

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/midicontrol/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// Monitor watches MPRIS players on the session bus and turns their signals
// into host notifications. It implements domain.Monitor.
type Monitor struct {
	logger          *zap.Logger
	dial            func() (DBusClient, error)
	events          chan domain.Notification
	mu              sync.RWMutex
	running         bool
	cancel          context.CancelFunc
	conn            DBusClient
	lastDropWarning time.Time         // Rate limiting for "channel full" warnings
	wg              sync.WaitGroup    // Tracks active producer goroutines
	playerNames     map[string]string // Maps unique bus names (:1.45) to well-known names
}

// NewMonitor creates a new MPRIS monitor instance
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		logger: logger,
		dial: func() (DBusClient, error) {
			return NewStdDBusClient()
		},
		events:      make(chan domain.Notification, 10),
		playerNames: make(map[string]string),
	}
}

// Start begins monitoring. It blocks until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	conn, err := m.dial()
	if err != nil {
		m.logger.Error("Failed to connect to session bus", zap.Error(err))
		m.mu.Lock()
		defer m.mu.Unlock()
		m.running = false
		m.cancel = nil
		cancel()
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	// Stopped while connecting
	select {
	case <-monitorCtx.Done():
		if err := conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
		return monitorCtx.Err()
	default:
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.wg.Add(1)
	func() {
		defer m.wg.Done()
		if err := m.detectExistingPlayers(); err != nil {
			m.logger.Warn("Failed to detect existing players", zap.Error(err))
		}
	}()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		m.logger.Error("Failed to add match signal", zap.Error(err))
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		// Non-fatal, continue without appear/vanish notifications
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	}

	m.wg.Add(1)
	go m.monitorSignals(monitorCtx)

	m.logger.Info("MPRIS monitor started")

	<-monitorCtx.Done()

	m.logger.Info("MPRIS monitor stopped")
	return monitorCtx.Err()
}

// Stop gracefully stops the monitor and closes the events channel
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()

	// Producers must finish before the channel is closed
	m.wg.Wait()
	close(m.events)

	m.mu.Lock()
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
		m.conn = nil
	}
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor shutdown complete")
	return nil
}

// Events returns a read-only channel of player notifications
func (m *Monitor) Events() <-chan domain.Notification {
	return m.events
}

// detectExistingPlayers maps the players already on the bus and reports them
func (m *Monitor) detectExistingPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	playerCount := 0
	for _, name := range names {
		if !strings.HasPrefix(name, busNamePrefix) {
			continue
		}
		playerCount++

		if uniqueName, err := m.conn.GetNameOwner(name); err == nil {
			m.mu.Lock()
			m.playerNames[uniqueName] = name
			m.mu.Unlock()
		}

		m.emit(domain.Notification{
			Kind:   domain.NotifyPlayerAppeared,
			Source: name,
			Status: m.fetchStatus(name),
		})
	}

	m.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchStatus reads PlaybackStatus, returning StatusUnknown on any failure
func (m *Monitor) fetchStatus(dest string) domain.PlayerStatus {
	variant, err := m.conn.GetProperty(dest, objectPath, playerInterface+".PlaybackStatus")
	if err != nil {
		m.logger.Debug("Failed to fetch playback status",
			zap.String("player", dest),
			zap.Error(err))
		return domain.StatusUnknown
	}
	status, ok := variant.Value().(string)
	if !ok {
		return domain.StatusUnknown
	}
	return parseStatus(status)
}

// monitorSignals listens for D-Bus signals and processes them
func (m *Monitor) monitorSignals(ctx context.Context) {
	defer m.wg.Done()

	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			if sig == nil {
				continue
			}
			if sig.Name == "org.freedesktop.DBus.NameOwnerChanged" {
				m.handleNameOwnerChanged(sig)
			} else {
				m.handleSignal(sig)
			}
		}
	}
}

// handleNameOwnerChanged tracks players appearing on and leaving the bus
func (m *Monitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, busNamePrefix) {
		return
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case newOwner != "" && oldOwner == "":
		m.mu.Lock()
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Info("New MPRIS player detected",
			zap.String("player", name),
			zap.String("unique", newOwner))
		m.emit(domain.Notification{Kind: domain.NotifyPlayerAppeared, Source: name})

	case newOwner == "" && oldOwner != "":
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.mu.Unlock()

		m.logger.Info("MPRIS player removed",
			zap.String("player", name),
			zap.String("unique", oldOwner))
		m.emit(domain.Notification{Kind: domain.NotifyPlayerVanished, Source: name})

	case newOwner != "" && oldOwner != "":
		// Ownership transfer, same player
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.playerNames[newOwner] = name
		m.mu.Unlock()
	}
}

// handleSignal turns a PropertiesChanged signal into notifications
func (m *Monitor) handleSignal(sig *dbus.Signal) {
	// Body: interface name, changed properties, invalidated properties
	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" {
		return
	}
	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerInterface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	playerName := m.getPlayerName(sig.Sender)

	if statusVariant, ok := changedProps["PlaybackStatus"]; ok {
		status, ok := statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring",
				zap.String("player", playerName))
		} else {
			m.emit(domain.Notification{
				Kind:   domain.NotifyPlaybackChanged,
				Source: playerName,
				Status: parseStatus(status),
			})
		}
	}

	if volumeVariant, ok := changedProps["Volume"]; ok {
		if _, ok := volumeVariant.Value().(float64); !ok {
			m.logger.Warn("Invalid volume format in signal, ignoring",
				zap.String("player", playerName))
		} else {
			m.emit(domain.Notification{Kind: domain.NotifyVolumeChanged, Source: playerName})
		}
	}
}

// parseStatus maps an MPRIS PlaybackStatus string to the domain status
func parseStatus(status string) domain.PlayerStatus {
	switch status {
	case "Playing":
		return domain.StatusPlaying
	case "Paused":
		return domain.StatusPaused
	case "Stopped":
		return domain.StatusStopped
	default:
		return domain.StatusUnknown
	}
}

// getPlayerName returns the well-known player name for a unique bus name.
// Falls back to the unique name if no mapping exists.
func (m *Monitor) getPlayerName(uniqueName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if wellKnown, ok := m.playerNames[uniqueName]; ok {
		return wellKnown
	}
	return uniqueName
}

// emit sends n without blocking the signal loop
func (m *Monitor) emit(n domain.Notification) {
	select {
	case m.events <- n:
		m.logger.Debug("Notification emitted",
			zap.String("kind", string(n.Kind)),
			zap.String("player", n.Source))
	default:
		m.logChannelFullWarning()
	}
}

// logChannelFullWarning logs a dropped notification at most once every 5 seconds
func (m *Monitor) logChannelFullWarning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()

	if now.Sub(m.lastDropWarning) >= warningInterval {
		m.logger.Warn("Events channel full, dropping notification")
		m.lastDropWarning = now
	}
}
