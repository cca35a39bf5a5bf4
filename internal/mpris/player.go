package mpris

import (
	"fmt"
	"strings"
	"sync"

	"github.com/genricoloni/midicontrol/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	objectPath      = "/org/mpris/MediaPlayer2"
	busNamePrefix   = "org.mpris.MediaPlayer2."
	playerInterface = "org.mpris.MediaPlayer2.Player"
)

// Player controls one MPRIS media player over the session bus.
// It implements domain.Player.
type Player struct {
	logger  *zap.Logger
	conn    DBusClient
	busName string

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the session bus and binds a player.
// An empty busName selects the first MPRIS player found on the bus.
func Dial(logger *zap.Logger, busName string) (*Player, error) {
	conn, err := NewStdDBusClient()
	if err != nil {
		return nil, fmt.Errorf("session bus connection failed: %w", err)
	}

	p, err := NewPlayer(logger, conn, busName)
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			logger.Warn("Failed to close D-Bus connection", zap.Error(cerr))
		}
		return nil, err
	}
	return p, nil
}

// NewPlayer binds a player on an existing connection. The player owns conn
// and closes it on Release.
func NewPlayer(logger *zap.Logger, conn DBusClient, busName string) (*Player, error) {
	if busName == "" {
		detected, err := detectPlayer(conn)
		if err != nil {
			return nil, err
		}
		busName = detected
	}

	logger.Info("MPRIS player bound", zap.String("player", busName))

	return &Player{
		logger:  logger,
		conn:    conn,
		busName: busName,
	}, nil
}

// detectPlayer returns the first MPRIS player name on the bus
func detectPlayer(conn DBusClient) (string, error) {
	names, err := conn.ListNames()
	if err != nil {
		return "", fmt.Errorf("failed to list bus names: %w", err)
	}
	for _, name := range names {
		if strings.HasPrefix(name, busNamePrefix) {
			return name, nil
		}
	}
	return "", domain.ErrNoPlayer
}

// BusName returns the well-known name of the controlled player
func (p *Player) BusName() string {
	return p.busName
}

func (p *Player) call(member string) error {
	if err := p.conn.Call(p.busName, objectPath, playerInterface+"."+member); err != nil {
		return fmt.Errorf("mpris %s on %s: %w", member, p.busName, err)
	}
	return nil
}

// Pause pauses playback
func (p *Player) Pause() error {
	return p.call("Pause")
}

// Resume starts or resumes playback
func (p *Player) Resume() error {
	return p.call("Play")
}

// GoToNext skips to the next track
func (p *Player) GoToNext() error {
	return p.call("Next")
}

// GoToPrevious skips to the previous track
func (p *Player) GoToPrevious() error {
	return p.call("Previous")
}

// SetVolume writes the Volume property. MPRIS volume is already a 0.0-1.0 fraction.
func (p *Player) SetVolume(level float64) error {
	err := p.conn.SetProperty(p.busName, objectPath, playerInterface+".Volume", dbus.MakeVariant(level))
	if err != nil {
		return fmt.Errorf("mpris set volume on %s: %w", p.busName, err)
	}
	return nil
}

// Release closes the D-Bus connection. It is idempotent.
func (p *Player) Release() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
		p.logger.Info("MPRIS player released", zap.String("player", p.busName))
	})
	return p.closeErr
}
