package mpd

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"syscall"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/zap"
)

// client is the subset of *mpd.Client the player uses
type client interface {
	Pause(pause bool) error
	Play(pos int) error
	Next() error
	Previous() error
	SetVolume(volume int) error
	Status() (mpd.Attrs, error)
	Close() error
}

// Dialer opens a new command connection
type Dialer func() (client, error)

// NewDialer returns a Dialer for the MPD server at addr
func NewDialer(network, addr, password string) Dialer {
	return func() (client, error) {
		var (
			c   *mpd.Client
			err error
		)
		if password != "" {
			c, err = mpd.DialAuthenticated(network, addr, password)
		} else {
			c, err = mpd.Dial(network, addr)
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Player controls an MPD server. It implements domain.Player.
//
// MPD drops idle command connections after its connection_timeout, so a
// command that fails on a dead connection is retried once on a fresh one.
// Errors reported by the server and timeouts are never retried: the command
// may already have been applied.
type Player struct {
	logger *zap.Logger
	dial   Dialer

	mu       sync.Mutex
	conn     client
	released bool
}

// NewPlayer connects to MPD and returns a player bound to it
func NewPlayer(logger *zap.Logger, dial Dialer) (*Player, error) {
	conn, err := dial()
	if err != nil {
		return nil, fmt.Errorf("mpd dial failed: %w", err)
	}

	logger.Info("MPD player connected")

	return &Player{
		logger: logger,
		dial:   dial,
		conn:   conn,
	}, nil
}

// do runs fn on the command connection, redialling once on failure
func (p *Player) do(name string, fn func(c client) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return domain.ErrReleased
	}

	if p.conn != nil {
		err := fn(p.conn)
		if err == nil {
			return nil
		}
		if !connectionLost(err) {
			return fmt.Errorf("mpd %s: %w", name, err)
		}
		p.logger.Debug("MPD command failed, reconnecting",
			zap.String("command", name),
			zap.Error(err))
		p.dropConn()
	}

	conn, err := p.dial()
	if err != nil {
		return fmt.Errorf("mpd %s: reconnect: %w", name, err)
	}
	p.conn = conn

	if err := fn(conn); err != nil {
		return fmt.Errorf("mpd %s: %w", name, err)
	}
	return nil
}

// connectionLost reports whether err means the connection is gone before the
// command reached the server
func connectionLost(err error) bool {
	var serverErr mpd.Error
	var serverErrPtr *mpd.Error
	if errors.As(err, &serverErr) || errors.As(err, &serverErrPtr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// dropConn closes and forgets the current connection. Caller holds mu.
func (p *Player) dropConn() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Debug("Failed to close MPD connection", zap.Error(err))
	}
	p.conn = nil
}

// Pause pauses playback
func (p *Player) Pause() error {
	return p.do("pause", func(c client) error { return c.Pause(true) })
}

// Resume resumes a paused track or starts the current one
func (p *Player) Resume() error {
	return p.do("play", func(c client) error { return c.Play(-1) })
}

// GoToNext skips to the next track
func (p *Player) GoToNext() error {
	return p.do("next", func(c client) error { return c.Next() })
}

// GoToPrevious skips to the previous track
func (p *Player) GoToPrevious() error {
	return p.do("previous", func(c client) error { return c.Previous() })
}

// SetVolume maps level in [0.0, 1.0] onto MPD's 0-100 volume
func (p *Player) SetVolume(level float64) error {
	volume := VolumePercent(level)
	return p.do("setvol", func(c client) error { return c.SetVolume(volume) })
}

// VolumePercent converts a volume fraction to MPD's integer percentage
func VolumePercent(level float64) int {
	volume := int(math.Round(level * 100))
	return max(0, min(100, volume))
}

// Release closes the command connection. It is idempotent.
func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true

	var err error
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	p.logger.Info("MPD player released")
	return err
}
