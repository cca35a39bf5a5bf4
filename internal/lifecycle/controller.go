package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/genricoloni/midicontrol/internal/dispatcher"
	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultPortIndex is the MIDI input opened on attach. There is no user selection.
const DefaultPortIndex = 0

var pluginInfo = domain.PluginInfo{
	Name:             "MIDIControl",
	Author:           "Andreas Thiede",
	ShortDescription: "Control the media player using MIDI commands",
	Category:         "addons",
}

// Controller owns the MIDI input and the player handle and attaches the
// dispatcher to the transport. It implements domain.Plugin.
type Controller struct {
	logger       *zap.Logger
	newTransport domain.TransportFactory
	dispatcher   *dispatcher.Dispatcher

	// active is checked before taking mu on every delivery
	active atomic.Bool

	// mu guards everything below. Deliveries hold the read lock while dispatching,
	// so taking the write lock waits for in-flight commands.
	mu        sync.RWMutex
	state     domain.State
	player    domain.Player
	transport domain.Transport
	input     domain.Input
}

// NewController creates a new lifecycle controller in the Uninitialized state
func NewController(logger *zap.Logger, newTransport domain.TransportFactory, d *dispatcher.Dispatcher) *Controller {
	return &Controller{
		logger:       logger,
		newTransport: newTransport,
		dispatcher:   d,
		state:        domain.StateUninitialized,
	}
}

// Info returns the plugin description
func (c *Controller) Info() domain.PluginInfo {
	return pluginInfo
}

// State returns the current lifecycle state
func (c *Controller) State() domain.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Initialize acquires the player handle and attaches the first MIDI input.
// With no input present the plugin stays loaded without MIDI dispatch and
// reports StatusPartialSuccess.
func (c *Controller) Initialize(ctx context.Context, services domain.Services) (domain.Status, error) {
	c.logger.Info("Initialize called")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.StateUninitialized {
		return domain.StatusFatal, fmt.Errorf("%w: state %s", domain.ErrAlreadyInitialized, c.state)
	}
	c.state = domain.StateAttaching

	// 1. Player control capability
	capability, err := services.Acquire(ctx, domain.PlayerServiceID)
	if err != nil {
		c.logger.Error("Failed to get player service", zap.Error(err))
		c.rollback()
		return domain.StatusFatal, fmt.Errorf("%w: %w", domain.ErrDependencyUnavailable, err)
	}
	player, ok := capability.(domain.Player)
	if !ok {
		_ = capability.Release()
		c.logger.Error("Player service does not provide playback control",
			zap.String("type", fmt.Sprintf("%T", capability)))
		c.rollback()
		return domain.StatusFatal, fmt.Errorf("%w: unexpected capability %T", domain.ErrDependencyUnavailable, capability)
	}
	c.player = player

	// 2. MIDI transport and device discovery
	transport, err := c.newTransport()
	if err != nil {
		c.logger.Error("Failed to create MIDI transport", zap.Error(err))
		c.rollback()
		return domain.StatusFatal, fmt.Errorf("%w: %w", domain.ErrDeviceInitFailed, err)
	}
	c.transport = transport

	count, err := transport.PortCount()
	if err != nil {
		c.logger.Error("Failed to enumerate MIDI inputs", zap.Error(err))
		c.rollback()
		return domain.StatusFatal, fmt.Errorf("%w: %w", domain.ErrDeviceInitFailed, err)
	}

	if count == 0 {
		c.logger.Warn("MIDI input unavailable, player control stays loaded",
			zap.Error(domain.ErrNoDeviceFound))
		if err := transport.Close(); err != nil {
			c.logger.Warn("Failed to close MIDI transport", zap.Error(err))
		}
		c.transport = nil
		c.state = domain.StateNoDevice
		return domain.StatusPartialSuccess, nil
	}

	// 3. Open the fixed port and register the dispatcher with no category filtering
	input, err := transport.Open(DefaultPortIndex)
	if err != nil {
		c.logger.Error("Failed to open MIDI input",
			zap.Int("port", DefaultPortIndex),
			zap.Error(err))
		c.rollback()
		return domain.StatusFatal, fmt.Errorf("%w: open port %d: %w", domain.ErrDeviceInitFailed, DefaultPortIndex, err)
	}
	c.input = input

	if err := input.Listen(domain.Filter{}, c.onMessage); err != nil {
		c.logger.Error("Failed to register MIDI sink", zap.Error(err))
		c.rollback()
		return domain.StatusFatal, fmt.Errorf("%w: listen: %w", domain.ErrDeviceInitFailed, err)
	}

	c.state = domain.StateActive
	c.active.Store(true)

	c.logger.Info("MIDI input initialized",
		zap.Int("ports", count),
		zap.Int("port", DefaultPortIndex))
	return domain.StatusSuccess, nil
}

// rollback releases whatever a failed Initialize acquired. Caller holds mu.
func (c *Controller) rollback() {
	if err := c.releaseAll(c.detach()); err != nil {
		c.logger.Warn("Cleanup after failed initialization was incomplete", zap.Error(err))
	}
	c.state = domain.StateUninitialized
}

// handles is a snapshot of the resources detached from the controller
type handles struct {
	player    domain.Player
	transport domain.Transport
	input     domain.Input
}

// detach moves the resources out of the controller. Caller holds mu.
func (c *Controller) detach() handles {
	h := handles{player: c.player, transport: c.transport, input: c.input}
	c.player = nil
	c.transport = nil
	c.input = nil
	return h
}

// releaseAll closes the input before the transport and releases the player.
// Each step runs even if an earlier one failed.
func (c *Controller) releaseAll(h handles) error {
	var err error
	if h.input != nil {
		err = multierr.Append(err, h.input.Close())
	}
	if h.transport != nil {
		err = multierr.Append(err, h.transport.Close())
	}
	if h.player != nil {
		err = multierr.Append(err, h.player.Release())
	}
	return err
}

// Finalize releases the player handle and the MIDI input. It is valid in any
// state, idempotent, and never fails.
func (c *Controller) Finalize() domain.Status {
	c.logger.Info("Finalize called")

	// Stop new deliveries, then wait for in-flight ones by taking the write lock
	c.active.Store(false)

	c.mu.Lock()
	from := c.state
	c.state = domain.StateFinalizing
	h := c.detach()
	// An Initialize that held mu may have set the flag again
	c.active.Store(false)
	c.mu.Unlock()

	// Release outside the lock: closing the input may wait for the delivery
	// goroutine, which may be blocked on mu.
	if err := c.releaseAll(h); err != nil {
		c.logger.Warn("Cleanup errors ignored during finalize", zap.Error(err))
	}

	c.mu.Lock()
	c.state = domain.StateUninitialized
	c.mu.Unlock()

	c.logger.Info("Finalized", zap.Stringer("from", from))
	return domain.StatusSuccess
}

// Notify logs a host notification. It never changes state.
func (c *Controller) Notify(n domain.Notification) {
	c.logger.Info("System notification received",
		zap.String("kind", string(n.Kind)),
		zap.String("source", n.Source),
		zap.String("status", string(n.Status)))
}

// onMessage is the sink registered with the transport. It runs on the
// transport's delivery goroutine.
func (c *Controller) onMessage(timestamp float64, msg []byte) {
	if !c.active.Load() {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != domain.StateActive || c.player == nil {
		return
	}
	c.dispatcher.Dispatch(msg, c.player)
}
