package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Provider creates the underlying capability for a service.
// It is called on the first Acquire and again after the last reference is dropped.
type Provider func(ctx context.Context) (domain.Capability, error)

// entry is a live, shared capability
type entry struct {
	capability domain.Capability
	refs       int
	closed     bool
}

// Registry hands out reference-counted capability handles to plugins.
// The underlying capability is created lazily and released with its last reference.
type Registry struct {
	logger    *zap.Logger
	mu        sync.Mutex
	providers map[domain.ServiceID]Provider
	live      map[domain.ServiceID]*entry
}

// NewRegistry creates an empty service registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger,
		providers: make(map[domain.ServiceID]Provider),
		live:      make(map[domain.ServiceID]*entry),
	}
}

// Register installs provider under id, replacing any previous provider.
// Live references to a replaced capability stay valid until released.
func (r *Registry) Register(id domain.ServiceID, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = provider
	r.logger.Debug("Service registered", zap.String("service", string(id)))
}

// Acquire returns a new reference to the capability registered under id
func (r *Registry) Acquire(ctx context.Context, id domain.ServiceID) (domain.Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, id)
	}

	e, ok := r.live[id]
	if !ok {
		capability, err := provider(ctx)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", id, err)
		}
		e = &entry{capability: capability}
		r.live[id] = e
		r.logger.Info("Service started", zap.String("service", string(id)))
	}
	e.refs++

	r.logger.Debug("Service acquired",
		zap.String("service", string(id)),
		zap.Int("refs", e.refs))

	if player, ok := e.capability.(domain.Player); ok {
		return &playerHandle{Player: player, release: r.releaser(id, e)}, nil
	}
	return &handle{release: r.releaser(id, e)}, nil
}

// releaser returns the once-only release func for one reference to e
func (r *Registry) releaser(id domain.ServiceID, e *entry) func() error {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			err = r.drop(id, e)
		})
		return err
	}
}

// drop removes one reference and releases the capability with the last one
func (r *Registry) drop(id domain.ServiceID, e *entry) error {
	r.mu.Lock()
	e.refs--
	refs := e.refs
	closed := e.closed
	if refs == 0 && r.live[id] == e {
		delete(r.live, id)
	}
	r.mu.Unlock()

	r.logger.Debug("Service released",
		zap.String("service", string(id)),
		zap.Int("refs", refs))

	if refs > 0 || closed {
		return nil
	}
	r.logger.Info("Service stopped", zap.String("service", string(id)))
	return e.capability.Release()
}

// Close releases every live capability regardless of outstanding references.
// Releasing a handle afterwards is a no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	live := r.live
	r.live = make(map[domain.ServiceID]*entry)
	refs := make(map[domain.ServiceID]int, len(live))
	for id, e := range live {
		e.closed = true
		refs[id] = e.refs
	}
	r.mu.Unlock()

	var err error
	for id, e := range live {
		if refs[id] > 0 {
			r.logger.Warn("Closing service with outstanding references",
				zap.String("service", string(id)),
				zap.Int("refs", refs[id]))
		}
		err = multierr.Append(err, e.capability.Release())
	}
	return err
}

// handle is a reference to a capability with no further surface
type handle struct {
	release func() error
}

func (h *handle) Release() error {
	return h.release()
}

// playerHandle is a reference to a shared player. Calls after Release fail
// with domain.ErrReleased.
type playerHandle struct {
	domain.Player

	mu       sync.RWMutex
	released bool
	release  func() error
}

func (h *playerHandle) Release() error {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
	return h.release()
}

func (h *playerHandle) call(fn func() error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return domain.ErrReleased
	}
	return fn()
}

func (h *playerHandle) Pause() error        { return h.call(h.Player.Pause) }
func (h *playerHandle) Resume() error       { return h.call(h.Player.Resume) }
func (h *playerHandle) GoToNext() error     { return h.call(h.Player.GoToNext) }
func (h *playerHandle) GoToPrevious() error { return h.call(h.Player.GoToPrevious) }

func (h *playerHandle) SetVolume(level float64) error {
	return h.call(func() error { return h.Player.SetVolume(level) })
}
