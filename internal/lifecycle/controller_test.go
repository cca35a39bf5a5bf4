package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/midicontrol/internal/dispatcher"
	"github.com/genricoloni/midicontrol/internal/domain"
	"github.com/genricoloni/midicontrol/internal/domain/mocks"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeServices hands out a fixed capability
type fakeServices struct {
	capability domain.Capability
	err        error
	calls      int
}

func (s *fakeServices) Acquire(ctx context.Context, id domain.ServiceID) (domain.Capability, error) {
	s.calls++
	if id != domain.PlayerServiceID {
		return nil, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, id)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.capability, nil
}

// fakeInput captures the registered sink so tests can deliver messages
type fakeInput struct {
	mu        sync.Mutex
	sink      domain.Sink
	filter    domain.Filter
	listenErr error
	closed    int
	onListen  func()
}

func (i *fakeInput) Listen(filter domain.Filter, sink domain.Sink) error {
	if i.onListen != nil {
		i.onListen()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listenErr != nil {
		return i.listenErr
	}
	i.filter = filter
	i.sink = sink
	return nil
}

func (i *fakeInput) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed++
	return nil
}

// deliver invokes the sink the way a transport would
func (i *fakeInput) deliver(msg []byte) {
	i.mu.Lock()
	sink := i.sink
	i.mu.Unlock()
	if sink != nil {
		sink(0, msg)
	}
}

type fakeTransport struct {
	ports    int
	countErr error
	openErr  error
	closeErr error
	input    *fakeInput
	opened   []int
	closed   int
}

func (t *fakeTransport) PortCount() (int, error) { return t.ports, t.countErr }

func (t *fakeTransport) Open(index int) (domain.Input, error) {
	t.opened = append(t.opened, index)
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.input, nil
}

func (t *fakeTransport) Close() error {
	t.closed++
	return t.closeErr
}

func factoryFor(t *fakeTransport) domain.TransportFactory {
	return func() (domain.Transport, error) { return t, nil }
}

// notAPlayer is a capability without playback control
type notAPlayer struct{ released int }

func (n *notAPlayer) Release() error { n.released++; return nil }

func newTestController(factory domain.TransportFactory) *Controller {
	return NewController(zap.NewNop(), factory, dispatcher.NewDispatcher(zap.NewNop()))
}

func TestController_Initialize(t *testing.T) {
	tests := []struct {
		name           string
		servicesErr    error
		capability     func(*mocks.MockPlayer) domain.Capability
		transport      *fakeTransport
		factoryErr     error
		expectPlayer   func(*mocks.MockPlayer)
		expectedStatus domain.Status
		expectedState  domain.State
		expectedErr    error
	}{
		{
			name:           "Success - device attached",
			transport:      &fakeTransport{ports: 2, input: &fakeInput{}},
			expectedStatus: domain.StatusSuccess,
			expectedState:  domain.StateActive,
		},
		{
			name:           "Partial - no MIDI ports",
			transport:      &fakeTransport{ports: 0},
			expectedStatus: domain.StatusPartialSuccess,
			expectedState:  domain.StateNoDevice,
		},
		{
			name:        "Fatal - player service missing",
			servicesErr: domain.ErrServiceNotFound,
			transport:   &fakeTransport{ports: 1, input: &fakeInput{}},
			expectPlayer: func(m *mocks.MockPlayer) {
				m.EXPECT().Release().Times(0)
			},
			expectedStatus: domain.StatusFatal,
			expectedState:  domain.StateUninitialized,
			expectedErr:    domain.ErrDependencyUnavailable,
		},
		{
			name: "Fatal - capability is not a player",
			capability: func(*mocks.MockPlayer) domain.Capability {
				return &notAPlayer{}
			},
			transport: &fakeTransport{ports: 1, input: &fakeInput{}},
			expectPlayer: func(m *mocks.MockPlayer) {
				m.EXPECT().Release().Times(0)
			},
			expectedStatus: domain.StatusFatal,
			expectedState:  domain.StateUninitialized,
			expectedErr:    domain.ErrDependencyUnavailable,
		},
		{
			name:       "Fatal - transport cannot be created",
			factoryErr: errors.New("rtmidi unavailable"),
			expectPlayer: func(m *mocks.MockPlayer) {
				m.EXPECT().Release().Return(nil).Times(1)
			},
			expectedStatus: domain.StatusFatal,
			expectedState:  domain.StateUninitialized,
			expectedErr:    domain.ErrDeviceInitFailed,
		},
		{
			name:      "Fatal - enumeration fails",
			transport: &fakeTransport{countErr: errors.New("alsa error")},
			expectPlayer: func(m *mocks.MockPlayer) {
				m.EXPECT().Release().Return(nil).Times(1)
			},
			expectedStatus: domain.StatusFatal,
			expectedState:  domain.StateUninitialized,
			expectedErr:    domain.ErrDeviceInitFailed,
		},
		{
			name:      "Fatal - port open fails",
			transport: &fakeTransport{ports: 1, openErr: errors.New("device busy")},
			expectPlayer: func(m *mocks.MockPlayer) {
				m.EXPECT().Release().Return(nil).Times(1)
			},
			expectedStatus: domain.StatusFatal,
			expectedState:  domain.StateUninitialized,
			expectedErr:    domain.ErrDeviceInitFailed,
		},
		{
			name:      "Fatal - sink registration fails",
			transport: &fakeTransport{ports: 1, input: &fakeInput{listenErr: errors.New("listen failed")}},
			expectPlayer: func(m *mocks.MockPlayer) {
				m.EXPECT().Release().Return(nil).Times(1)
			},
			expectedStatus: domain.StatusFatal,
			expectedState:  domain.StateUninitialized,
			expectedErr:    domain.ErrDeviceInitFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			player := mocks.NewMockPlayer(ctrl)
			if tt.expectPlayer != nil {
				tt.expectPlayer(player)
			}

			var capability domain.Capability = player
			if tt.capability != nil {
				capability = tt.capability(player)
			}
			services := &fakeServices{capability: capability, err: tt.servicesErr}

			factory := factoryFor(tt.transport)
			if tt.factoryErr != nil {
				factory = func() (domain.Transport, error) { return nil, tt.factoryErr }
			}

			c := newTestController(factory)
			status, err := c.Initialize(t.Context(), services)

			if status != tt.expectedStatus {
				t.Errorf("Status: expected %v, got %v", tt.expectedStatus, status)
			}
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Errorf("expected error %v, got %v", tt.expectedErr, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if got := c.State(); got != tt.expectedState {
				t.Errorf("State: expected %v, got %v", tt.expectedState, got)
			}
			if services.calls != 1 {
				t.Errorf("expected one service lookup, got %d", services.calls)
			}

			if tt.transport == nil || tt.factoryErr != nil {
				return
			}
			switch tt.expectedState {
			case domain.StateActive:
				if len(tt.transport.opened) != 1 || tt.transport.opened[0] != DefaultPortIndex {
					t.Errorf("expected port %d opened once, got %v", DefaultPortIndex, tt.transport.opened)
				}
				if tt.transport.input.filter != (domain.Filter{}) {
					t.Errorf("expected no category filtering, got %+v", tt.transport.input.filter)
				}
			case domain.StateNoDevice:
				if len(tt.transport.opened) != 0 {
					t.Errorf("expected no port opened, got %v", tt.transport.opened)
				}
				if tt.transport.closed != 1 {
					t.Errorf("expected transport closed once, got %d", tt.transport.closed)
				}
			case domain.StateUninitialized:
				if tt.servicesErr == nil && tt.capability == nil && tt.transport.closed != 1 {
					t.Errorf("expected transport closed on rollback, got %d", tt.transport.closed)
				}
			}
		})
	}
}

func TestController_InitializeTwice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	player := mocks.NewMockPlayer(ctrl)
	transport := &fakeTransport{ports: 1, input: &fakeInput{}}
	c := newTestController(factoryFor(transport))

	if _, err := c.Initialize(t.Context(), &fakeServices{capability: player}); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}

	status, err := c.Initialize(t.Context(), &fakeServices{capability: player})
	if status != domain.StatusFatal || !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Errorf("expected Fatal/ErrAlreadyInitialized, got %v/%v", status, err)
	}
	if c.State() != domain.StateActive {
		t.Errorf("second Initialize must not disturb the active state, got %v", c.State())
	}
}

func TestController_DispatchWhileActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	player := mocks.NewMockPlayer(ctrl)
	gomock.InOrder(
		player.EXPECT().Pause().Return(nil).Times(1),
		player.EXPECT().SetVolume(63/127.0).Return(nil).Times(1),
		player.EXPECT().Release().Return(nil).Times(1),
	)

	input := &fakeInput{}
	transport := &fakeTransport{ports: 1, input: input}
	c := newTestController(factoryFor(transport))

	if status, err := c.Initialize(t.Context(), &fakeServices{capability: player}); status != domain.StatusSuccess || err != nil {
		t.Fatalf("Initialize: %v/%v", status, err)
	}

	input.deliver([]byte{0x90, 60, 64})
	input.deliver([]byte{0xB0, 7, 63})
	input.deliver([]byte{0x80, 60, 0})

	c.Finalize()

	// After detach the sink must be inert
	input.deliver([]byte{0x90, 60, 64})

	if input.closed != 1 {
		t.Errorf("expected input closed once, got %d", input.closed)
	}
	if transport.closed != 1 {
		t.Errorf("expected transport closed once, got %d", transport.closed)
	}
}

func TestController_Finalize(t *testing.T) {
	t.Run("Never initialized", func(t *testing.T) {
		c := newTestController(func() (domain.Transport, error) {
			t.Fatal("transport must not be created")
			return nil, nil
		})
		if status := c.Finalize(); status != domain.StatusSuccess {
			t.Errorf("expected Success, got %v", status)
		}
		if status := c.Finalize(); status != domain.StatusSuccess {
			t.Errorf("expected Success on second call, got %v", status)
		}
		if c.State() != domain.StateUninitialized {
			t.Errorf("expected Uninitialized, got %v", c.State())
		}
	})

	t.Run("No device then twice", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		player := mocks.NewMockPlayer(ctrl)
		player.EXPECT().Release().Return(nil).Times(1)

		transport := &fakeTransport{ports: 0}
		c := newTestController(factoryFor(transport))
		if status, _ := c.Initialize(t.Context(), &fakeServices{capability: player}); status != domain.StatusPartialSuccess {
			t.Fatalf("expected PartialSuccess, got %v", status)
		}

		if status := c.Finalize(); status != domain.StatusSuccess {
			t.Errorf("expected Success, got %v", status)
		}
		if status := c.Finalize(); status != domain.StatusSuccess {
			t.Errorf("expected Success on second call, got %v", status)
		}
		if transport.closed != 1 {
			t.Errorf("transport closed %d times, want 1", transport.closed)
		}
	})

	t.Run("Cleanup errors are swallowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		player := mocks.NewMockPlayer(ctrl)
		player.EXPECT().Release().Return(errors.New("already gone")).Times(1)

		transport := &fakeTransport{ports: 1, input: &fakeInput{}, closeErr: errors.New("driver error")}
		c := newTestController(factoryFor(transport))
		if _, err := c.Initialize(t.Context(), &fakeServices{capability: player}); err != nil {
			t.Fatalf("Initialize: %v", err)
		}

		if status := c.Finalize(); status != domain.StatusSuccess {
			t.Errorf("expected Success, got %v", status)
		}
	})

	t.Run("Reinitialize after finalize", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		player := mocks.NewMockPlayer(ctrl)
		player.EXPECT().Release().Return(nil).Times(2)

		c := newTestController(factoryFor(&fakeTransport{ports: 1, input: &fakeInput{}}))
		for i := 0; i < 2; i++ {
			if status, err := c.Initialize(t.Context(), &fakeServices{capability: player}); status != domain.StatusSuccess {
				t.Fatalf("Initialize %d: %v/%v", i, status, err)
			}
			c.Finalize()
		}
	})
}

func TestController_NoDeviceRegistersNoSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	player := mocks.NewMockPlayer(ctrl)
	player.EXPECT().Release().Return(nil).AnyTimes()

	transport := &fakeTransport{ports: 0, input: &fakeInput{}}
	c := newTestController(factoryFor(transport))
	if _, err := c.Initialize(t.Context(), &fakeServices{capability: player}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if transport.input.sink != nil {
		t.Error("no sink may be registered without a device")
	}

	// A stray delivery straight into the controller is dropped as well
	c.onMessage(0, []byte{0x90, 60, 64})
}

func TestController_Notify(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewController(zap.New(core), nil, dispatcher.NewDispatcher(zap.NewNop()))

	c.Notify(domain.Notification{
		Kind:   domain.NotifyPlaybackChanged,
		Source: "org.mpris.MediaPlayer2.spotify",
		Status: domain.StatusPaused,
	})

	if got := logs.FilterMessage("System notification received").Len(); got != 1 {
		t.Errorf("expected one notification log, got %d", got)
	}
	if c.State() != domain.StateUninitialized {
		t.Errorf("Notify must not change state, got %v", c.State())
	}
}

func TestController_FinalizeDuringInitialize(t *testing.T) {
	input := &fakeInput{}
	c := newTestController(factoryFor(&fakeTransport{ports: 1, input: input}))

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	player := mocks.NewMockPlayer(ctrl)
	player.EXPECT().Release().Return(nil)

	finalized := make(chan struct{})
	input.onListen = func() {
		started := make(chan struct{})
		go func() {
			close(started)
			c.Finalize()
			close(finalized)
		}()
		<-started
		// Let Finalize clear the flag and block on the controller lock
		time.Sleep(10 * time.Millisecond)
	}

	status, err := c.Initialize(t.Context(), &fakeServices{capability: player})
	if status != domain.StatusSuccess || err != nil {
		t.Fatalf("Initialize: %v, %v", status, err)
	}

	select {
	case <-finalized:
	case <-time.After(time.Second):
		t.Fatal("Timeout: Finalize did not complete")
	}

	if c.State() != domain.StateUninitialized {
		t.Errorf("expected Uninitialized, got %s", c.State())
	}
	if c.active.Load() {
		t.Error("delivery flag still set after Finalize")
	}

	// Nothing reaches the released player
	input.deliver([]byte{0x90, 60, 64})
}

func TestController_Info(t *testing.T) {
	info := newTestController(nil).Info()
	if info.Name != "MIDIControl" {
		t.Errorf("unexpected plugin name %q", info.Name)
	}
	if info.Category == "" || info.ShortDescription == "" || info.Author == "" {
		t.Errorf("incomplete plugin info: %+v", info)
	}
}

// slowPlayer blocks inside Pause until proceed is closed and records the
// order of events so the test can check nothing runs after Release.
type slowPlayer struct {
	mu       sync.Mutex
	events   []string
	released bool
	late     int
	entered  chan struct{}
	proceed  chan struct{}
}

func (p *slowPlayer) log(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		p.late++
	}
	p.events = append(p.events, event)
}

func (p *slowPlayer) Pause() error {
	p.log("pause-start")
	close(p.entered)
	<-p.proceed
	p.log("pause-end")
	return nil
}

func (p *slowPlayer) Resume() error           { p.log("resume"); return nil }
func (p *slowPlayer) GoToNext() error         { p.log("next"); return nil }
func (p *slowPlayer) GoToPrevious() error     { p.log("previous"); return nil }
func (p *slowPlayer) SetVolume(float64) error { p.log("volume"); return nil }

func (p *slowPlayer) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "release")
	p.released = true
	return nil
}

// TestController_FinalizeWaitsForInflightDispatch injects a delayed dispatch
// and checks that the player is released only after the command returns.
func TestController_FinalizeWaitsForInflightDispatch(t *testing.T) {
	player := &slowPlayer{entered: make(chan struct{}), proceed: make(chan struct{})}
	input := &fakeInput{}
	c := newTestController(factoryFor(&fakeTransport{ports: 1, input: input}))

	if _, err := c.Initialize(t.Context(), &fakeServices{capability: player}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		input.deliver([]byte{0x90, 60, 64})
	}()

	select {
	case <-player.entered:
	case <-time.After(time.Second):
		t.Fatal("Timeout: dispatch never reached the player")
	}

	finalized := make(chan struct{})
	go func() {
		defer close(finalized)
		c.Finalize()
	}()

	select {
	case <-finalized:
		t.Fatal("Finalize returned while a command was in flight")
	case <-time.After(50 * time.Millisecond):
		// Pass: Finalize is waiting
	}

	// Deliveries racing the teardown are dropped
	go input.deliver([]byte{0x90, 61, 64})

	close(player.proceed)

	select {
	case <-finalized:
	case <-time.After(time.Second):
		t.Fatal("Timeout: Finalize did not complete")
	}
	<-dispatched

	input.deliver([]byte{0x90, 62, 64})
	time.Sleep(20 * time.Millisecond)

	player.mu.Lock()
	defer player.mu.Unlock()

	if player.late != 0 {
		t.Errorf("%d player calls happened after release: %v", player.late, player.events)
	}
	want := []string{"pause-start", "pause-end", "release"}
	if len(player.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, player.events)
	}
	for i := range want {
		if player.events[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], player.events[i])
		}
	}
}

// TestController_ConcurrentDeliveryAndFinalize hammers the sink from several
// goroutines while Finalize runs.
func TestController_ConcurrentDeliveryAndFinalize(t *testing.T) {
	player := &slowPlayer{entered: make(chan struct{}), proceed: make(chan struct{})}
	close(player.proceed)
	input := &fakeInput{}
	c := newTestController(factoryFor(&fakeTransport{ports: 1, input: input}))

	if _, err := c.Initialize(t.Context(), &fakeServices{capability: player}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				input.deliver([]byte{0x90, 62, 64})
				input.deliver([]byte{0xB0, 7, byte(j % 128)})
			}
		}()
	}

	time.Sleep(time.Millisecond)
	c.Finalize()
	wg.Wait()

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.late != 0 {
		t.Errorf("%d player calls happened after release", player.late)
	}
	if !player.released {
		t.Error("player was never released")
	}
}
