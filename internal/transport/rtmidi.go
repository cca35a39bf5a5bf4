package transport

import (
	"fmt"
	"sync"

	"github.com/genricoloni/midicontrol/internal/domain"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
)

// RtMidi is a MIDI transport backed by the RtMidi library.
// It implements domain.Transport.
type RtMidi struct {
	logger *zap.Logger
	drv    *rtmididrv.Driver
}

// NewRtMidi initialises the RtMidi driver
func NewRtMidi(logger *zap.Logger) (*RtMidi, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &RtMidi{logger: logger, drv: drv}, nil
}

// PortCount returns the number of MIDI input ports
func (t *RtMidi) PortCount() (int, error) {
	ins, err := t.drv.Ins()
	if err != nil {
		return 0, fmt.Errorf("list inputs: %w", err)
	}
	return len(ins), nil
}

// Open opens the input port at index
func (t *RtMidi) Open(index int) (domain.Input, error) {
	ins, err := t.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	if index < 0 || index >= len(ins) {
		return nil, fmt.Errorf("input %d out of range (%d ports)", index, len(ins))
	}

	port := ins[index]
	if err := port.Open(); err != nil {
		return nil, fmt.Errorf("open %q: %w", port.String(), err)
	}

	t.logger.Info("MIDI input opened",
		zap.Int("port", index),
		zap.String("device", port.String()))

	return &rtmidiInput{logger: t.logger, port: port}, nil
}

// Close shuts down the driver
func (t *RtMidi) Close() error {
	return t.drv.Close()
}

// rtmidiInput is one open RtMidi input port
type rtmidiInput struct {
	logger *zap.Logger
	port   drivers.In

	mu     sync.Mutex
	stop   func()
	closed bool
}

// listenOptions maps the category filter onto gomidi listen options.
// RtMidi drops sysex, timing and active sensing unless asked for them.
func listenOptions(filter domain.Filter) []midi.ListenOption {
	var opts []midi.ListenOption
	if !filter.IgnoreSysEx {
		opts = append(opts, midi.UseSysEx())
	}
	if !filter.IgnoreTiming {
		opts = append(opts, midi.UseTimeCode())
	}
	if !filter.IgnoreActiveSense {
		opts = append(opts, midi.UseActiveSense())
	}
	return opts
}

// Listen starts delivering messages to sink on the driver's goroutine
func (in *rtmidiInput) Listen(filter domain.Filter, sink domain.Sink) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return fmt.Errorf("listen %q: input closed", in.port.String())
	}
	if in.stop != nil {
		return fmt.Errorf("listen %q: already listening", in.port.String())
	}

	opts := append(listenOptions(filter), midi.HandleError(func(err error) {
		in.logger.Warn("MIDI listener error",
			zap.String("device", in.port.String()),
			zap.Error(err))
	}))

	stop, err := midi.ListenTo(in.port, func(msg midi.Message, timestampms int32) {
		sink(float64(timestampms)/1000, msg.Bytes())
	}, opts...)
	if err != nil {
		return fmt.Errorf("listen %q: %w", in.port.String(), err)
	}
	in.stop = stop
	return nil
}

// Close stops delivery and closes the port. It is idempotent.
func (in *rtmidiInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil
	}
	in.closed = true

	if in.stop != nil {
		in.stop()
		in.stop = nil
	}
	return in.port.Close()
}
