//go:build darwin

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/midicontrol/internal/domain"
	"github.com/youpy/go-coremidi"
	"go.uber.org/zap"
)

const coreMIDIClientName = "midicontrol"

// portConnection is an active source-to-port connection
type portConnection interface {
	Disconnect()
}

// CoreMIDI is a MIDI transport backed by macOS CoreMIDI.
// It implements domain.Transport.
type CoreMIDI struct {
	logger *zap.Logger
	client coremidi.Client
}

// NewCoreMIDI creates a CoreMIDI client
func NewCoreMIDI(logger *zap.Logger) (*CoreMIDI, error) {
	client, err := coremidi.NewClient(coreMIDIClientName)
	if err != nil {
		return nil, fmt.Errorf("coremidi client: %w", err)
	}
	logger.Info("CoreMIDI client created")
	return &CoreMIDI{logger: logger, client: client}, nil
}

// PortCount returns the number of MIDI sources
func (t *CoreMIDI) PortCount() (int, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	return len(sources), nil
}

// Open selects the source at index. The connection is made on Listen.
func (t *CoreMIDI) Open(index int) (domain.Input, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	if index < 0 || index >= len(sources) {
		return nil, fmt.Errorf("source %d out of range (%d sources)", index, len(sources))
	}

	source := sources[index]
	t.logger.Info("MIDI source selected",
		zap.Int("port", index),
		zap.String("device", source.Name()))

	return &coreMIDIInput{logger: t.logger, client: t.client, source: source}, nil
}

// Close is a no-op; CoreMIDI clients live for the whole process
func (t *CoreMIDI) Close() error {
	return nil
}

// coreMIDIInput is one CoreMIDI source
type coreMIDIInput struct {
	logger *zap.Logger
	client coremidi.Client
	source coremidi.Source

	mu      sync.Mutex
	conn    portConnection
	closed  bool
	wg      sync.WaitGroup
	started time.Time
}

// Listen connects the source to a new input port and delivers packets to sink.
// CoreMIDI has no category filter of its own, so the filter is applied here.
func (in *coreMIDIInput) Listen(filter domain.Filter, sink domain.Sink) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return fmt.Errorf("listen %q: input closed", in.source.Name())
	}
	if in.conn != nil {
		return fmt.Errorf("listen %q: already listening", in.source.Name())
	}

	in.started = time.Now()
	port, err := coremidi.NewInputPort(in.client, "Input Port", func(_ coremidi.Source, packet coremidi.Packet) {
		if !in.enter() {
			return
		}
		defer in.wg.Done()

		// One packet may carry several messages
		timestamp := time.Since(in.started).Seconds()
		splitPacket(packet.Data, func(msg []byte) {
			if Accept(filter, msg) {
				sink(timestamp, msg)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("create input port: %w", err)
	}

	conn, err := port.Connect(in.source)
	if err != nil {
		return fmt.Errorf("connect %q: %w", in.source.Name(), err)
	}
	in.conn = conn
	return nil
}

// enter registers an in-flight packet. It fails once Close has started.
func (in *coreMIDIInput) enter() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return false
	}
	in.wg.Add(1)
	return true
}

// Close disconnects the source and waits for in-flight packets. It is idempotent.
func (in *coreMIDIInput) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	conn := in.conn
	in.conn = nil
	in.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	in.wg.Wait()
	return nil
}
