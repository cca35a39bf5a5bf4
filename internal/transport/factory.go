package transport

import (
	"fmt"

	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/zap"
)

// Supported MIDI drivers
const (
	DriverRtMidi   = "rtmidi"
	DriverCoreMIDI = "coremidi"
)

// NewFactory returns a TransportFactory for the driver named in cfg.
// The driver itself is created lazily, on each call of the factory.
func NewFactory(logger *zap.Logger, cfg domain.Config) (domain.TransportFactory, error) {
	driver := cfg.GetMidiDriver()

	switch driver {
	case DriverRtMidi:
		return func() (domain.Transport, error) {
			return wrap(NewRtMidi(logger))
		}, nil
	case DriverCoreMIDI:
		return func() (domain.Transport, error) {
			return wrap(NewCoreMIDI(logger))
		}, nil
	}
	return nil, fmt.Errorf("unknown MIDI driver %q", driver)
}

// wrap converts a concrete constructor result without leaking a typed nil
func wrap[T domain.Transport](t T, err error) (domain.Transport, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
