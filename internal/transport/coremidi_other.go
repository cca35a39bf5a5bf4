//go:build !darwin

package transport

import (
	"errors"

	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/zap"
)

// ErrCoreMIDIUnsupported is returned when CoreMIDI is requested off macOS
var ErrCoreMIDIUnsupported = errors.New("CoreMIDI is only supported on macOS")

// CoreMIDI stub for non-darwin platforms
type CoreMIDI struct{}

// NewCoreMIDI always fails on non-darwin platforms
func NewCoreMIDI(logger *zap.Logger) (*CoreMIDI, error) {
	return nil, ErrCoreMIDIUnsupported
}

func (t *CoreMIDI) PortCount() (int, error) { return 0, ErrCoreMIDIUnsupported }

func (t *CoreMIDI) Open(int) (domain.Input, error) { return nil, ErrCoreMIDIUnsupported }

func (t *CoreMIDI) Close() error { return nil }
