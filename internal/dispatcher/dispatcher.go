package dispatcher

import (
	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/zap"
)

// MIDI status nibbles (bits 7-4); the channel nibble is ignored for routing
const (
	statusMask          = 0xF0
	statusNoteOn        = 0x90
	statusControlChange = 0xB0
)

// VolumeController is the Control Change number for channel volume
const VolumeController = 7

const maxDataValue = 127.0

// NoteCommands maps Note-On note numbers to commands.
// 60 is middle C.
var NoteCommands = map[byte]domain.CommandKind{
	60: domain.CommandPause,
	61: domain.CommandResume,
	62: domain.CommandNext,
	63: domain.CommandPrevious,
}

// Dispatcher translates raw MIDI messages into player commands.
// It holds no per-message state and is safe for concurrent use.
type Dispatcher struct {
	logger *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Resolve classifies msg. It returns false when msg maps to no command.
func Resolve(msg []byte) (domain.Command, bool) {
	if len(msg) < 2 {
		return domain.Command{}, false
	}

	status := msg[0]
	data1 := msg[1]
	var data2 byte
	if len(msg) >= 3 {
		data2 = msg[2]
	}

	switch status & statusMask {
	case statusNoteOn:
		// Velocity is not inspected: a zero-velocity Note-On maps like any other.
		kind, ok := NoteCommands[data1]
		if !ok {
			return domain.Command{}, false
		}
		return domain.Command{Kind: kind}, true

	case statusControlChange:
		if data1 != VolumeController {
			return domain.Command{}, false
		}
		level := float64(data2) / maxDataValue
		if level > 1 {
			level = 1
		}
		return domain.Command{Kind: domain.CommandSetVolume, Level: level}, true
	}

	return domain.Command{}, false
}

// Execute invokes the player operation for cmd
func Execute(cmd domain.Command, player domain.Player) error {
	switch cmd.Kind {
	case domain.CommandPause:
		return player.Pause()
	case domain.CommandResume:
		return player.Resume()
	case domain.CommandNext:
		return player.GoToNext()
	case domain.CommandPrevious:
		return player.GoToPrevious()
	case domain.CommandSetVolume:
		return player.SetVolume(cmd.Level)
	}
	return nil
}

// Dispatch resolves msg and, if it maps to a command, executes it on player.
// Player failures are logged, never returned.
func (d *Dispatcher) Dispatch(msg []byte, player domain.Player) (domain.Command, bool) {
	cmd, ok := Resolve(msg)
	if !ok {
		if d.logger.Core().Enabled(zap.DebugLevel) {
			d.logger.Debug("MIDI message ignored", zap.Binary("message", msg))
		}
		return domain.Command{}, false
	}

	if err := Execute(cmd, player); err != nil {
		d.logger.Warn("Player command failed",
			zap.Stringer("command", cmd),
			zap.Error(err))
		return cmd, true
	}

	d.logger.Debug("Player command executed", zap.Stringer("command", cmd))
	return cmd, true
}
