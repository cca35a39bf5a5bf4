package transport

import "github.com/genricoloni/midicontrol/internal/domain"

// System message status bytes relevant to category filtering
const (
	statusSysExStart   = 0xF0
	statusTimeCode     = 0xF1
	statusSongPosition = 0xF2
	statusClock        = 0xF8
	statusStart        = 0xFA
	statusContinue     = 0xFB
	statusStop         = 0xFC
	statusActiveSense  = 0xFE
)

// Accept reports whether msg passes filter. It is used by transports that
// cannot filter message categories themselves.
func Accept(filter domain.Filter, msg []byte) bool {
	if len(msg) == 0 {
		return false
	}

	switch msg[0] {
	case statusSysExStart:
		return !filter.IgnoreSysEx
	case statusTimeCode, statusSongPosition, statusClock, statusStart, statusContinue, statusStop:
		return !filter.IgnoreTiming
	case statusActiveSense:
		return !filter.IgnoreActiveSense
	}
	return true
}
