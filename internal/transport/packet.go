package transport

const (
	statusSongSelect = 0xF3
	statusSysExEnd   = 0xF7
	statusRealTime   = 0xF8
)

// dataLength returns the number of data bytes that follow status.
// SysEx is variable length and handled separately.
func dataLength(status byte) int {
	if status < 0xF0 {
		switch status & 0xF0 {
		case 0xC0, 0xD0:
			return 1
		}
		return 2
	}
	switch status {
	case statusTimeCode, statusSongSelect:
		return 1
	case statusSongPosition:
		return 2
	}
	return 0
}

// splitPacket calls fn once for every complete MIDI message in data, in
// order. Running status is expanded and incomplete messages are dropped.
// fn must not retain msg.
func splitPacket(data []byte, fn func(msg []byte)) {
	var buf [3]byte
	var running byte

	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b >= statusRealTime:
			// Real-time bytes may appear anywhere and do not cancel running status
			fn(data[i : i+1])
			i++

		case b == statusSysExStart:
			end := i + 1
			for end < len(data) && data[end] < 0x80 {
				end++
			}
			if end < len(data) && data[end] == statusSysExEnd {
				end++
			}
			fn(data[i:end])
			running = 0
			i = end

		case b >= 0x80:
			if b < 0xF0 {
				running = b
			} else {
				running = 0
			}
			n := dataLength(b)
			end := i + 1
			for end < len(data) && end-i-1 < n && data[end] < 0x80 {
				end++
			}
			if end-i-1 == n {
				fn(data[i:end])
			}
			i = end

		default:
			if running == 0 {
				i++
				continue
			}
			n := dataLength(running)
			end := i
			for end < len(data) && end-i < n && data[end] < 0x80 {
				end++
			}
			if end-i == n {
				buf[0] = running
				copy(buf[1:], data[i:end])
				fn(buf[:1+n])
			}
			i = end
		}
	}
}
