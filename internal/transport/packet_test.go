package transport

import (
	"bytes"
	"testing"
)

func TestSplitPacket(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected [][]byte
	}{
		{
			name:     "Single Note-On",
			data:     []byte{0x90, 60, 64},
			expected: [][]byte{{0x90, 60, 64}},
		},
		{
			name: "Volume fader burst",
			data: []byte{0xB0, 7, 10, 0xB0, 7, 20, 0xB0, 7, 30},
			expected: [][]byte{
				{0xB0, 7, 10},
				{0xB0, 7, 20},
				{0xB0, 7, 30},
			},
		},
		{
			name: "Running status",
			data: []byte{0xB0, 7, 10, 7, 20, 7, 30},
			expected: [][]byte{
				{0xB0, 7, 10},
				{0xB0, 7, 20},
				{0xB0, 7, 30},
			},
		},
		{
			name:     "Program Change has one data byte",
			data:     []byte{0xC3, 5, 0x90, 61, 1},
			expected: [][]byte{{0xC3, 5}, {0x90, 61, 1}},
		},
		{
			name:     "Clock between messages keeps running status",
			data:     []byte{0x90, 60, 64, 0xF8, 62, 64},
			expected: [][]byte{{0x90, 60, 64}, {0xF8}, {0x90, 62, 64}},
		},
		{
			name:     "SysEx followed by a voice message",
			data:     []byte{0xF0, 0x7E, 0x01, 0xF7, 0xB0, 7, 127},
			expected: [][]byte{{0xF0, 0x7E, 0x01, 0xF7}, {0xB0, 7, 127}},
		},
		{
			name:     "SysEx clears running status",
			data:     []byte{0x90, 60, 64, 0xF0, 0x01, 0xF7, 62, 64},
			expected: [][]byte{{0x90, 60, 64}, {0xF0, 0x01, 0xF7}},
		},
		{
			name:     "Truncated message is dropped",
			data:     []byte{0x90, 60, 0xB0, 7, 63},
			expected: [][]byte{{0xB0, 7, 63}},
		},
		{
			name:     "Leading data bytes without status are skipped",
			data:     []byte{60, 64, 0x90, 63, 1},
			expected: [][]byte{{0x90, 63, 1}},
		},
		{
			name:     "Empty packet",
			data:     nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][]byte
			splitPacket(tt.data, func(msg []byte) {
				got = append(got, bytes.Clone(msg))
			})

			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d messages, got %d: % X", len(tt.expected), len(got), got)
			}
			for i := range tt.expected {
				if !bytes.Equal(got[i], tt.expected[i]) {
					t.Errorf("message %d: expected % X, got % X", i, tt.expected[i], got[i])
				}
			}
		})
	}
}
