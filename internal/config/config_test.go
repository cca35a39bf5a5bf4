package config

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewAppConfig(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		verify func(*testing.T, *AppConfig)
	}{
		{
			name: "Defaults",
			verify: func(t *testing.T, c *AppConfig) {
				if c.GetPlayerBackend() != "mpris" {
					t.Errorf("player: expected mpris, got %s", c.GetPlayerBackend())
				}
				if c.GetMprisPlayer() != "" {
					t.Errorf("mprisPlayer: expected auto-detect, got %s", c.GetMprisPlayer())
				}
				if c.GetMpdNetwork() != "tcp" || c.GetMpdAddress() != "localhost:6600" {
					t.Errorf("mpd: expected tcp localhost:6600, got %s %s", c.GetMpdNetwork(), c.GetMpdAddress())
				}
				if c.GetMidiDriver() != "rtmidi" {
					t.Errorf("midiDriver: expected rtmidi, got %s", c.GetMidiDriver())
				}
				if c.GetLogLevel() != "info" {
					t.Errorf("logLevel: expected info, got %s", c.GetLogLevel())
				}
			},
		},
		{
			name: "MPD over unix socket",
			env: map[string]string{
				"MIDICONTROL_PLAYER":       "MPD",
				"MIDICONTROL_MPD_NETWORK":  "unix",
				"MIDICONTROL_MPD_ADDRESS":  "$XDG_RUNTIME_DIR/mpd/socket",
				"MIDICONTROL_MPD_PASSWORD": "secret",
				"XDG_RUNTIME_DIR":          "/run/user/1000",
			},
			verify: func(t *testing.T, c *AppConfig) {
				if c.GetPlayerBackend() != "mpd" {
					t.Errorf("player: expected mpd, got %s", c.GetPlayerBackend())
				}
				if c.GetMpdNetwork() != "unix" {
					t.Errorf("network: expected unix, got %s", c.GetMpdNetwork())
				}
				if c.GetMpdAddress() != "/run/user/1000/mpd/socket" {
					t.Errorf("address: expected expanded socket path, got %s", c.GetMpdAddress())
				}
				if c.GetMpdPassword() != "secret" {
					t.Errorf("password not read")
				}
			},
		},
		{
			name: "Explicit MPRIS player and driver",
			env: map[string]string{
				"MIDICONTROL_MPRIS_PLAYER": "org.mpris.MediaPlayer2.spotify",
				"MIDICONTROL_MIDI_DRIVER":  "CoreMIDI",
				"MIDICONTROL_LOG_LEVEL":    "Debug",
			},
			verify: func(t *testing.T, c *AppConfig) {
				if c.GetMprisPlayer() != "org.mpris.MediaPlayer2.spotify" {
					t.Errorf("mprisPlayer: got %s", c.GetMprisPlayer())
				}
				if c.GetMidiDriver() != "coremidi" {
					t.Errorf("midiDriver: expected coremidi, got %s", c.GetMidiDriver())
				}
				if c.GetLogLevel() != "debug" {
					t.Errorf("logLevel: expected debug, got %s", c.GetLogLevel())
				}
			},
		},
		{
			name: "Blank values fall back to defaults",
			env: map[string]string{
				"MIDICONTROL_PLAYER":      "  ",
				"MIDICONTROL_MIDI_DRIVER": "",
			},
			verify: func(t *testing.T, c *AppConfig) {
				if c.GetPlayerBackend() != "mpris" || c.GetMidiDriver() != "rtmidi" {
					t.Errorf("expected defaults, got %s/%s", c.GetPlayerBackend(), c.GetMidiDriver())
				}
			},
		},
	}

	keys := []string{
		"MIDICONTROL_PLAYER", "MIDICONTROL_MPRIS_PLAYER", "MIDICONTROL_MPD_NETWORK",
		"MIDICONTROL_MPD_ADDRESS", "MIDICONTROL_MPD_PASSWORD", "MIDICONTROL_MIDI_DRIVER",
		"MIDICONTROL_LOG_LEVEL",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			tt.verify(t, NewAppConfig(zap.NewNop()))
		})
	}
}

func TestNewAppConfig_DoesNotLogPassword(t *testing.T) {
	t.Setenv("MIDICONTROL_MPD_PASSWORD", "hunter2")

	core, logs := observer.New(zap.InfoLevel)
	NewAppConfig(zap.New(core))

	entries := logs.FilterMessage("Configuration loaded").All()
	if len(entries) != 1 {
		t.Fatalf("expected one configuration log, got %d", len(entries))
	}
	for k, v := range entries[0].ContextMap() {
		if s, ok := v.(string); ok && s == "hunter2" {
			t.Errorf("password leaked in field %s", k)
		}
	}
}
