package config

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultPlayerBackend = "mpris"
	defaultMpdNetwork    = "tcp"
	defaultMpdAddress    = "localhost:6600"
	defaultMidiDriver    = "rtmidi"
	defaultLogLevel      = "info"
)

// AppConfig holds application configuration
type AppConfig struct {
	logger        *zap.Logger
	playerBackend string
	mprisPlayer   string
	mpdNetwork    string
	mpdAddress    string
	mpdPassword   string
	midiDriver    string
	logLevel      string
}

// getenv returns the variable or def when unset or blank
func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// NewAppConfig creates a new application configuration instance
func NewAppConfig(logger *zap.Logger) *AppConfig {
	cfg := &AppConfig{
		logger:        logger,
		playerBackend: strings.ToLower(getenv("MIDICONTROL_PLAYER", defaultPlayerBackend)),
		mprisPlayer:   getenv("MIDICONTROL_MPRIS_PLAYER", ""),
		mpdNetwork:    getenv("MIDICONTROL_MPD_NETWORK", defaultMpdNetwork),
		mpdAddress:    os.ExpandEnv(getenv("MIDICONTROL_MPD_ADDRESS", defaultMpdAddress)),
		mpdPassword:   os.Getenv("MIDICONTROL_MPD_PASSWORD"),
		midiDriver:    strings.ToLower(getenv("MIDICONTROL_MIDI_DRIVER", defaultMidiDriver)),
		logLevel:      strings.ToLower(getenv("MIDICONTROL_LOG_LEVEL", defaultLogLevel)),
	}

	// Never log the password itself
	logger.Info("Configuration loaded",
		zap.String("player", cfg.playerBackend),
		zap.String("mprisPlayer", cfg.mprisPlayer),
		zap.String("mpdNetwork", cfg.mpdNetwork),
		zap.String("mpdAddress", cfg.mpdAddress),
		zap.Bool("mpdPassword", cfg.mpdPassword != ""),
		zap.String("midiDriver", cfg.midiDriver),
		zap.String("logLevel", cfg.logLevel))

	return cfg
}

// GetPlayerBackend returns the player backend, "mpris" or "mpd"
func (c *AppConfig) GetPlayerBackend() string {
	return c.playerBackend
}

// GetMprisPlayer returns the MPRIS bus name, empty for auto-detection
func (c *AppConfig) GetMprisPlayer() string {
	return c.mprisPlayer
}

// GetMpdNetwork returns the MPD dial network
func (c *AppConfig) GetMpdNetwork() string {
	return c.mpdNetwork
}

// GetMpdAddress returns the MPD dial address
func (c *AppConfig) GetMpdAddress() string {
	return c.mpdAddress
}

// GetMpdPassword returns the MPD password
func (c *AppConfig) GetMpdPassword() string {
	return c.mpdPassword
}

// GetMidiDriver returns the MIDI driver name
func (c *AppConfig) GetMidiDriver() string {
	return c.midiDriver
}

// GetLogLevel returns the configured log level
func (c *AppConfig) GetLogLevel() string {
	return c.logLevel
}
