package domain

import "fmt"

// CommandKind identifies a playback-control operation
type CommandKind int

const (
	// CommandPause pauses playback
	CommandPause CommandKind = iota + 1
	// CommandResume resumes playback
	CommandResume
	// CommandNext skips to the next track
	CommandNext
	// CommandPrevious goes back to the previous track
	CommandPrevious
	// CommandSetVolume sets the playback volume to Command.Level
	CommandSetVolume
)

func (k CommandKind) String() string {
	switch k {
	case CommandPause:
		return "Pause"
	case CommandResume:
		return "Resume"
	case CommandNext:
		return "Next"
	case CommandPrevious:
		return "Previous"
	case CommandSetVolume:
		return "SetVolume"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is a playback-control instruction derived from a single MIDI message
type Command struct {
	Kind CommandKind
	// Level is the normalized volume in [0.0, 1.0], only meaningful for CommandSetVolume
	Level float64
}

func (c Command) String() string {
	if c.Kind == CommandSetVolume {
		return fmt.Sprintf("SetVolume(%.4f)", c.Level)
	}
	return c.Kind.String()
}

// State is a lifecycle state of the MIDI plugin
type State int

const (
	StateUninitialized State = iota
	StateAttaching
	StateActive
	StateNoDevice
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateAttaching:
		return "Attaching"
	case StateActive:
		return "Active"
	case StateNoDevice:
		return "NoDevice"
	case StateFinalizing:
		return "Finalizing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the tri-state result a plugin reports to its host
type Status int

const (
	// StatusSuccess means the plugin is fully operational
	StatusSuccess Status = iota
	// StatusPartialSuccess means the plugin is loaded and usable but degraded
	// (e.g. no MIDI input present)
	StatusPartialSuccess
	// StatusFatal means plugin activation must be aborted
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusPartialSuccess:
		return "PartialSuccess"
	case StatusFatal:
		return "Fatal"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// PlayerStatus represents the current state of the media player
type PlayerStatus string

const (
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlayerStatus = "Playing"
	// StatusPaused indicates the media is paused
	StatusPaused PlayerStatus = "Paused"
	// StatusStopped indicates the media is stopped
	StatusStopped PlayerStatus = "Stopped"
	// StatusUnknown is used when the source does not report a playback status
	StatusUnknown PlayerStatus = ""
)

// NotificationKind identifies a host notification
type NotificationKind string

const (
	NotifyPlaybackChanged NotificationKind = "playback-changed"
	NotifyVolumeChanged   NotificationKind = "volume-changed"
	NotifyPlayerAppeared  NotificationKind = "player-appeared"
	NotifyPlayerVanished  NotificationKind = "player-vanished"
)

// Notification is a host lifecycle event delivered outside the Initialize/Finalize pair
type Notification struct {
	Kind NotificationKind
	// Source is the player that caused the notification (bus name, "mpd", ...)
	Source string
	Status PlayerStatus
}

// Filter selects which MIDI message categories the transport suppresses.
// The zero value delivers everything.
type Filter struct {
	IgnoreSysEx       bool
	IgnoreTiming      bool
	IgnoreActiveSense bool
}

// PluginInfo describes a plugin to its host
type PluginInfo struct {
	Name             string
	Author           string
	ShortDescription string
	Category         string
}
