package config

import (
	"time"

	"github.com/edumarques81/stellar-stream-client/internal/domain/queue"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	MPD       MPDConfig       `toml:"mpd"`
	HTTP      HTTPConfig      `toml:"http"`
	Playback  PlaybackConfig  `toml:"playback"`
	Queue     QueueConfig     `toml:"queue"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig holds the streaming server connection.
type ServerConfig struct {
	BaseURL    string `toml:"base_url"`
	Token      string `toml:"token"`
	SessionID  string `toml:"session_id"`
	Timeout    int    `toml:"timeout"`    // seconds
	MaxRetries int    `toml:"max_retries"`
	RetryWait  int    `toml:"retry_wait"` // milliseconds, doubled per retry
}

// MPDConfig holds the audio output daemon connection.
type MPDConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	PollInterval int    `toml:"poll_interval"` // milliseconds
}

// HTTPConfig holds the local Socket.io/HTTP listener settings.
type HTTPConfig struct {
	Listen           string `toml:"listen"`
	MaxRemoteClients int    `toml:"max_remote_clients"`
	Debounce         int    `toml:"debounce"` // milliseconds
	AllowOrigin      string `toml:"allow_origin"`
}

// PlaybackConfig holds playback defaults.
type PlaybackConfig struct {
	Quality  string `toml:"quality"`
	SeekStep int    `toml:"seek_step"` // seconds
}

// QueueConfig holds the look-ahead thresholds, in percent of the track.
type QueueConfig struct {
	FillAt    float64 `toml:"fill_at"`
	PrepareAt float64 `toml:"prepare_at"`
	Window    float64 `toml:"window"`
}

// LifecycleConfig holds keepalive and media session settings.
type LifecycleConfig struct {
	Keepalive         string   `toml:"keepalive"`
	KeepaliveInterval int      `toml:"keepalive_interval"` // seconds
	MediaActions      []string `toml:"media_actions"`
}

// StoreConfig holds the preference database location.
type StoreConfig struct {
	Path string `toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TimeoutDuration returns the HTTP timeout.
func (c ServerConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// RetryWaitDuration returns the base retry wait.
func (c ServerConfig) RetryWaitDuration() time.Duration {
	return time.Duration(c.RetryWait) * time.Millisecond
}

// PollDuration returns the status sampling interval.
func (c MPDConfig) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// DebounceDuration returns the broadcast debounce window.
func (c HTTPConfig) DebounceDuration() time.Duration {
	return time.Duration(c.Debounce) * time.Millisecond
}

// Thresholds returns the queue look-ahead bands.
func (c QueueConfig) Thresholds() queue.Config {
	return queue.Config{
		Fill:    queue.Threshold{At: c.FillAt, Window: c.Window},
		Prepare: queue.Threshold{At: c.PrepareAt, Window: c.Window},
	}
}
