package config

import (
	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    30,
			MaxRetries: 3,
			RetryWait:  500,
		},
		MPD: MPDConfig{
			Host:         "localhost",
			Port:         6600,
			PollInterval: 250,
		},
		HTTP: HTTPConfig{
			Listen:           ":3001",
			MaxRemoteClients: 4,
			Debounce:         100,
			AllowOrigin:      "*",
		},
		Playback: PlaybackConfig{
			Quality:  string(track.DefaultQuality),
			SeekStep: 10,
		},
		Queue: QueueConfig{
			FillAt:    10,
			PrepareAt: 60,
			Window:    1,
		},
		Lifecycle: LifecycleConfig{
			Keepalive:         lifecycle.PolicyNone,
			KeepaliveInterval: 20,
		},
		Store: StoreConfig{
			Path: "data/client.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Server
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = d.Server.BaseURL
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = d.Server.Timeout
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = d.Server.MaxRetries
	}
	if c.Server.RetryWait == 0 {
		c.Server.RetryWait = d.Server.RetryWait
	}

	// MPD
	if c.MPD.Host == "" {
		c.MPD.Host = d.MPD.Host
	}
	if c.MPD.Port == 0 {
		c.MPD.Port = d.MPD.Port
	}
	if c.MPD.PollInterval == 0 {
		c.MPD.PollInterval = d.MPD.PollInterval
	}

	// HTTP
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = d.HTTP.Listen
	}
	if c.HTTP.Debounce == 0 {
		c.HTTP.Debounce = d.HTTP.Debounce
	}
	if c.HTTP.AllowOrigin == "" {
		c.HTTP.AllowOrigin = d.HTTP.AllowOrigin
	}

	// Playback
	if c.Playback.Quality == "" {
		c.Playback.Quality = d.Playback.Quality
	}
	if c.Playback.SeekStep == 0 {
		c.Playback.SeekStep = d.Playback.SeekStep
	}

	// Queue
	if c.Queue.FillAt == 0 {
		c.Queue.FillAt = d.Queue.FillAt
	}
	if c.Queue.PrepareAt == 0 {
		c.Queue.PrepareAt = d.Queue.PrepareAt
	}
	if c.Queue.Window == 0 {
		c.Queue.Window = d.Queue.Window
	}

	// Lifecycle
	if c.Lifecycle.Keepalive == "" {
		c.Lifecycle.Keepalive = d.Lifecycle.Keepalive
	}
	if c.Lifecycle.KeepaliveInterval == 0 {
		c.Lifecycle.KeepaliveInterval = d.Lifecycle.KeepaliveInterval
	}

	// Store
	if c.Store.Path == "" {
		c.Store.Path = d.Store.Path
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}
