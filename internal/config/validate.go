package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.MPD.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mpd: %w", err))
	}
	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := c.Playback.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("playback: %w", err))
	}
	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}
	if err := c.Lifecycle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lifecycle: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("invalid base_url: missing host")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must be non-negative")
	}
	if c.RetryWait < 0 {
		return errors.New("retry_wait must be non-negative")
	}
	return nil
}

// Validate checks MPDConfig for errors.
func (c *MPDConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PollInterval < 0 {
		return errors.New("poll_interval must be non-negative")
	}
	return nil
}

// Validate checks HTTPConfig for errors.
func (c *HTTPConfig) Validate() error {
	if c.MaxRemoteClients < 0 {
		return errors.New("max_remote_clients must be non-negative")
	}
	if c.Debounce < 0 {
		return errors.New("debounce must be non-negative")
	}
	return nil
}

// Validate checks PlaybackConfig for errors.
func (c *PlaybackConfig) Validate() error {
	if _, err := track.ParseQuality(c.Quality); err != nil {
		return err
	}
	if c.SeekStep < 0 {
		return errors.New("seek_step must be non-negative")
	}
	return nil
}

// Validate checks QueueConfig for errors.
func (c *QueueConfig) Validate() error {
	if c.FillAt <= 0 || c.FillAt >= 100 {
		return fmt.Errorf("fill_at must be between 0 and 100, got %v", c.FillAt)
	}
	if c.PrepareAt <= 0 || c.PrepareAt >= 100 {
		return fmt.Errorf("prepare_at must be between 0 and 100, got %v", c.PrepareAt)
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

// Validate checks LifecycleConfig for errors.
func (c *LifecycleConfig) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.Actions(); err != nil {
		return err
	}
	return nil
}

// Policy returns the configured keepalive policy.
func (c *LifecycleConfig) Policy() (lifecycle.KeepalivePolicy, error) {
	return lifecycle.PolicyFor(c.Keepalive, time.Duration(c.KeepaliveInterval)*time.Second)
}

// Actions returns the configured media actions; empty means all.
func (c *LifecycleConfig) Actions() ([]lifecycle.Action, error) {
	if len(c.MediaActions) == 0 {
		return lifecycle.Actions, nil
	}

	known := make(map[lifecycle.Action]bool, len(lifecycle.Actions))
	for _, a := range lifecycle.Actions {
		known[a] = true
	}

	out := make([]lifecycle.Action, 0, len(c.MediaActions))
	for _, name := range c.MediaActions {
		a := lifecycle.Action(name)
		if !known[a] {
			return nil, fmt.Errorf("unknown media action %q", name)
		}
		out = append(out, a)
	}
	return out, nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	switch c.Format {
	case "", "console", "json":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.Format)
	}
	return nil
}
