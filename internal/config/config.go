// Package config loads the client configuration from TOML with environment
// overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STELLAR_"

// Load reads configuration from standard locations with environment overrides.
// Search order: $XDG_CONFIG_HOME/stellar-client/config.toml,
// ~/.config/stellar-client/config.toml, /etc/stellar-client/config.toml
func Load() (*Config, error) {
	cfg := &Config{}

	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	var paths []string

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdgConfig = filepath.Join(home, ".config")
		}
	}
	if xdgConfig != "" {
		paths = append(paths, filepath.Join(xdgConfig, "stellar-client", "config.toml"))
	}
	paths = append(paths, "/etc/stellar-client/config.toml")

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Server
	envString("SERVER_BASE_URL", &cfg.Server.BaseURL)
	envString("SERVER_TOKEN", &cfg.Server.Token)
	envString("SERVER_SESSION_ID", &cfg.Server.SessionID)
	envInt("SERVER_TIMEOUT", &cfg.Server.Timeout)
	envInt("SERVER_MAX_RETRIES", &cfg.Server.MaxRetries)
	envInt("SERVER_RETRY_WAIT", &cfg.Server.RetryWait)

	// MPD
	envString("MPD_HOST", &cfg.MPD.Host)
	envInt("MPD_PORT", &cfg.MPD.Port)
	envString("MPD_PASSWORD", &cfg.MPD.Password)
	envInt("MPD_POLL_INTERVAL", &cfg.MPD.PollInterval)

	// HTTP
	envString("HTTP_LISTEN", &cfg.HTTP.Listen)
	envInt("HTTP_MAX_REMOTE_CLIENTS", &cfg.HTTP.MaxRemoteClients)
	envInt("HTTP_DEBOUNCE", &cfg.HTTP.Debounce)
	envString("HTTP_ALLOW_ORIGIN", &cfg.HTTP.AllowOrigin)

	// Playback
	envString("PLAYBACK_QUALITY", &cfg.Playback.Quality)
	envInt("PLAYBACK_SEEK_STEP", &cfg.Playback.SeekStep)

	// Lifecycle
	envString("LIFECYCLE_KEEPALIVE", &cfg.Lifecycle.Keepalive)
	envInt("LIFECYCLE_KEEPALIVE_INTERVAL", &cfg.Lifecycle.KeepaliveInterval)
	if v := os.Getenv(EnvPrefix + "LIFECYCLE_MEDIA_ACTIONS"); v != "" {
		cfg.Lifecycle.MediaActions = strings.Split(v, ",")
	}

	// Store
	envString("STORE_PATH", &cfg.Store.Path)

	// Log
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}
