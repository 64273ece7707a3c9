// Package config loads doselog configuration from the platform-native
// backend with environment-variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type RemoteConfig struct {
	BaseURL string
}

// SyncConfig keeps durations as strings so the backend stays a flat
// string/number store; the typed accessors parse with fallbacks.
type SyncConfig struct {
	Interval        string
	ShutdownTimeout string
}

const (
	defaultSyncInterval    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// IntervalDuration returns the background sync interval, falling back to
// the default when the configured value does not parse.
func (s SyncConfig) IntervalDuration() time.Duration {
	if d, err := time.ParseDuration(s.Interval); err == nil && d > 0 {
		return d
	}
	return defaultSyncInterval
}

// ShutdownTimeoutDuration returns the bound on the final shutdown sync.
func (s SyncConfig) ShutdownTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(s.ShutdownTimeout); err == nil && d > 0 {
		return d
	}
	return defaultShutdownTimeout
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Remote: RemoteConfig{
			BaseURL: "https://sync.doselog.app",
		},
		Sync: SyncConfig{
			Interval:        defaultSyncInterval.String(),
			ShutdownTimeout: defaultShutdownTimeout.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.doselog.app) and the
// API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/doselog/config.json
// and the token must be provided via environment variable.
//
// Environment variables (DOSELOG_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the API token if still empty.
	if cfg.Server.APIToken == "" {
		if key, err := kc.Get("doselog", "api_token"); err == nil && key != "" {
			cfg.Server.APIToken = key
		}
	}

	if cfg.Server.APIToken == "" {
		msg := "missing required config: API token. " +
			"Set it via environment variable DOSELOG_API_TOKEN" +
			apiTokenHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
