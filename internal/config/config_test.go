package config

import (
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	data map[string]any
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", false, nil
	}
	return s, true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, isInt := v.(int)
	if !isInt {
		return 0, false, nil
	}
	return i, true, nil
}

func (b *memBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error         { delete(b.data, key); return nil }

func emptyBackend() *memBackend {
	return &memBackend{data: make(map[string]any)}
}

func TestDefaults(t *testing.T) {
	t.Setenv("DOSELOG_API_TOKEN", "test-token")

	cfg, err := loadWith(emptyBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Remote.BaseURL != "https://sync.doselog.app" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if got := cfg.Sync.IntervalDuration(); got != 30*time.Second {
		t.Errorf("Sync interval = %v, want 30s", got)
	}
	if got := cfg.Sync.ShutdownTimeoutDuration(); got != 5*time.Second {
		t.Errorf("Shutdown timeout = %v, want 5s", got)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValues(t *testing.T) {
	t.Setenv("DOSELOG_API_TOKEN", "test-token")

	b := emptyBackend()
	b.data["server.port"] = 5000
	b.data["storage.data_dir"] = "/tmp/doselog-test"
	b.data["remote.base_url"] = "https://staging.doselog.app"
	b.data["sync.interval"] = "1m"

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/doselog-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Remote.BaseURL != "https://staging.doselog.app" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if got := cfg.Sync.IntervalDuration(); got != time.Minute {
		t.Errorf("Sync interval = %v, want 1m", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DOSELOG_API_TOKEN", "test-token")
	t.Setenv("DOSELOG_SERVER_PORT", "7000")
	t.Setenv("DOSELOG_SYNC_INTERVAL", "2m")

	b := emptyBackend()
	b.data["server.port"] = 5000
	b.data["sync.interval"] = "1m"

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000 (env should win)", cfg.Server.Port)
	}
	if got := cfg.Sync.IntervalDuration(); got != 2*time.Minute {
		t.Errorf("Sync interval = %v, want 2m (env should win)", got)
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DOSELOG_API_TOKEN", "test-token")

	b := emptyBackend()
	b.data["sync.interval"] = "not-a-duration"

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Sync.IntervalDuration(); got != 30*time.Second {
		t.Errorf("Sync interval = %v, want default 30s", got)
	}
}

func TestMissingAPIToken(t *testing.T) {
	t.Setenv("DOSELOG_API_TOKEN", "")

	_, err := loadWith(emptyBackend(), mockKeychain{})
	if err == nil {
		t.Fatal("expected error for missing API token, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err)
	}
}

func TestKeychainFallback(t *testing.T) {
	t.Setenv("DOSELOG_API_TOKEN", "")

	cfg, err := loadWith(emptyBackend(), mockKeychain{value: "keychain-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "keychain-token" {
		t.Errorf("APIToken = %q, want keychain-token", cfg.Server.APIToken)
	}
}

func TestSetKeyValidation(t *testing.T) {
	if err := SetKey("server.api_token", "x"); err == nil {
		t.Error("expected error setting a secret key")
	}
	if err := SetKey("no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}
