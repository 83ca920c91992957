package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("CONVERTER_BASE_URL", "")
	t.Setenv("PORT", "")

	cfg := Load()
	if cfg.Port != defaultPort {
		t.Errorf("expected port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.Converter.BaseURL != defaultConverterURL {
		t.Errorf("expected base url %s, got %s", defaultConverterURL, cfg.Converter.BaseURL)
	}
	if cfg.Converter.Timeout != defaultTimeout {
		t.Errorf("expected timeout %v, got %v", defaultTimeout, cfg.Converter.Timeout)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
port: "9000"
converter:
  base_url: http://file.example
  timeout: 45s
camera:
  snapshot_url: http://cam.local/snapshot.jpg
  max_dimension: 1280
session_idle_timeout: 5m
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "")
	t.Setenv("CONVERTER_BASE_URL", "http://env.example")
	t.Setenv("CONVERTER_TIMEOUT", "30")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("expected port from file, got %s", cfg.Port)
	}
	if cfg.Converter.BaseURL != "http://env.example" {
		t.Errorf("expected env to win, got %s", cfg.Converter.BaseURL)
	}
	if cfg.Converter.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Converter.Timeout)
	}
	if cfg.Camera.SnapshotURL != "http://cam.local/snapshot.jpg" || cfg.Camera.MaxDimension != 1280 {
		t.Errorf("unexpected camera config: %+v", cfg.Camera)
	}
	if cfg.SessionIdleTimeout != 5*time.Minute {
		t.Errorf("expected 5m idle timeout, got %v", cfg.SessionIdleTimeout)
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("X_DURATION", "not-a-duration")
	if got := getDuration("X_DURATION", time.Second); got != time.Second {
		t.Errorf("expected fallback, got %v", got)
	}
	t.Setenv("X_DURATION", "1500ms")
	if got := getDuration("X_DURATION", time.Second); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
}
