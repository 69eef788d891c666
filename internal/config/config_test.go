package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Run from an empty directory so no stray .stride.yaml is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Owner.ID != "local" {
		t.Errorf("owner.id = %q, want local", cfg.Owner.ID)
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("sync.interval = %v, want 5m", cfg.Sync.Interval)
	}
	if cfg.Remote.Timeout != 15*time.Second {
		t.Errorf("remote.timeout = %v, want 15s", cfg.Remote.Timeout)
	}
	if cfg.Data.Path == "" {
		t.Error("data.path should have a default")
	}
	if cfg.Dashboard.Port != 8350 {
		t.Errorf("dashboard.port = %d, want 8350", cfg.Dashboard.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
owner:
  id: alice
remote:
  url: https://api.example.com
  token: secret
sync:
  interval: 30s
  debounce: 1s
data:
  path: /tmp/custom.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Owner.ID != "alice" {
		t.Errorf("owner.id = %q, want alice", cfg.Owner.ID)
	}
	if cfg.Remote.URL != "https://api.example.com" {
		t.Errorf("remote.url = %q", cfg.Remote.URL)
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("sync.interval = %v, want 30s", cfg.Sync.Interval)
	}
	if cfg.Sync.Debounce != time.Second {
		t.Errorf("sync.debounce = %v, want 1s", cfg.Sync.Debounce)
	}
	if cfg.Data.Path != "/tmp/custom.db" {
		t.Errorf("data.path = %q", cfg.Data.Path)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STRIDE_OWNER_ID", "bob")
	t.Setenv("STRIDE_REMOTE_URL", "https://env.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Owner.ID != "bob" {
		t.Errorf("owner.id = %q, want bob (env override)", cfg.Owner.ID)
	}
	if cfg.Remote.URL != "https://env.example.com" {
		t.Errorf("remote.url = %q, want env value", cfg.Remote.URL)
	}
}
