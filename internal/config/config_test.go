package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default(tmpDir)
	cfg.CurrentUserID = "u1"
	cfg.RemoteLatencyMs = 250
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.CurrentUserID != "u1" {
		t.Errorf("CurrentUserID = %q, want u1", loaded.CurrentUserID)
	}
	if loaded.RemoteLatencyMs != 250 {
		t.Errorf("RemoteLatencyMs = %d, want 250", loaded.RemoteLatencyMs)
	}
	if loaded.DBPath() != filepath.Join(tmpDir, "chatsync.db") {
		t.Errorf("DBPath() = %q", loaded.DBPath())
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("current_user_id = \"u1\"\ndata_dir = \""+tmpDir+"\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SyncInterval() != 30*time.Second {
		t.Errorf("SyncInterval() = %v, want 30s", cfg.SyncInterval())
	}
	if cfg.RemoteCallTimeout() != 10*time.Second {
		t.Errorf("RemoteCallTimeout() = %v, want 10s", cfg.RemoteCallTimeout())
	}
}

func TestValidate(t *testing.T) {
	cfg := Default(t.TempDir())
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without current_user_id")
	}
	cfg.CurrentUserID = "u1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default(tmpDir)); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
