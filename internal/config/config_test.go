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

	cfg := &Config{
		DefaultSession: "work",
		Presence:       Presence{RedisAddr: "localhost:6379", TTLSeconds: 15},
		Storage:        Storage{Backend: "s3", Bucket: "chat-media"},
		Notifications:  Notifications{Enabled: true},
		Typing:         Typing{QuietMillis: 1500},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Presence.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", loaded.Presence.RedisAddr)
	}
	if loaded.Storage.Bucket != "chat-media" {
		t.Errorf("Bucket = %q, want chat-media", loaded.Storage.Bucket)
	}
	if loaded.Typing.Quiet() != 1500*time.Millisecond {
		t.Errorf("Quiet() = %v, want 1.5s", loaded.Typing.Quiet())
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	if cfg.Presence.TTL() != 30*time.Second {
		t.Errorf("TTL() = %v, want 30s", cfg.Presence.TTL())
	}
	if cfg.Presence.Heartbeat() != 10*time.Second {
		t.Errorf("Heartbeat() = %v, want 10s", cfg.Presence.Heartbeat())
	}
	if cfg.Typing.Quiet() != 2*time.Second {
		t.Errorf("Quiet() = %v, want 2s", cfg.Typing.Quiet())
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
