package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.falai/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session"`
	Presence       Presence      `toml:"presence"`
	Storage        Storage       `toml:"storage"`
	Notifications  Notifications `toml:"notifications"`
	Typing         Typing        `toml:"typing"`
}

// Presence configures the online lease. An empty RedisAddr selects the
// in-process lease.
type Presence struct {
	RedisAddr        string `toml:"redis_addr"`
	RedisDB          int    `toml:"redis_db"`
	TTLSeconds       int    `toml:"ttl_seconds"`
	HeartbeatSeconds int    `toml:"heartbeat_seconds"`
}

// TTL returns the lease time-to-live, defaulting to 30s.
func (p Presence) TTL() time.Duration {
	if p.TTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TTLSeconds) * time.Second
}

// Heartbeat returns the lease refresh interval, defaulting to TTL/3.
func (p Presence) Heartbeat() time.Duration {
	if p.HeartbeatSeconds <= 0 {
		return p.TTL() / 3
	}
	return time.Duration(p.HeartbeatSeconds) * time.Second
}

// Storage configures the media object store. Backend is "local" or "s3".
type Storage struct {
	Backend         string `toml:"backend"`
	LocalPath       string `toml:"local_path"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
	PublicURL       string `toml:"public_url"`
}

// Notifications configures user-facing alerts. Enabled plays the role of the
// notification permission: evaluated once at startup, never re-asked.
type Notifications struct {
	Enabled bool `toml:"enabled"`
}

// Typing configures the typing indicator quiet period.
type Typing struct {
	QuietMillis int `toml:"quiet_ms"`
}

// Quiet returns the auto-clear delay, defaulting to 2s.
func (t Typing) Quiet() time.Duration {
	if t.QuietMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(t.QuietMillis) * time.Millisecond
}

// Default returns the config used when no file exists yet.
func Default() *Config {
	return &Config{
		Notifications: Notifications{Enabled: true},
		Storage:       Storage{Backend: "local"},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
