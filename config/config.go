package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Transport selects how stream bytes reach the player.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Config is the application configuration, persisted as JSON in the
// user config directory and overridable through the environment.
type Config struct {
	StreamURL  string  `json:"stream_url"`
	BackendURL string  `json:"backend_url"`
	Transport  string  `json:"transport"` // "http" or "websocket"
	Volume     float64 `json:"volume"`    // 0.0-1.0
	CacheBust  bool    `json:"cache_bust"`

	// Reconnection pacing
	InitialRetryDelayMs int `json:"initial_retry_delay_ms"`
	MaxRetryDelayMs     int `json:"max_retry_delay_ms"`
	MaxRetries          int `json:"max_retries"` // 0 = retry indefinitely

	// Stream liveness
	HealthCheckIntervalSec int `json:"health_check_interval_sec"`
	SilenceTimeoutSec      int `json:"silence_timeout_sec"`
	PauseGraceMs           int `json:"pause_grace_ms"`

	// Recording
	ChunkSeconds   int `json:"chunk_seconds"`
	RetentionHours int `json:"retention_hours"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		StreamURL:  "https://stream.radiojar.com/8s5u5tpdtwzuv",
		BackendURL: "http://localhost:5000",
		Transport:  TransportHTTP,
		Volume:     0.8,
		CacheBust:  true,

		InitialRetryDelayMs: 1000,
		MaxRetryDelayMs:     30000,
		MaxRetries:          0, // a 24/7 stream keeps retrying

		HealthCheckIntervalSec: 5,
		SilenceTimeoutSec:      15,
		PauseGraceMs:           2000,

		ChunkSeconds:   240,
		RetentionHours: 24,
	}
}

// Durations derived from the millisecond/second fields.

func (c Config) InitialRetryDelay() time.Duration {
	return time.Duration(c.InitialRetryDelayMs) * time.Millisecond
}

func (c Config) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelayMs) * time.Millisecond
}

func (c Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSec) * time.Second
}

func (c Config) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutSec) * time.Second
}

func (c Config) PauseGrace() time.Duration {
	return time.Duration(c.PauseGraceMs) * time.Millisecond
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// AppDirName is the directory under os.UserConfigDir holding the
// config file, the KV store and the log file.
const AppDirName = "radiorec"

// envConfigDir overrides the config location, used by tests.
const envConfigDir = "RADIOREC_CONFIG_DIR"

// Dir returns the app config directory, creating it if needed.
func Dir() (string, error) {
	if dir := os.Getenv(envConfigDir); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}

	appConfigDir := filepath.Join(configDir, AppDirName)
	if err := os.MkdirAll(appConfigDir, 0755); err != nil {
		return "", err
	}
	return appConfigDir, nil
}

func configPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file, falling back to defaults when it is
// missing, then applies environment overrides and validation.
func Load() (Config, error) {
	path, err := configPath()
	if err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(validate(cfg)), nil
		}
		return applyEnv(validate(cfg)), err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return applyEnv(validate(DefaultConfig())), err
	}
	return applyEnv(validate(cfg)), nil
}

// Save writes the config file.
func Save(cfg Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SaveVolume persists the volume while keeping everything else.
func SaveVolume(volume float64) error {
	cfg, _ := Load()
	cfg.Volume = volume
	return Save(validate(cfg))
}

// validate clamps out-of-range values back to usable ones.
func validate(cfg Config) Config {
	if cfg.Volume < 0 {
		cfg.Volume = 0
	} else if cfg.Volume > 1 {
		cfg.Volume = 1
	}

	d := DefaultConfig()
	if cfg.Transport != TransportHTTP && cfg.Transport != TransportWebSocket {
		cfg.Transport = d.Transport
	}
	if cfg.InitialRetryDelayMs <= 0 {
		cfg.InitialRetryDelayMs = d.InitialRetryDelayMs
	}
	if cfg.MaxRetryDelayMs < cfg.InitialRetryDelayMs {
		cfg.MaxRetryDelayMs = d.MaxRetryDelayMs
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.HealthCheckIntervalSec <= 0 {
		cfg.HealthCheckIntervalSec = d.HealthCheckIntervalSec
	}
	if cfg.SilenceTimeoutSec <= 0 {
		cfg.SilenceTimeoutSec = d.SilenceTimeoutSec
	}
	if cfg.PauseGraceMs <= 0 {
		cfg.PauseGraceMs = d.PauseGraceMs
	}
	if cfg.ChunkSeconds <= 0 {
		cfg.ChunkSeconds = d.ChunkSeconds
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = d.RetentionHours
	}
	return cfg
}

// applyEnv layers deploy-time environment overrides on top of the file.
func applyEnv(cfg Config) Config {
	if v := os.Getenv("RADIOREC_STREAM_URL"); v != "" {
		cfg.StreamURL = v
	}
	if v := os.Getenv("RADIOREC_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("RADIOREC_TRANSPORT"); v != "" {
		switch strings.ToLower(v) {
		case TransportHTTP, TransportWebSocket:
			cfg.Transport = strings.ToLower(v)
		}
	}
	return cfg
}
