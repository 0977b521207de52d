package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile pins the backend endpoints of a named environment.
type Profile struct {
	WebsocketURL string
	BackendURL   string
}

var profiles = map[string]Profile{
	"development": {
		WebsocketURL: "ws://localhost:3000",
		BackendURL:   "http://localhost:3000",
	},
	"production": {
		WebsocketURL: "wss://print.repairmind.io",
		BackendURL:   "https://api.repairmind.io",
	},
}

type Config struct {
	Environment string         `yaml:"environment"`
	Backend     BackendConfig  `yaml:"backend"`
	Queue       QueueConfig    `yaml:"queue"`
	Printers    PrintersConfig `yaml:"printers"`
	Logging     LoggingConfig  `yaml:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

type BackendConfig struct {
	WebsocketURL      string        `yaml:"websocket_url"`
	BackendURL        string        `yaml:"backend_url"`
	TenantID          string        `yaml:"tenant_id"`
	ClientID          string        `yaml:"client_id"`
	APIKey            string        `yaml:"api_key"`
	Token             string        `yaml:"token"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AutoRegister      bool          `yaml:"auto_register"`
}

type QueueConfig struct {
	Path       string        `yaml:"path"`
	MaxRetries int           `yaml:"max_retries"`
	TTL        time.Duration `yaml:"ttl"`
}

type PrintersConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func defaults() *Config {
	return &Config{
		Environment: "production",
		Backend: BackendConfig{
			HeartbeatInterval: 30 * time.Second,
			AutoRegister:      true,
		},
		Queue: QueueConfig{
			Path:       DefaultQueuePath(),
			MaxRetries: 3,
			TTL:        24 * time.Hour,
		},
		Printers: PrintersConfig{
			RefreshInterval: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultQueuePath is the per-user queue file location.
func DefaultQueuePath() string {
	return filepath.Join(userDir(), "job-queue.json")
}

// DefaultStorePath is the per-user settings database location.
func DefaultStorePath() string {
	return filepath.Join(userDir(), "settings.db")
}

func userDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".repairmind-print")
}

// Load reads the optional YAML config; a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("PRINT_AGENT_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays the process environment on top of the file config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WEBSOCKET_URL"); v != "" {
		c.Backend.WebsocketURL = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.Backend.BackendURL = v
	}
	if v := os.Getenv("TENANT_ID"); v != "" {
		c.Backend.TenantID = v
	}
	if v := os.Getenv("CLIENT_ID"); v != "" {
		c.Backend.ClientID = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Backend.HeartbeatInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("AUTO_REGISTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Backend.AutoRegister = b
		}
	}
	if v := os.Getenv("PRINT_AGENT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ResolveProfile fills in the environment-pinned URLs unless explicit URLs
// were provided.
func (c *Config) ResolveProfile() error {
	profile, ok := profiles[c.Environment]
	if !ok {
		return fmt.Errorf("unknown environment %q (valid: development, production)", c.Environment)
	}
	if c.Backend.WebsocketURL == "" {
		c.Backend.WebsocketURL = profile.WebsocketURL
	}
	if c.Backend.BackendURL == "" {
		c.Backend.BackendURL = profile.BackendURL
	}
	return nil
}

func (c *Config) Validate() error {
	if _, ok := profiles[c.Environment]; !ok {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Backend.WebsocketURL == "" {
		return fmt.Errorf("websocket url is required")
	}
	if c.Backend.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if c.Backend.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if c.Backend.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat interval must be non-negative")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	if c.Queue.TTL < 0 {
		return fmt.Errorf("queue ttl must be non-negative")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	return nil
}
