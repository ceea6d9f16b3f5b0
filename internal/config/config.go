package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danpark-dev/mafiasync/internal/channel"
)

// Config is the engine configuration: where the game server lives and how
// the push channels behave.
type Config struct {
	Server struct {
		// BaseURL is the REST root, e.g. "http://localhost:8080/api".
		BaseURL string `yaml:"base_url"`
		// WebsocketURL is the push root, e.g. "ws://localhost:8080".
		WebsocketURL      string `yaml:"websocket_url"`
		RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	} `yaml:"server"`

	Channels struct {
		DialTimeoutSec  int   `yaml:"dial_timeout_sec"`
		BackoffBaseMs   int   `yaml:"backoff_base_ms"`
		BackoffCapMs    int   `yaml:"backoff_cap_ms"`
		MaxAttempts     int   `yaml:"max_attempts"`
		MaxMessageBytes int64 `yaml:"max_message_bytes"`
	} `yaml:"channels"`

	Notes struct {
		// FilePath enables the file-backed note store when set; empty means
		// in-memory only.
		FilePath string `yaml:"file_path"`
	} `yaml:"notes"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.BaseURL = "http://localhost:8080/api"
	cfg.Server.WebsocketURL = "ws://localhost:8080"
	cfg.Server.RequestTimeoutSec = 30
	cfg.Channels.DialTimeoutSec = 10
	cfg.Channels.BackoffBaseMs = 1000
	cfg.Channels.BackoffCapMs = 10000
	cfg.Channels.MaxAttempts = 5
	cfg.Channels.MaxMessageBytes = 4096
	return cfg
}

// Load reads the YAML file at path (when it exists) and applies environment
// overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.Server.BaseURL = getEnv("MAFIA_SERVER_URL", cfg.Server.BaseURL)
	cfg.Server.WebsocketURL = getEnv("MAFIA_WS_URL", cfg.Server.WebsocketURL)
	cfg.Server.RequestTimeoutSec = getEnvAsInt("MAFIA_REQUEST_TIMEOUT_SEC", cfg.Server.RequestTimeoutSec)
	cfg.Channels.MaxAttempts = getEnvAsInt("MAFIA_CHANNEL_MAX_ATTEMPTS", cfg.Channels.MaxAttempts)
	cfg.Notes.FilePath = getEnv("MAFIA_NOTES_FILE", cfg.Notes.FilePath)

	return cfg, nil
}

// ChannelOptions converts the channel section into manager options.
func (c *Config) ChannelOptions() channel.Options {
	return channel.Options{
		DialTimeout:    time.Duration(c.Channels.DialTimeoutSec) * time.Second,
		BaseDelay:      time.Duration(c.Channels.BackoffBaseMs) * time.Millisecond,
		MaxDelay:       time.Duration(c.Channels.BackoffCapMs) * time.Millisecond,
		MaxAttempts:    c.Channels.MaxAttempts,
		MaxMessageSize: c.Channels.MaxMessageBytes,
	}
}

// RequestTimeout returns the REST timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
