package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration.
type Config struct {
	Logging LogConfig
	Serve   ServeConfig
	Bridge  BridgeConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// ServeConfig holds the WebSocket host's HTTP listener configuration.
type ServeConfig struct {
	Addr  string `envconfig:"ADDR" default:"127.0.0.1:8420"`
	Title string `envconfig:"TITLE" default:"webview"`
}

// BridgeConfig holds bridge tuning knobs.
type BridgeConfig struct {
	QueueSize int `envconfig:"QUEUE_SIZE" default:"64"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("webview", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Logging: LogConfig{Level: "info"},
		Serve:   ServeConfig{Addr: "127.0.0.1:8420", Title: "webview"},
		Bridge:  BridgeConfig{QueueSize: 64},
	}
}
