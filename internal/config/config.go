// Package config provides unified configuration for the minicql server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the minicql server.
type Config struct {
	// ClusterName is reported to drivers through system.local
	ClusterName string `json:"cluster_name" yaml:"cluster_name"`

	// Listener configuration
	Listener ListenerConfig `json:"listener" yaml:"listener"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Shutdown configuration
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ListenerConfig holds the native protocol listener configuration.
type ListenerConfig struct {
	// Addr is the TCP address the server listens on
	Addr string `json:"addr" yaml:"addr"`

	// MaxConnections caps concurrently served connections. 0 means
	// unlimited.
	MaxConnections int `json:"max_connections" yaml:"max_connections"`

	// IdleTimeout closes connections with no frames for this long.
	// 0 disables the idle check.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// SnapshotConfig holds snapshot output configuration.
type SnapshotConfig struct {
	// Dir is the directory snapshot files are written to
	Dir string `json:"dir" yaml:"dir"`
}

// ShutdownConfig holds graceful shutdown configuration.
type ShutdownConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// DrainTimeout is the time to wait for in-flight requests to complete
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Development enables console-friendly output
	Development bool `json:"development" yaml:"development"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		ClusterName: "minicql",
		Listener: ListenerConfig{
			Addr:           ":9042",
			MaxConnections: 0,
			IdleTimeout:    0,
		},
		Snapshot: SnapshotConfig{
			Dir: "./data/minicql/snapshots",
		},
		Shutdown: ShutdownConfig{
			ShutdownTimeout: 30 * time.Second,
			DrainTimeout:    15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name is required")
	}
	if c.Listener.Addr == "" {
		return fmt.Errorf("listener.addr is required")
	}
	if c.Listener.MaxConnections < 0 {
		return fmt.Errorf("listener.max_connections must not be negative, got %d", c.Listener.MaxConnections)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the MINICQL_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MINICQL_CLUSTER_NAME"); v != "" {
		cfg.ClusterName = v
	}
	if v := os.Getenv("MINICQL_LISTEN_ADDR"); v != "" {
		cfg.Listener.Addr = v
	}
	if v := os.Getenv("MINICQL_MAX_CONNECTIONS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Listener.MaxConnections)
	}
	if v := os.Getenv("MINICQL_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Listener.IdleTimeout = d
		}
	}
	if v := os.Getenv("MINICQL_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("MINICQL_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Shutdown.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("MINICQL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MINICQL_LOG_DEVELOPMENT"); v != "" {
		cfg.Logging.Development = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	if c.Snapshot.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Snapshot.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Snapshot.Dir, err)
	}
	return nil
}
