// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg, err := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	rounding := cfg.Allocator.Rounding
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Allocator     AllocatorConfig     `yaml:"allocator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// AllocatorConfig controls how distribution edits are rounded and validated
type AllocatorConfig struct {
	Rounding    string   `yaml:"rounding"` // "largest_remainder" or "nearest"
	Strict      bool     `yaml:"strict"`   // reject partial sums instead of renormalizing
	DefaultKeys []string `yaml:"default_keys"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "audience_mix.db",
		},
		Allocator: AllocatorConfig{
			Rounding: "largest_remainder",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "audiencemix",
			},
		},
	}
}

// Load reads and parses the config file. Fields absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${AUDIENCEMIX_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := Defaults()

	cfg.Server.Port = getEnvInt("AUDIENCEMIX_PORT", cfg.Server.Port)
	if origins := os.Getenv("AUDIENCEMIX_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	cfg.Storage.DatabasePath = getEnv("AUDIENCEMIX_DB_PATH", cfg.Storage.DatabasePath)
	cfg.Allocator.Rounding = getEnv("AUDIENCEMIX_ROUNDING", cfg.Allocator.Rounding)
	cfg.Allocator.Strict = getEnvBool("AUDIENCEMIX_STRICT", cfg.Allocator.Strict)
	if keys := os.Getenv("AUDIENCEMIX_DEFAULT_KEYS"); keys != "" {
		cfg.Allocator.DefaultKeys = splitList(keys)
	}
	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)
	cfg.Observability.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Observability.Metrics.Enabled)
	cfg.Observability.Metrics.Namespace = getEnv("METRICS_NAMESPACE", cfg.Observability.Metrics.Namespace)

	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() (*Config, error) {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath loads the file at path. Only a missing file falls back to
// environment variables; a file that exists but fails to parse or validate is
// an error.
func LoadOrEnvWithPath(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg = LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config from environment: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Allocator.Rounding {
	case "", "largest_remainder", "nearest":
	default:
		return fmt.Errorf("allocator.rounding %q must be largest_remainder or nearest", c.Allocator.Rounding)
	}
	seen := make(map[string]bool, len(c.Allocator.DefaultKeys))
	for _, key := range c.Allocator.DefaultKeys {
		if key == "" || seen[key] {
			return fmt.Errorf("allocator.default_keys contains an empty or duplicate key %q", key)
		}
		seen[key] = true
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvBool accepts true/1/yes and false/0/no
func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
