// Package config loads workbench-wide settings from YAML. Missing fields
// fall back to sensible defaults, so an empty file and no file behave the
// same.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QueryConfig bounds query execution across all engines. Per-call options
// still override these.
type QueryConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRows        int `yaml:"max_rows"`
}

// SchemaConfig tunes the schema tree service.
type SchemaConfig struct {
	CacheTTL string `yaml:"cache_ttl"`
	DemoMode bool   `yaml:"demo_mode"`
}

type Config struct {
	ConnectionsDir string                       `yaml:"connections_dir"`
	Query          QueryConfig                  `yaml:"query"`
	Schema         SchemaConfig                 `yaml:"schema"`
	Engines        map[string]map[string]string `yaml:"engines"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		ConnectionsDir: "connections",
		Query:          QueryConfig{TimeoutSeconds: 30, MaxRows: 1000},
		Schema:         SchemaConfig{CacheTTL: "5m"},
	}
}

// LoadConfig reads the file at configPath and normalizes it. A missing file
// yields the defaults; a malformed file is an error.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.normalize()
	return &config, nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.ConnectionsDir) == "" {
		c.ConnectionsDir = "connections"
	}
	if c.Query.TimeoutSeconds <= 0 {
		c.Query.TimeoutSeconds = 30
	}
	if c.Query.MaxRows <= 0 {
		c.Query.MaxRows = 1000
	}
	if strings.TrimSpace(c.Schema.CacheTTL) == "" {
		c.Schema.CacheTTL = "5m"
	}
}

// QueryTimeout returns the configured default execution timeout.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Query.TimeoutSeconds) * time.Second
}

// SchemaCacheTTL parses the configured cache TTL, falling back to five
// minutes on a malformed value.
func (c *Config) SchemaCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Schema.CacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// EngineOptions returns the free-form option map for one engine, never nil.
func (c *Config) EngineOptions(engineID string) map[string]string {
	if opts, ok := c.Engines[engineID]; ok {
		return opts
	}
	return map[string]string{}
}
