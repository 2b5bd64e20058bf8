package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Configuration holds the CLI tools' settings. The decoding library
// itself takes no configuration and reads no environment variables —
// this governs only cmd/image_analyzer and cmd/info.
type Configuration struct {
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	Scan    ScanConfig    `yaml:"scan"`
}

// LoggingConfig controls the CLI's own diagnostic output, separate
// from the info/image_analyzer stdout reporting conventions.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CacheConfig sizes the VFS resolver's two LRU caches (opened file
// systems, opened data streams).
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// ScanConfig sizes the signature scanner's head/tail read window.
type ScanConfig struct {
	WindowBytes int `yaml:"window_bytes"`
}

// NewDefault returns the settings the CLI tools use absent a config
// file, matching internal/vfs's own compiled-in defaults
// (defaultCacheCapacity, scanWindow).
func NewDefault() *Configuration {
	return &Configuration{
		Logging: LoggingConfig{Level: "INFO"},
		Cache:   CacheConfig{Capacity: 128},
		Scan:    ScanConfig{WindowBytes: 1 << 20},
	}
}

// LoadFromFile loads configuration from a YAML file, leaving any
// field the file omits at its NewDefault value.
func LoadFromFile(filename string) (*Configuration, error) {
	cfg := NewDefault()
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings that would make the CLI tools misbehave
// rather than merely perform poorly.
func (c *Configuration) Validate() error {
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be greater than 0")
	}
	if c.Scan.WindowBytes <= 0 {
		return fmt.Errorf("scan.window_bytes must be greater than 0")
	}
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for _, level := range validLevels {
		if c.Logging.Level == level {
			return nil
		}
	}
	return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
}
