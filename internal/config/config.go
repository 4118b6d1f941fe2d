// Package config loads the facility tunables the demo CLI exposes as
// operator-editable knobs: the core library itself never reads
// configuration, it takes explicit parameters (see DESIGN.md).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables a covctl invocation can load from disk.
type Config struct {
	LogLevel      string     `yaml:"log_level"`
	DefaultSize   uint64     `yaml:"default_size_words"`
	MaxHandles    int        `yaml:"max_handles"`
	RemoteBuckets []uint64   `yaml:"remote_scratch_buckets_words"`
	ASLR          ASLRConfig `yaml:"aslr"`
}

// ASLRConfig describes how instruction-pointer canonicalization looks
// up the runtime's relocation base (spec.md §9). The trace sinks only
// subtract whatever base their caller passes; obtaining the base is
// external plumbing (spec.md §1). Load validates Mode, but covctl's
// demo commands do not read this section: they record PCs with a zero
// base.
type ASLRConfig struct {
	Mode string `yaml:"mode"` // "none", "fixed", "env"
	Base uint64 `yaml:"base"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validASLRModes = map[string]bool{
	"none":  true,
	"fixed": true,
	"env":   true,
}

// Default returns the configuration covctl uses when no file is
// supplied.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		DefaultSize:   4096,
		MaxHandles:    64,
		RemoteBuckets: []uint64{256, 1024, 4096},
		ASLR:          ASLRConfig{Mode: "none"},
	}
}

// Load reads and validates a YAML configuration file, filling in
// defaults for any field the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.DefaultSize < 2 {
		return fmt.Errorf("default_size_words must be >= 2, got %d", c.DefaultSize)
	}
	if c.MaxHandles <= 0 {
		return fmt.Errorf("max_handles must be positive, got %d", c.MaxHandles)
	}
	if !validASLRModes[c.ASLR.Mode] {
		return fmt.Errorf("invalid aslr.mode %q", c.ASLR.Mode)
	}
	for _, b := range c.RemoteBuckets {
		if b < 2 {
			return fmt.Errorf("remote_scratch_buckets_words entries must be >= 2, got %d", b)
		}
	}
	return nil
}
