// Package config defines the engine configuration and its YAML loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chuyangliu/lsmkv/pkg/logging"
	"github.com/chuyangliu/lsmkv/pkg/store"
	"github.com/chuyangliu/lsmkv/pkg/store/memstore"
)

// Config holds the tunable parameters of the engine.
type Config struct {
	// RootDir is the base directory holding all run files.
	RootDir string `yaml:"root_dir"`
	// MemBufferBytes is the byte budget of the in-memory write buffer.
	MemBufferBytes uint64 `yaml:"mem_buffer_bytes"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		RootDir:        "./lsmkv-data",
		MemBufferBytes: uint64(memstore.DefaultBudget),
		LogLevel:       "info",
	}
}

// Load reads a YAML file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Read config file failed | path=%v | err=[%w]", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Parse config file failed | path=%v | err=[%w]", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Validate config failed | path=%v | err=[%w]", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if len(c.RootDir) == 0 {
		return fmt.Errorf("Root directory must not be empty")
	}
	if c.MemBufferBytes == 0 {
		return fmt.Errorf("Memory buffer budget must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Budget returns the buffer budget as a store length.
func (c *Config) Budget() store.KVLen {
	return store.KVLen(c.MemBufferBytes)
}

// ParsedLogLevel returns the numeric logging level.
func (c *Config) ParsedLogLevel() int {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}
