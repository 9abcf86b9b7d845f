// Package config loads the YAML configuration of the ptiff command.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the command configuration loaded from YAML
type Config struct {
	// Engine parameters shared by every subcommand
	Engine struct {
		// Workers bounds the goroutines used per operation
		Workers int `yaml:"workers"`

		// TileCacheSize is the number of decoded tiles kept per file
		TileCacheSize int `yaml:"tileCacheSize"`

		// BigTIFF selects the BigTIFF container for new files
		BigTIFF bool `yaml:"bigTIFF"`
	} `yaml:"engine"`

	// Pyramid construction parameters
	Pyramid struct {
		// TileSize is the edge of the square tiles of every level
		TileSize int `yaml:"tileSize"`

		// Strategy selects the level multi-page crops are served from
		Strategy string `yaml:"strategy"`
	} `yaml:"pyramid"`

	// Tile server parameters
	Server struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		Concurrency  int           `yaml:"concurrency"`
	} `yaml:"server"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Engine.Workers = runtime.NumCPU()
	cfg.Engine.TileCacheSize = 256
	cfg.Engine.BigTIFF = false

	cfg.Pyramid.TileSize = 256
	cfg.Pyramid.Strategy = "fit-page-tile"

	cfg.Server.Addr = ":8080"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.Concurrency = 256

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable zero.
func (c *Config) Validate() error {
	if c.Pyramid.TileSize <= 0 || c.Pyramid.TileSize%16 != 0 {
		return fmt.Errorf("invalid pyramid tile size %d: must be a positive multiple of 16", c.Pyramid.TileSize)
	}
	if c.Engine.TileCacheSize < 0 {
		return fmt.Errorf("invalid tile cache size %d", c.Engine.TileCacheSize)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
