package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// ModelConfig holds the parameters used when a command needs to create a
// new model. Stored models carry their own parameters and ignore these.
type ModelConfig struct {
	Order     int     `json:"order"`
	Alpha     float64 `json:"alpha"`
	Recursive bool    `json:"recursive"`
	Seed      uint64  `json:"seed"`
	Binary    bool    `json:"binary"`
}

// Config is the top-level configuration struct for the CLI.
type Config struct {
	LogLevel     string       `json:"log_level"`
	DataDir      string       `json:"data_dir"`
	DatabasePath string       `json:"database_path"`
	Model        *ModelConfig `json:"model_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		DataDir:      "./data",
		DatabasePath: "./data/drosera.db?_journal_mode=WAL&_busy_timeout=5000",
		Model: &ModelConfig{
			Order:     3,
			Alpha:     1.0,
			Recursive: false,
			Seed:      0,
			Binary:    false,
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the CLI can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Model == nil {
		config.Model = DefaultConfig().Model
	}

	return config, nil
}
