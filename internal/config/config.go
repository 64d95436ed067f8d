// Package config provides configuration loading and validation for the swarm CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/content-swarm/internal/types"
)

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or CLI flags.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // postgres:// or sqlite:// URL

	// Server
	Port int `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// Logging
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=text json"`

	// Providers treated as the local resource class; everything else is cloud
	LocalProviders []string `json:"local_providers,omitempty" yaml:"local_providers,omitempty" validate:"dive,required"`

	// Dispatcher
	PollIntervalMS int `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms,omitempty" validate:"min=0"`

	// Execution budget applied to tasks created without one
	Execution types.ExecutionConfig `json:"execution" yaml:"execution" validate:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:           8080,
		LogLevel:       "info",
		LogFormat:      "text",
		PollIntervalMS: 500,
		Execution: types.ExecutionConfig{
			MaxLocalConcurrent:  2,
			MaxCloudConcurrent:  5,
			MaxEditCycles:       3,
			TopNForFinalRanking: 5,
			TopNForDeliverable:  1,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values. The execution budget is
// only checked when set, since an empty one is filled by MergeWithDefaults.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.Execution != (types.ExecutionConfig{}) {
		if err := c.Execution.Validate(); err != nil {
			return fmt.Errorf("config error: execution: %w", err)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}
	if len(result.LocalProviders) == 0 {
		result.LocalProviders = defaults.LocalProviders
	}
	if result.PollIntervalMS == 0 {
		result.PollIntervalMS = defaults.PollIntervalMS
	}

	// The execution budget is replaced as a whole.
	if result.Execution == (types.ExecutionConfig{}) {
		result.Execution = defaults.Execution
	}

	return result
}
