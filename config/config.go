// Package config provides YAML configuration parsing for FlowCache.
//
// This package enables running FlowCache as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Feature Flags
//	port: 8080
//	buffer: 64
//
//	seed:
//	  - key: checkout-v2
//	    data:
//	      enabled: "true"
//	      owner: "${FLAGS_OWNER:-platform}"
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	// defaultPort is the HTTP port used when the config does not set one.
	defaultPort = 8080

	// defaultBuffer is the subscription buffer used when the config does
	// not set one.
	defaultBuffer = 64
)

// Config is the root configuration structure for FlowCache.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the live view title. Defaults to "FlowCache" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Buffer is the per-subscription delivery channel capacity.
	// Defaults to 64.
	Buffer int `yaml:"buffer"`

	// Seed defines entries stored before the server starts accepting
	// requests, so streams have initial state to show.
	Seed []SeedEntry `yaml:"seed"`
}

// SeedEntry defines one entry stored at startup.
type SeedEntry struct {
	// Key is the entry's identity. Required.
	Key string `yaml:"key"`

	// Data is the entry payload. String values support environment
	// variable substitution: ${VAR} or ${VAR:-default}.
	Data map[string]string `yaml:"data"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in seed data values are expanded after parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in seed data values. Defaults are
// applied for Port (8080) and Buffer (64).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Buffer == 0 {
		cfg.Buffer = defaultBuffer
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.Buffer < 1 {
		return fmt.Errorf("buffer must be positive, got %d", c.Buffer)
	}

	seen := make(map[string]struct{}, len(c.Seed))
	for i := range c.Seed {
		entry := &c.Seed[i]

		if entry.Key == "" {
			return fmt.Errorf("seed[%d]: key is required", i)
		}
		if _, exists := seen[entry.Key]; exists {
			return fmt.Errorf("seed[%d]: duplicate key %q", i, entry.Key)
		}
		seen[entry.Key] = struct{}{}

		for k, v := range entry.Data {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("seed[%d] (%s): data[%s]: %w", i, entry.Key, k, err)
			}
			entry.Data[k] = expanded
		}
	}

	return nil
}

// Validate checks an already-parsed config. Exposed for callers that build
// a Config programmatically rather than through [Parse].
func (c *Config) Validate() error {
	if c.Port == 0 {
		return errors.New("port is required")
	}
	return c.expandAndValidate()
}
