// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for localchat.
//
// Supports TOML configuration with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.localchat/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete localchat configuration.
type Config struct {
	// DefaultModel is the model preselected for new chats.
	DefaultModel string `toml:"default_model"`

	// Server configuration (the local inference server)
	Server ServerConfig `toml:"server"`

	// Storage configuration (chat persistence)
	Storage StorageConfig `toml:"storage"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains inference-server connection settings.
type ServerConfig struct {
	// URL is the base URL of the server
	URL string `toml:"url"`
	// TimeoutSecs is the timeout for non-streaming requests in seconds.
	// Streaming requests are never subject to this timeout.
	TimeoutSecs int `toml:"timeout_secs"`
	// AutoStart launches the server binary when it is not running
	AutoStart bool `toml:"auto_start"`
}

// StorageConfig contains chat persistence settings.
type StorageConfig struct {
	// Driver selects the persistence backend: "sqlite" or "file"
	Driver string `toml:"driver"`
	// Path is the database file (sqlite) or state directory (file).
	// Empty means the default under ~/.localchat.
	Path string `toml:"path"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// File is the log file path (empty = default ~/.localchat/localchat.log)
	File string `toml:"file"`
	// Level is the minimum level: "debug", "info", "warn", "error"
	Level string `toml:"level"`
	// MaxSizeMB is the size at which the log file rotates
	MaxSizeMB int `toml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `toml:"max_backups"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DefaultModel: "llama3.2",

		Server: ServerConfig{
			URL:         "http://127.0.0.1:11434",
			TimeoutSecs: 30,
			AutoStart:   true,
		},

		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "",
		},

		Logging: LoggingConfig{
			File:       "",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the localchat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".localchat"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// StoragePath resolves the effective persistence path for the configured
// driver, falling back to the default location under the config directory.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if c.Storage.Driver == "file" {
		return filepath.Join(dir, "state"), nil
	}
	return filepath.Join(dir, "chats.db"), nil
}

// LogFile resolves the effective log file path.
func (c *Config) LogFile() (string, error) {
	if c.Logging.File != "" {
		return c.Logging.File, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "localchat.log"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when it does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation. A missing file is not an error; defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Write header comment
	fmt.Fprintln(file, "# localchat configuration file")
	fmt.Fprintln(file, "# Generated by localchat - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Validate server URL
	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Server.URL),
			})
		}
	}

	if c.Server.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: "must be non-negative",
		})
	}

	// Validate storage driver
	validDrivers := map[string]bool{"sqlite": true, "file": true}
	if !validDrivers[strings.ToLower(c.Storage.Driver)] {
		errs = append(errs, ValidationError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("invalid driver '%s', must be one of: sqlite, file", c.Storage.Driver),
		})
	}

	// Validate log level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if c.Logging.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Logging.MaxSizeMB),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.DefaultModel == "" {
		c.DefaultModel = defaults.DefaultModel
	}

	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = defaults.Logging.MaxBackups
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - LOCALCHAT_MODEL: overrides default_model
//   - LOCALCHAT_SERVER_URL: overrides server.url
//   - LOCALCHAT_STORAGE_DRIVER: overrides storage.driver
//   - LOCALCHAT_STORAGE_PATH: overrides storage.path
//   - LOCALCHAT_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("LOCALCHAT_MODEL"); model != "" {
		c.DefaultModel = model
	}

	if serverURL := os.Getenv("LOCALCHAT_SERVER_URL"); serverURL != "" {
		c.Server.URL = serverURL
	}

	if driver := os.Getenv("LOCALCHAT_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}

	if path := os.Getenv("LOCALCHAT_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}

	if level := os.Getenv("LOCALCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
