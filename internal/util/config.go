// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CoreConfig represents the keyplane configuration file
type CoreConfig struct {
	StoreDir       string `yaml:"store" description:"Secret store directory (required)"`
	Network        string `yaml:"network" description:"Bitcoin network: mainnet, testnet or regtest" default:"mainnet"`
	SessionTimeout string `yaml:"session_timeout" description:"Inactivity timeout before auto-lock (0=never)" default:"5m"`
	// Security settings
	RequireMemoryProtection bool `yaml:"require_memory_protection" description:"Fail startup if memory protection unavailable" default:"false"`
	// Argon2id KDF profile for passphrase and backup key derivation
	KDFTime     uint32 `yaml:"kdf_time" description:"Argon2id iterations" default:"1"`
	KDFMemoryKB uint32 `yaml:"kdf_memory_kb" description:"Argon2id memory in KiB" default:"65536"`
	KDFThreads  uint8  `yaml:"kdf_threads" description:"Argon2id parallelism" default:"4"`
}

// DefaultCoreConfig returns the default keyplane configuration.
// Relative paths in config are resolved relative to the data directory ($KEYPLANE_DATA).
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		StoreDir:       "", // no default - must be explicitly configured
		Network:        "mainnet",
		SessionTimeout: "5m",
		KDFTime:        1,
		KDFMemoryKB:    64 * 1024,
		KDFThreads:     4,
	}
}

// ResolvePath resolves a path relative to baseDir if not absolute.
// Returns path unchanged if empty or already absolute.
func ResolvePath(path, baseDir string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// GetDataDir returns the data directory for keyplane.
// It checks -d flag value first (passed as parameter), then KEYPLANE_DATA env var.
// Returns empty string if neither is set.
func GetDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("KEYPLANE_DATA")
}

// RequireDataDir resolves the data directory from the flag value
// or KEYPLANE_DATA environment variable. Exits if neither is set.
func RequireDataDir(flagValue string) string {
	dir := GetDataDir(flagValue)
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Error: Data directory not specified")
		fmt.Fprintln(os.Stderr, "Use -d <path> or set KEYPLANE_DATA environment variable")
		os.Exit(1)
	}
	return dir
}

// LoadCoreConfig loads configuration from a YAML file in the data directory.
// The dataDir parameter is required - use GetDataDir() to resolve it.
// Config file is expected at <dataDir>/config.yaml.
// Returns default config if file doesn't exist or can't be read.
func LoadCoreConfig(dataDir string) CoreConfig {
	defaults := DefaultCoreConfig()

	if dataDir == "" {
		return defaults
	}

	path := filepath.Join(dataDir, "config.yaml")

	// Try to read config file
	data, err := os.ReadFile(path)
	if err != nil {
		// File doesn't exist or can't be read - use defaults
		return defaults
	}

	// Parse YAML
	var config CoreConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: Failed to parse config file %s: %v\n", path, err)
		return defaults
	}

	// Fill in missing fields with defaults
	if config.Network == "" {
		config.Network = defaults.Network
	}
	if config.SessionTimeout == "" {
		config.SessionTimeout = defaults.SessionTimeout
	}
	if config.KDFTime == 0 {
		config.KDFTime = defaults.KDFTime
	}
	if config.KDFMemoryKB == 0 {
		config.KDFMemoryKB = defaults.KDFMemoryKB
	}
	if config.KDFThreads == 0 {
		config.KDFThreads = defaults.KDFThreads
	}
	// StoreDir intentionally has no default - must be explicitly configured

	return config
}

// SessionTimeoutDuration parses the session_timeout config value.
// "0" (or any value that parses to zero) disables the inactivity timeout.
func (c CoreConfig) SessionTimeoutDuration() (time.Duration, error) {
	if c.SessionTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SessionTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid session_timeout %q: %w", c.SessionTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid session_timeout %q: must not be negative", c.SessionTimeout)
	}
	return d, nil
}
