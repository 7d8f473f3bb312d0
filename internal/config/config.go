// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads casevault configuration from a TOML file with
// environment variable overrides.
//
// The file lives at ~/.casevault/config.toml by default. A missing file
// is not an error; defaults apply. Invalid values are clamped rather
// than rejected so a hand-edited file cannot turn security limits off.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment overrides.
const (
	EnvHome = "CASEVAULT_HOME" // overrides the state directory
	EnvDB   = "CASEVAULT_DB"   // overrides the database path
)

// Config is the root configuration.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Security SecurityConfig `toml:"security"`
}

// StorageConfig locates the embedded database and state directory.
type StorageConfig struct {
	// DatabasePath is the SQLite file. Empty means <home>/casevault.db.
	DatabasePath string `toml:"database_path"`
	// SessionDir holds the persisted remember-me session token.
	// Empty means <home>/session.
	SessionDir string `toml:"session_dir"`
}

// SecurityConfig tunes the authentication core. Zero values fall back
// to the hard defaults; out-of-range values are clamped in Validate.
type SecurityConfig struct {
	// MaxLoginAttempts is the failure budget per throttle window.
	MaxLoginAttempts int `toml:"max_login_attempts"`
	// LockoutWindowMinutes is the throttle window length.
	LockoutWindowMinutes int `toml:"lockout_window_minutes"`
	// SessionHours is the standard session lifetime.
	SessionHours int `toml:"session_hours"`
	// RememberMeDays is the remember-me session lifetime.
	RememberMeDays int `toml:"remember_me_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Security: SecurityConfig{
			MaxLoginAttempts:     5,
			LockoutWindowMinutes: 15,
			SessionHours:         24,
			RememberMeDays:       30,
		},
	}
}

// HomeDir returns the casevault state directory, honoring EnvHome.
func HomeDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".casevault"
	}
	return filepath.Join(home, ".casevault")
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), "config.toml")
}

// Load reads the config at path, falling back to defaults when the file
// does not exist. Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if db := os.Getenv(EnvDB); db != "" {
		cfg.Storage.DatabasePath = db
	}

	cfg.Validate()
	return cfg, nil
}

// Validate clamps out-of-range values to safe bounds. It never fails:
// a bad config degrades to the defaults, not to disabled limits.
func (c *Config) Validate() {
	if c.Security.MaxLoginAttempts < 1 || c.Security.MaxLoginAttempts > 100 {
		c.Security.MaxLoginAttempts = 5
	}
	if c.Security.LockoutWindowMinutes < 1 || c.Security.LockoutWindowMinutes > 24*60 {
		c.Security.LockoutWindowMinutes = 15
	}
	if c.Security.SessionHours < 1 || c.Security.SessionHours > 24*7 {
		c.Security.SessionHours = 24
	}
	if c.Security.RememberMeDays < 1 || c.Security.RememberMeDays > 365 {
		c.Security.RememberMeDays = 30
	}
}

// DatabasePath resolves the database location.
func (c *Config) DatabasePath() string {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath
	}
	return filepath.Join(HomeDir(), "casevault.db")
}

// SessionDir resolves the persisted-session directory.
func (c *Config) SessionDir() string {
	if c.Storage.SessionDir != "" {
		return c.Storage.SessionDir
	}
	return filepath.Join(HomeDir(), "session")
}

// LockoutWindow returns the throttle window as a duration.
func (c *Config) LockoutWindow() time.Duration {
	return time.Duration(c.Security.LockoutWindowMinutes) * time.Minute
}

// SessionDuration returns the standard session TTL.
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.Security.SessionHours) * time.Hour
}

// RememberMeDuration returns the remember-me session TTL.
func (c *Config) RememberMeDuration() time.Duration {
	return time.Duration(c.Security.RememberMeDays) * 24 * time.Hour
}
