// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the daemon configuration from config.yaml in the
// XDG config directory, with environment variable overrides. This is the
// process configuration (listen address, paths); user-facing settings live
// in the settings package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides.
const (
	EnvListen      = "TESTINSIGHT_LISTEN"
	EnvDataDir     = "TESTINSIGHT_DATA_DIR"
	EnvUseKeychain = "TESTINSIGHT_USE_KEYCHAIN"
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DataDir holds settings.json, settings.key, and backups/. Empty means
	// the XDG data directory.
	DataDir string `yaml:"data_dir"`

	// UseKeychain stores the encryption key in the OS keychain instead of
	// a file where a keychain is available.
	UseKeychain bool `yaml:"use_keychain"`

	// ProbeTimeout bounds each connection test.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// WatchSettings enables the settings file watcher.
	WatchSettings bool `yaml:"watch_settings"`
}

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		Listen:        "127.0.0.1:8420",
		ProbeTimeout:  10 * time.Second,
		WatchSettings: true,
	}
}

// Load reads config.yaml from the config directory if present, applies
// environment overrides, and fills in defaults. A missing file is not an
// error; a malformed one is.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvUseKeychain); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UseKeychain = b
		}
	}
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
}

// ResolveDataDir returns the effective data directory, creating it with
// 0700 permissions.
func (c *Config) ResolveDataDir() (string, error) {
	if c.DataDir == "" {
		return DataDir()
	}
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return c.DataDir, nil
}

// SettingsPath returns the settings file path under the data directory.
func (c *Config) SettingsPath() (string, error) {
	dir, err := c.ResolveDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// KeyPath returns the encryption key file path under the data directory.
func (c *Config) KeyPath() (string, error) {
	dir, err := c.ResolveDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.key"), nil
}

// BackupDir returns the backup directory under the data directory.
func (c *Config) BackupDir() (string, error) {
	dir, err := c.ResolveDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backups"), nil
}
