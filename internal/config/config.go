// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for pvechat.
//
// Configuration is TOML with sensible defaults and environment
// variable overrides. File location: ~/.pvechat/config.toml.
package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/pvechat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete pvechat configuration.
type Config struct {
	// ProxyURL is the base URL of the PVE AI proxy (the host serving
	// /chat and /execute). Proxmox ships a self-signed certificate,
	// so https with InsecureTLS is the common deployment.
	ProxyURL string `toml:"proxy_url"`

	// InsecureTLS skips certificate verification for the proxy.
	InsecureTLS bool `toml:"insecure_tls"`

	// Namespace prefixes every persistence key (model selection,
	// API keys, saved chats). Changing it starts a fresh profile.
	Namespace string `toml:"namespace"`

	// DefaultModel is used when no model has been selected yet.
	DefaultModel string `toml:"default_model"`

	// StorePath is the key-value store database path
	// (empty = ~/.pvechat/store.db).
	StorePath string `toml:"store_path"`

	// UI holds presentation settings.
	UI UIConfig `toml:"ui"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Theme selects the color theme: "dark", "light", or "auto".
	Theme string `toml:"theme"`

	// MarkdownWidth is the wrap width for rendered assistant
	// messages (0 = track terminal width).
	MarkdownWidth int `toml:"markdown_width"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		ProxyURL:     "https://localhost:5555",
		InsecureTLS:  true,
		Namespace:    "pveai",
		DefaultModel: "gpt-5.2",
		UI: UIConfig{
			Theme: "auto",
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Dir returns the pvechat configuration directory (~/.pvechat).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pvechat"), nil
}

// Path returns the default configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads configuration from the default path, applies
// environment overrides, and validates. A missing file is not an
// error; defaults are used.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("invalid config file " + path + ": " + err.Error())
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from PVECHAT_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("PVECHAT_PROXY_URL"); v != "" {
		c.ProxyURL = v
	}
	if v := os.Getenv("PVECHAT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("PVECHAT_NAMESPACE"); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv("PVECHAT_INSECURE_TLS"); v != "" {
		c.InsecureTLS = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ProxyURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("proxy_url must be an absolute http(s) URL: " + c.ProxyURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("proxy_url scheme must be http or https, got " + u.Scheme)
	}
	if c.Namespace == "" {
		return errors.New("namespace must not be empty")
	}
	if strings.ContainsAny(c.Namespace, " \t\n") {
		return errors.New("namespace must not contain whitespace")
	}
	switch c.UI.Theme {
	case "", "auto", "dark", "light":
	default:
		return errors.New("ui.theme must be auto, dark, or light, got " + c.UI.Theme)
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default path atomically.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to an explicit path atomically.
func (c *Config) SaveTo(path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return err
	}
	return util.AtomicWriteFile(path, []byte(sb.String()), 0644)
}

// StoreDBPath resolves the key-value store database path.
func (c *Config) StoreDBPath() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "store.db"), nil
}
