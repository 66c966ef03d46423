/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the per-user YAML configuration with environment
// overrides. The bundle service token is kept in the OS keyring, never on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BundleConfig locates the widget bundle service.
type BundleConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// CatalogConfig locates widget descriptors.
type CatalogConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// RepositoryConfig points at the optional Postgres project repository.
type RepositoryConfig struct {
	DSN string `yaml:"dsn"`
}

// CanvasConfig holds designer defaults.
type CanvasConfig struct {
	UndoDepth     int  `yaml:"undo_depth"`
	AutosaveCrash bool `yaml:"autosave_on_crash"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the persisted configuration. Bump ConfigVersion on
// backward-incompatible changes.
type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	Bundle        BundleConfig     `yaml:"bundle"`
	Catalog       CatalogConfig    `yaml:"catalog"`
	Repository    RepositoryConfig `yaml:"repository"`
	Canvas        CanvasConfig     `yaml:"canvas"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Bundle:        BundleConfig{BaseURL: "http://localhost:3000", TimeoutMs: 15000},
		Canvas:        CanvasConfig{UndoDepth: 50, AutosaveCrash: true},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath      = "RCV_CONFIG"
	EnvBundleURL       = "RCV_BUNDLE_URL"
	EnvBundleTimeoutMs = "RCV_BUNDLE_TIMEOUT_MS"
	EnvCatalogDir      = "RCV_CATALOG_DIR"
	EnvDatabaseURL     = "RCV_DATABASE_URL"
	EnvLogLevel        = "RCV_LOG_LEVEL"
	EnvLogFormat       = "RCV_LOG_FORMAT"
	EnvLogSource       = "RCV_LOG_SOURCE"
	EnvLogFile         = "RCV_LOG_FILE"
)

const (
	keyringService = "ReportCanvas"
	keyringToken   = "bundle_token"
)

// TokenStore abstracts the OS keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the keyring backend and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = ts
	return prev
}

// ConfigPath returns the per-user config file path. RCV_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "ReportCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ReportCanvas")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "reportcanvas")
		} else if home := os.Getenv("HOME"); home != "" {
			base = filepath.Join(home, ".config", "reportcanvas")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config (if present) over the defaults, applies
// environment overrides and fetches the bundle token from the keyring.
// A missing keyring entry yields an empty token.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, "", err
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// LoadFile reads path over the defaults without env overrides. A missing file is not an error.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var fileCfg AppConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	mergeInto(&cfg, &fileCfg)
	return cfg, nil
}

// Save writes the config YAML and stores a non-empty token in the keyring.
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		return tokenStore.Set(keyringService, keyringToken, token)
	}
	return nil
}

// ClearToken removes the bundle token from the keyring.
func ClearToken() error { return tokenStore.Delete(keyringService, keyringToken) }

// Timeout returns the bundle request timeout.
func (b BundleConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Bundle.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

func mergeInto(dst, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.Bundle.BaseURL); v != "" {
		dst.Bundle.BaseURL = v
	}
	if src.Bundle.TimeoutMs != 0 {
		dst.Bundle.TimeoutMs = src.Bundle.TimeoutMs
	}
	if v := strings.TrimSpace(src.Catalog.Dir); v != "" {
		dst.Catalog.Dir = v
	}
	dst.Catalog.Watch = src.Catalog.Watch
	if v := strings.TrimSpace(src.Repository.DSN); v != "" {
		dst.Repository.DSN = v
	}
	if src.Canvas.UndoDepth != 0 {
		dst.Canvas.UndoDepth = src.Canvas.UndoDepth
	}
	dst.Canvas.AutosaveCrash = src.Canvas.AutosaveCrash
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := envValue(EnvBundleURL); ok {
		cfg.Bundle.BaseURL = v
	}
	if v, ok := envValue(EnvBundleTimeoutMs); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bundle.TimeoutMs = n
		}
	}
	if v, ok := envValue(EnvCatalogDir); ok {
		cfg.Catalog.Dir = v
	}
	if v, ok := envValue(EnvDatabaseURL); ok {
		cfg.Repository.DSN = v
	}
	if v, ok := envValue(EnvLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := envValue(EnvLogFormat); ok {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := envValue(EnvLogSource); ok {
		cfg.Logging.Source = truthy(v)
	}
	if v, ok := envValue(EnvLogFile); ok {
		cfg.Logging.File = v
	}
}

// overrides maps dotted config keys to the env vars that override them.
var overrides = map[string]string{
	"bundle.base_url":   EnvBundleURL,
	"bundle.timeout_ms": EnvBundleTimeoutMs,
	"catalog.dir":       EnvCatalogDir,
	"repository.dsn":    EnvDatabaseURL,
	"logging.level":     EnvLogLevel,
	"logging.format":    EnvLogFormat,
	"logging.source":    EnvLogSource,
	"logging.file":      EnvLogFile,
}

// EnvOverrideFor returns the env var currently overriding key, e.g. "bundle.base_url".
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrides[key]
	if !ok {
		return "", false
	}
	if _, set := envValue(env); !set {
		return "", false
	}
	return env, true
}

func envValue(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
