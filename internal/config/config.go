// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads webstore configuration from an optional YAML file,
// with defaults and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultChromeAPIURL      = "https://www.googleapis.com"
	DefaultChromeTokenURL    = "https://www.googleapis.com/oauth2/v4/token"
	DefaultChromeDownloadURL = "https://clients2.google.com/service/update2/crx"
	DefaultFirefoxAPIURL     = "https://addons.mozilla.org"
)

// Config holds all webstore configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Chrome  ChromeConfig  `yaml:"chrome"`
	Firefox FirefoxConfig `yaml:"firefox"`
	Poll    PollConfig    `yaml:"poll"`
	Cache   CacheConfig   `yaml:"cache"`
}

type LogConfig struct {
	File string `yaml:"file"`
}

type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type ChromeConfig struct {
	APIURL      string `yaml:"api_url"`
	TokenURL    string `yaml:"token_url"`
	DownloadURL string `yaml:"download_url"`
}

type FirefoxConfig struct {
	APIURL string `yaml:"api_url"`
}

// PollConfig holds the defaults of the publish/poll/download workflow.
type PollConfig struct {
	Attempts        int `yaml:"attempts"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

type CacheConfig struct {
	// Dir is the token cache directory. Empty disables the on-disk cache.
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

// Timeout returns the HTTP timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Interval returns the poll interval as a duration.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			File: getEnvOrDefault("WEBSTORE_LOG_FILE", ""),
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: parseIntOrDefault("WEBSTORE_HTTP_TIMEOUT", 120),
		},
		Chrome: ChromeConfig{
			APIURL:      getEnvOrDefault("WEBSTORE_CHROME_API_URL", DefaultChromeAPIURL),
			TokenURL:    getEnvOrDefault("WEBSTORE_CHROME_TOKEN_URL", DefaultChromeTokenURL),
			DownloadURL: getEnvOrDefault("WEBSTORE_CHROME_DOWNLOAD_URL", DefaultChromeDownloadURL),
		},
		Firefox: FirefoxConfig{
			APIURL: getEnvOrDefault("WEBSTORE_FIREFOX_API_URL", DefaultFirefoxAPIURL),
		},
		Poll: PollConfig{
			Attempts:        parseIntOrDefault("WEBSTORE_POLL_ATTEMPTS", 10),
			IntervalSeconds: parseIntOrDefault("WEBSTORE_POLL_INTERVAL", 30),
		},
		Cache: CacheConfig{
			Dir: getEnvOrDefault("WEBSTORE_CACHE_DIR", defaultCacheDir()),
		},
	}
}

// Load reads the YAML file at path on top of DefaultConfig. A missing file is
// not an error when the path was not given explicitly (empty path resolves to
// WEBSTORE_CONFIG or the user config dir).
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = getEnvOrDefault("WEBSTORE_CONFIG", defaultConfigPath())
		explicit = os.Getenv("WEBSTORE_CONFIG") != ""
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chrome.APIURL == "" {
		return fmt.Errorf("chrome.api_url cannot be empty")
	}
	if c.Chrome.TokenURL == "" {
		return fmt.Errorf("chrome.token_url cannot be empty")
	}
	if c.Firefox.APIURL == "" {
		return fmt.Errorf("firefox.api_url cannot be empty")
	}
	if c.Poll.Attempts < 1 {
		return fmt.Errorf("poll.attempts must be at least 1")
	}
	if c.Poll.IntervalSeconds < 0 {
		return fmt.Errorf("poll.interval_seconds cannot be negative")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be positive")
	}
	return nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "webstore", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "webstore", "tokens")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
