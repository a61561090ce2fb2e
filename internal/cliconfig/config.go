// Package cliconfig resolves partlookup configuration from defaults, a TOML
// file, PARTLOOKUP_* environment variables and command-line flags, in that
// order of precedence.
package cliconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/logging"
	"github.com/Sternrassler/partmatch-client/pkg/lookup"
)

// Config holds CLI configuration for partlookup.
type Config struct {
	APIKey  string
	BaseURL string

	HTTPTimeout time.Duration
	BatchSize   int
	Debounce    time.Duration
	PageLimit   int
	MaxOffset   int
	MaxAttempts int
	RetryDelay  time.Duration

	ProxyURL          string
	RequestsPerSecond float64
	RedisURL          string

	LogLevel  string
	LogPretty bool

	Listen      string
	WaitTimeout time.Duration
}

// DefaultConfig returns a Config with the engine defaults.
func DefaultConfig() Config {
	eng := lookup.DefaultConfig("")
	return Config{
		BaseURL:     eng.BaseURL,
		HTTPTimeout: eng.HTTPTimeout,
		BatchSize:   eng.BatchSize,
		Debounce:    eng.Debounce,
		PageLimit:   eng.PageLimit,
		MaxOffset:   eng.MaxOffset,
		MaxAttempts: eng.Retry.MaxAttempts,
		RetryDelay:  eng.Retry.Delay,
		LogLevel:    string(logging.LevelInfo),
		Listen:      ":8080",
		WaitTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base-url: %w", err)
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait-timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("rps must not be negative")
	}
	return c.Engine().Validate()
}

// Engine maps the CLI configuration onto an engine configuration.
// RateLimitStore, Credentials and Logger are left for the caller.
func (c Config) Engine() lookup.Config {
	cfg := lookup.DefaultConfig(c.APIKey)
	cfg.BaseURL = c.BaseURL
	cfg.HTTPTimeout = c.HTTPTimeout
	cfg.BatchSize = c.BatchSize
	cfg.Debounce = c.Debounce
	cfg.PageLimit = c.PageLimit
	cfg.MaxOffset = c.MaxOffset
	cfg.Retry = client.RetryConfig{MaxAttempts: c.MaxAttempts, Delay: c.RetryDelay}
	cfg.ProxyURL = c.ProxyURL
	cfg.RequestsPerSecond = c.RequestsPerSecond
	return cfg
}

// configSetter applies values unless the corresponding flag was set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt ignores values below zero; zero is a valid max offset.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || *value < 0 || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt(flag, &i, dst)
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setFloat(flag, f, dst)
	return nil
}

func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
