package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with durations as strings for TOML.
type FileConfig struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	HTTPTimeout       string  `toml:"http_timeout"`
	BatchSize         *int    `toml:"batch_size"`
	Debounce          string  `toml:"debounce"`
	PageLimit         *int    `toml:"page_limit"`
	MaxOffset         *int    `toml:"max_offset"`
	MaxAttempts       *int    `toml:"max_attempts"`
	RetryDelay        string  `toml:"retry_delay"`
	ProxyURL          string  `toml:"proxy"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RedisURL          string  `toml:"redis_url"`
	LogLevel          string  `toml:"log_level"`
	LogPretty         *bool   `toml:"log_pretty"`
	Listen            string  `toml:"listen"`
	WaitTimeout       string  `toml:"wait_timeout"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.partlookup/config.toml, or "" without a home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".partlookup", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies fc to cfg, skipping flags in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("base-url", fc.BaseURL, &cfg.BaseURL)
	s.setString("proxy", fc.ProxyURL, &cfg.ProxyURL)
	s.setString("redis-url", fc.RedisURL, &cfg.RedisURL)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("listen", fc.Listen, &cfg.Listen)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("debounce", fc.Debounce, &cfg.Debounce); err != nil {
		return err
	}
	if err := s.setDuration("retry-delay", fc.RetryDelay, &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("wait-timeout", fc.WaitTimeout, &cfg.WaitTimeout); err != nil {
		return err
	}

	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("page-limit", fc.PageLimit, &cfg.PageLimit)
	s.setInt("max-offset", fc.MaxOffset, &cfg.MaxOffset)
	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)

	s.setFloat("rps", fc.RequestsPerSecond, &cfg.RequestsPerSecond)
	s.setBool("log-pretty", fc.LogPretty, &cfg.LogPretty)

	return nil
}

// FileExists reports whether a file exists at p.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
