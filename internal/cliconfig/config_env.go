package cliconfig

import "os"

// ApplyEnvConfig applies PARTLOOKUP_* environment variables to cfg,
// skipping flags in changed.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("api-key", os.Getenv("PARTLOOKUP_API_KEY"), &cfg.APIKey)
	s.setString("base-url", os.Getenv("PARTLOOKUP_BASE_URL"), &cfg.BaseURL)
	s.setString("proxy", os.Getenv("PARTLOOKUP_PROXY"), &cfg.ProxyURL)
	s.setString("redis-url", os.Getenv("PARTLOOKUP_REDIS_URL"), &cfg.RedisURL)
	s.setString("log-level", os.Getenv("PARTLOOKUP_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("listen", os.Getenv("PARTLOOKUP_LISTEN"), &cfg.Listen)

	if err := s.setDuration("timeout", os.Getenv("PARTLOOKUP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("debounce", os.Getenv("PARTLOOKUP_DEBOUNCE"), &cfg.Debounce); err != nil {
		return err
	}
	if err := s.setDuration("retry-delay", os.Getenv("PARTLOOKUP_RETRY_DELAY"), &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("wait-timeout", os.Getenv("PARTLOOKUP_WAIT_TIMEOUT"), &cfg.WaitTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("batch-size", os.Getenv("PARTLOOKUP_BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setIntFromString("page-limit", os.Getenv("PARTLOOKUP_PAGE_LIMIT"), &cfg.PageLimit); err != nil {
		return err
	}
	if err := s.setIntFromString("max-offset", os.Getenv("PARTLOOKUP_MAX_OFFSET"), &cfg.MaxOffset); err != nil {
		return err
	}
	if err := s.setIntFromString("max-attempts", os.Getenv("PARTLOOKUP_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}
	if err := s.setFloatFromString("rps", os.Getenv("PARTLOOKUP_RPS"), &cfg.RequestsPerSecond); err != nil {
		return err
	}
	s.setBoolFromString("log-pretty", os.Getenv("PARTLOOKUP_LOG_PRETTY"), &cfg.LogPretty)

	return nil
}
