package lookup

import (
	"fmt"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/batch"
	"github.com/Sternrassler/partmatch-client/pkg/cache"
	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/pagination"
	"github.com/Sternrassler/partmatch-client/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// Config holds engine configuration.
type Config struct {
	// APIKey is forwarded with every batch. Lookups made while it is empty
	// fail with cache.ErrMissingAPIKey.
	APIKey string

	// BaseURL is the REST root of the parts API.
	BaseURL string

	// HTTPTimeout bounds a single request attempt.
	HTTPTimeout time.Duration

	// UserAgent header sent with every request.
	UserAgent string

	// BatchSize is the number of awaiting lookups that triggers an immediate flush.
	BatchSize int

	// Debounce is how long a partial batch waits for more lookups.
	Debounce time.Duration

	// PageLimit is the number of results requested per page. The default of 1
	// keeps loosely matching part numbers out of a key's results.
	PageLimit int

	// MaxOffset is the greatest page offset fetched for a key.
	MaxOffset int

	// Retry policy of the transport.
	Retry client.RetryConfig

	// ProxyURL overrides the HTTP_PROXY/HTTPS_PROXY environment.
	ProxyURL string

	// Credentials is asked for proxy credentials. Nil declines.
	Credentials client.CredentialProvider

	// RequestsPerSecond paces requests locally. Zero disables pacing.
	RequestsPerSecond float64

	// RateLimitStore holds the advertised rate limit window. Nil keeps it in memory.
	RateLimitStore ratelimit.Store

	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig(apiKey string) Config {
	transport := client.DefaultConfig(apiKey)
	sched := batch.DefaultConfig()
	return Config{
		APIKey:      apiKey,
		BaseURL:     transport.BaseURL,
		HTTPTimeout: transport.Timeout,
		UserAgent:   transport.UserAgent,
		BatchSize:   sched.BatchSize,
		Debounce:    sched.Debounce,
		PageLimit:   cache.DefaultConfig().PageLimit,
		MaxOffset:   pagination.DefaultConfig().MaxOffset,
		Retry:       transport.Retry,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1 (got %d)", c.BatchSize)
	}
	if c.PageLimit < 1 {
		return fmt.Errorf("page_limit must be >= 1 (got %d)", c.PageLimit)
	}
	if c.MaxOffset < 0 {
		return fmt.Errorf("max_offset must be >= 0 (got %d)", c.MaxOffset)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.Retry.MaxAttempts)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be > 0 (got %s)", c.HTTPTimeout)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be > 0 (got %s)", c.Debounce)
	}
	return nil
}
