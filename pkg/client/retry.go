package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first request).
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Delay:       400 * time.Millisecond,
	}
}

// attemptFunc performs one attempt. attempt starts at 0.
type attemptFunc func(ctx context.Context, attempt int) error

// retryFixed runs fn until it succeeds, fails with a non-transient error,
// or MaxAttempts is reached. Attempts are separated by a fixed delay.
func retryFixed(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn attemptFunc) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrContextCancelled) || !shouldRetry(err) {
			return err
		}

		class := errorClassOf(err)
		if attempt+1 >= cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Dur("delay", cfg.Delay).
			Msg("Retrying request after delay")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry delay")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(cfg.Delay):
		}
	}

	class := errorClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}

func errorClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}
