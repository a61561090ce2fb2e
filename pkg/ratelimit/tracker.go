package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	requestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "partmatch_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window (-1 if unknown)",
	})

	retryAfterSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "partmatch_rate_limit_retry_after_seconds",
		Help: "Seconds until the server accepts requests again, as last advertised",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partmatch_rate_limit_blocks_total",
		Help: "Total number of attempts delayed because the advertised window is closed",
	})
)

// Header names read by the tracker.
const (
	HeaderRetryAfter = "Retry-After"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
)

// Tracker monitors the advertised request window. Callers delay attempts
// while ShouldAllowRequest reports the window closed.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new rate limit tracker. A nil store keeps state in memory.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "ratelimit").Logger(),
		now:    time.Now,
	}
}

// GetState retrieves the current rate limit state.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	return t.store.Load(ctx)
}

// UpdateFromResponse records the rate limit headers of a response.
// Responses without any rate limit header leave the state untouched.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	resetStr := headers.Get(HeaderReset)
	retryStr := headers.Get(HeaderRetryAfter)
	if remainStr == "" && resetStr == "" && retryStr == "" && status != http.StatusTooManyRequests {
		return nil
	}

	state, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rate limit state: %w", err)
	}
	now := t.now()

	if remainStr != "" {
		remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remain
	}

	if resetStr != "" {
		resetSeconds, err := strconv.Atoi(strings.TrimSpace(resetStr))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		state.ResetAt = now.Add(time.Duration(resetSeconds) * time.Second)
	}

	if retryStr != "" {
		wait, err := parseRetryAfter(retryStr, now)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
		}
		state.RetryAfter = now.Add(wait)
	} else if status != http.StatusTooManyRequests {
		state.RetryAfter = time.Time{}
	}
	state.LastUpdate = now

	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}

	requestsRemaining.Set(float64(state.Remaining))
	retryAfterSeconds.Set(state.TimeUntilAllowed(now).Seconds())

	if state.IsBlocked(now) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Time("retry_after", state.RetryAfter).
			Msg("Rate limit window exhausted - attempts will be delayed")
	} else {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}
	return nil
}

// ShouldAllowRequest reports whether an attempt may be sent now.
// When it may not, the returned duration is the time until it may.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()
	if !state.IsBlocked(now) {
		return true, 0, nil
	}

	wait := state.TimeUntilAllowed(now)
	t.logger.Warn().
		Int("remaining", state.Remaining).
		Dur("wait_duration", wait).
		Msg("Rate limit window exhausted")
	rateLimitBlocksTotal.Inc()
	return false, wait, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, nil
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, err
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}
