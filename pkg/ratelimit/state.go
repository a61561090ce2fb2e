// Package ratelimit tracks the request window advertised by the parts API.
// It reads the Retry-After, X-RateLimit-Remaining and X-RateLimit-Reset
// headers so that attempts sent while the window is closed can be delayed.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "partmatch:rate_limit:remaining"
	RedisKeyResetTimestamp = "partmatch:rate_limit:reset_timestamp"
	RedisKeyRetryAfter     = "partmatch:rate_limit:retry_after"
	RedisKeyLastUpdate     = "partmatch:rate_limit:last_update"
)

// RemainingUnknown marks a state for which the server never reported a quota.
const RemainingUnknown = -1

// RateLimitState represents the last known request window.
// It may be shared across processes through a RedisStore.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window resets.
	// Calculated from the X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// RetryAfter is the earliest time the server accepts another request.
	// Calculated from the Retry-After header of a 429 response.
	RetryAfter time.Time `json:"retry_after"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// NewHealthyState returns the state assumed before any header is seen.
func NewHealthyState() *RateLimitState {
	return &RateLimitState{Remaining: RemainingUnknown}
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsBlocked reports whether a request sent at now is known to be rejected.
func (s *RateLimitState) IsBlocked(now time.Time) bool {
	if now.Before(s.RetryAfter) {
		return true
	}
	return s.Remaining == 0 && now.Before(s.ResetAt)
}

// TimeUntilAllowed returns how long until requests are accepted again.
// Returns 0 if requests are allowed now.
func (s *RateLimitState) TimeUntilAllowed(now time.Time) time.Duration {
	if !s.IsBlocked(now) {
		return 0
	}
	until := s.RetryAfter
	if s.Remaining == 0 && s.ResetAt.After(until) {
		until = s.ResetAt
	}
	return until.Sub(now)
}
