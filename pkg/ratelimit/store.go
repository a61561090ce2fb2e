package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the rate limit state.
type Store interface {
	// Load returns the stored state, or a healthy state if none exists.
	Load(ctx context.Context) (*RateLimitState, error)

	// Save replaces the stored state.
	Save(ctx context.Context, state *RateLimitState) error
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.Mutex
	state *RateLimitState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (*RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return NewHealthyState(), nil
	}
	s := *m.state
	return &s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, state *RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *state
	m.state = &s
	return nil
}

// RedisStore shares the state between processes using the same API key.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a store backed by redisClient.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*RateLimitState, error) {
	remaining, err := r.redis.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		remaining = RemainingUnknown
	} else if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := r.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	retryAfter, err := r.redis.Get(ctx, RedisKeyRetryAfter).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get retry after: %w", err)
	}

	lastUpdateStr, err := r.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if errors.Is(err, redis.Nil) {
		return NewHealthyState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &RateLimitState{
		Remaining:  remaining,
		LastUpdate: lastUpdate,
	}
	if resetTimestamp > 0 {
		state.ResetAt = time.Unix(resetTimestamp, 0)
	}
	if retryAfter > 0 {
		state.RetryAfter = time.Unix(retryAfter, 0)
	}
	return state, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, state *RateLimitState) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, unixOrZero(state.ResetAt), 0)
	pipe.Set(ctx, RedisKeyRetryAfter, unixOrZero(state.RetryAfter), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
