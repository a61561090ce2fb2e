package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, Delay: 10 * time.Millisecond}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.Delay != 400*time.Millisecond {
		t.Errorf("Delay = %v, want 400ms", cfg.Delay)
	}
}

func TestRetryFixed_Success(t *testing.T) {
	callCount := 0
	err := retryFixed(context.Background(), testRetryConfig(), zerolog.Nop(), func(context.Context, int) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryFixed_SuccessAfterRetry(t *testing.T) {
	var attempts []int
	start := time.Now()
	err := retryFixed(context.Background(), testRetryConfig(), zerolog.Nop(), func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return newStatusError(429)
		}
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(attempts) != 3 || attempts[0] != 0 || attempts[2] != 2 {
		t.Errorf("attempts = %v, want [0 1 2]", attempts)
	}
	if duration < 20*time.Millisecond {
		t.Errorf("Expected two fixed delays, got %v", duration)
	}
}

func TestRetryFixed_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	last := newStatusError(429)
	err := retryFixed(context.Background(), testRetryConfig(), zerolog.Nop(), func(context.Context, int) error {
		callCount++
		return last
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr != last {
		t.Errorf("Expected last APIError to be wrapped, got %v", err)
	}
	if callCount != 5 {
		t.Errorf("Expected 5 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryFixed_FatalNoRetry(t *testing.T) {
	for _, status := range []int{400, 401, 403, 500} {
		callCount := 0
		fatal := newStatusError(status)
		err := retryFixed(context.Background(), testRetryConfig(), zerolog.Nop(), func(context.Context, int) error {
			callCount++
			return fatal
		})

		if callCount != 1 {
			t.Errorf("status %d: expected 1 call, got %d", status, callCount)
		}
		if errors.Is(err, ErrRetryExhausted) {
			t.Errorf("status %d: should not return ErrRetryExhausted", status)
		}
		if err != fatal {
			t.Errorf("status %d: expected original error, got %v", status, err)
		}
	}
}

func TestRetryFixed_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := retryFixed(ctx, RetryConfig{MaxAttempts: 5, Delay: time.Second}, zerolog.Nop(), func(context.Context, int) error {
		callCount++
		cancel()
		return newStatusError(429)
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryFixed_FixedDelay(t *testing.T) {
	var timestamps []time.Time
	cfg := RetryConfig{MaxAttempts: 3, Delay: 50 * time.Millisecond}
	_ = retryFixed(context.Background(), cfg, zerolog.Nop(), func(context.Context, int) error {
		timestamps = append(timestamps, time.Now())
		return newStatusError(429)
	})

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 timestamps, got %d", len(timestamps))
	}
	for i := 1; i < len(timestamps); i++ {
		d := timestamps[i].Sub(timestamps[i-1])
		if d < cfg.Delay || d > cfg.Delay*4 {
			t.Errorf("delay %d = %v, want about %v", i, d, cfg.Delay)
		}
	}
}

func TestRetryFixed_ZeroAttemptsRunsOnce(t *testing.T) {
	callCount := 0
	_ = retryFixed(context.Background(), RetryConfig{}, zerolog.Nop(), func(context.Context, int) error {
		callCount++
		return newStatusError(429)
	})
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}
