package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %v, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialInterval != 100*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 100ms", cfg.InitialInterval)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", cfg.Multiplier)
	}
}

func TestRetry_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(3), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temp error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Retry() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %v, want 3", attempts)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(2), func(ctx context.Context) error {
		attempts++
		return errors.New("always")
	})

	if err == nil || err.Error() != "always" {
		t.Errorf("Retry() error = %v, want always", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %v, want 2", attempts)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fastRetry(5)
	cfg.IsRetryable = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("Retry() error = %v, want permanent", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %v, want 1", attempts)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastRetry(3), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %v, want 0", attempts)
	}
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("temp")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("RetryWithResult() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %v, want ok", got)
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 100 * time.Millisecond, 125 * time.Millisecond},
		{2, 200 * time.Millisecond, 250 * time.Millisecond},
		{3, 400 * time.Millisecond, 500 * time.Millisecond},
		{10, time.Second, 1250 * time.Millisecond},
		{0, 100 * time.Millisecond, 125 * time.Millisecond},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt, 100*time.Millisecond, time.Second)
		if got < tt.min || got > tt.max {
			t.Errorf("ExponentialBackoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}
