package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	// IsRetryable decides whether an error is worth another attempt. nil retries everything.
	IsRetryable func(error) bool `mapstructure:"-"`
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (c *RetryConfig) retryable(err error) bool {
	if c.IsRetryable == nil {
		return true
	}
	return c.IsRetryable(err)
}

// Retry executes fn until it succeeds, returns a non-retryable error, or attempts run out
func Retry(ctx context.Context, config *RetryConfig, fn func(context.Context) error) error {
	_, err := RetryWithResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult executes fn with retry logic and returns its result
func RetryWithResult[T any](ctx context.Context, config *RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	interval := config.InitialInterval
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result, lastErr = fn(ctx)
		if lastErr == nil {
			return result, nil
		}
		if !config.retryable(lastErr) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(jitter(interval, config.RandomizationFactor)):
		}

		interval = time.Duration(float64(interval) * config.Multiplier)
		if config.MaxInterval > 0 && interval > config.MaxInterval {
			interval = config.MaxInterval
		}
	}

	return result, lastErr
}

func jitter(base time.Duration, factor float64) time.Duration {
	if factor == 0 {
		return base
	}
	delta := factor * float64(base)
	low := float64(base) - delta
	return time.Duration(low + rand.Float64()*2*delta)
}

// ExponentialBackoff returns baseDelay*2^(attempt-1) capped at maxDelay, plus up to 25% jitter
func ExponentialBackoff(attempt int, baseDelay time.Duration, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	return delay + time.Duration(rand.Float64()*0.25*float64(delay))
}
