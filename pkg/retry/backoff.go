package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"igsync/pkg/config"
)

// BackoffStrategy maps an attempt number (1-based) to the delay before the
// next attempt. Implementations must not depend on hidden state.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// Exponential is the pure backoff curve base*multiplier^(attempt-1), capped
// at max. Attempt values below 1 yield zero.
func Exponential(attempt int, base, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}

// ExponentialBackoff implements exponential backoff with optional jitter
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor spreads the delay by +/- this fraction (0.0 to 1.0)
	JitterFactor float64
	// Rand supplies jitter; nil uses math/rand.
	Rand func() float64
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// FromConfig builds the backoff described by the retry section of the config
func FromConfig(cfg config.RetryConfig) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    cfg.BaseDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
		JitterFactor: cfg.Jitter,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(Exponential(attempt, eb.BaseDelay, eb.MaxDelay, eb.Multiplier))

	if eb.JitterFactor > 0 && delay > 0 {
		random := rand.Float64
		if eb.Rand != nil {
			random = eb.Rand
		}
		jitter := delay * eb.JitterFactor
		delay += (random() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
