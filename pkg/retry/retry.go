package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "igsync/pkg/errors"
	"igsync/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying.
// attempt starts at 1.
type Operation func(attempt int) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits between attempts; defaults to Wait
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger for retry attempts
	Logger logger.Logger
}

// ErrExhausted is wrapped by the error Do returns when every attempt failed.
var ErrExhausted = errors.New("max retry attempts exceeded")

// DefaultRetryIf retries network, rate-limit and server errors
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	return false
}

// Do executes op until it succeeds, returns a non-retryable error, the
// attempt ceiling is reached, or ctx is cancelled. The error returned after
// exhausting attempts wraps both ErrExhausted and the last failure.
func Do(ctx context.Context, cfg *Config, op Operation) error {
	if cfg == nil {
		cfg = &Config{}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
		"attempts":   maxAttempts,
		"last_error": lastErr.Error(),
	})
	return fmt.Errorf("%w (%d): %w", ErrExhausted, maxAttempts, lastErr)
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, cfg *Config, op func(attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(attempt int) error {
		var opErr error
		result, opErr = op(attempt)
		return opErr
	})
	return result, err
}
