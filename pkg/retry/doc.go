// Package retry provides bounded retries with exponential backoff.
//
// The backoff curve is a pure function of the attempt number (Exponential),
// so policy can be tested apart from any I/O. Do runs an operation at most
// MaxAttempts times and only retries errors accepted by RetryIf, which by
// default means network, rate-limit and 5xx errors from pkg/errors.
//
//	err := retry.Do(ctx, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.FromConfig(cfg.Retry),
//		Logger:      log,
//	}, func(attempt int) error {
//		return call()
//	})
package retry
