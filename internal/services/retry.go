package services

import (
	"context"
	"time"

	"lifedash/internal/core"
	applog "lifedash/internal/log"
)

// RetryOptions configures the backoff of provider fetches.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions returns the backoff used when none is configured.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// withRetry runs operation until it succeeds, fails with an error that is
// not a transient upstream failure, or runs out of attempts. It returns the
// number of attempts made.
func withRetry(ctx context.Context, logger *applog.Logger, opts RetryOptions, operation func() error) (int, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	delay := opts.InitialDelay
	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return attempt, nil
		}
		if !core.IsRetryable(err) || attempt >= opts.MaxAttempts {
			return attempt, err
		}

		logger.WarnContext(ctx, "Operation failed, retrying",
			applog.FieldAttempt, attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			applog.FieldError, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * opts.Multiplier)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
}
