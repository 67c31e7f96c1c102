package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	// AttemptTimeout bounds a single attempt. Zero means the attempt only
	// observes the caller's context.
	AttemptTimeout time.Duration
}

// Option is a functional option for retry configuration.
type Option func(*Config)

// Do runs op until it succeeds, up to MaxAttempts times. The operation
// receives a context that is cancelled when AttemptTimeout elapses, so a
// hung attempt cannot eat the whole retry budget. Context cancellation is
// respected between attempts.
//
// Errors wrapped with Fatal are not retried.
func Do(ctx context.Context, op func(context.Context) error, opts ...Option) error {
	cfg := &Config{
		MaxAttempts: 5,
		Interval:    1 * time.Second,
		MaxInterval: 30 * time.Second,
		Multiplier:  2.0,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	delay := cfg.Interval
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = runAttempt(ctx, op, cfg.AttemptTimeout)
		if lastErr == nil {
			return nil
		}
		if IsFatal(lastErr) {
			return fmt.Errorf("fatal error (not retrying): %w", lastErr)
		}

		if attempt < cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxInterval {
					delay = cfg.MaxInterval
				}
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func runAttempt(ctx context.Context, op func(context.Context) error, timeout time.Duration) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithInterval sets the initial delay between attempts.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithFixedInterval sets a constant delay between attempts, disabling
// backoff. This is the shape connectivity polling wants: probe, wait a
// fixed beat, probe again.
func WithFixedInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
		c.MaxInterval = d
		c.Multiplier = 1.0
	}
}

// WithMaxInterval caps the delay between attempts.
func WithMaxInterval(d time.Duration) Option {
	return func(c *Config) {
		c.MaxInterval = d
	}
}

// WithAttemptTimeout bounds each individual attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AttemptTimeout = d
	}
}

// FatalError wraps an error to mark it as fatal (non-retryable).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks an error as fatal (non-retryable).
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks if an error is fatal (non-retryable).
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}
