package resilience

import (
	"context"
	"math"
	"time"

	"github.com/domainscan/domainscan/pkg/logging"
)

// RetryConfig holds configuration for retry with exponential backoff
type RetryConfig struct {
	// MaxRetries is the number of re-invocations after the first attempt.
	// Zero means a single attempt with no delay and no retry.
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff
	MaxDelay time.Duration
	// ExponentialBase is the backoff multiplier between attempts
	ExponentialBase float64
	// Retryable decides whether an error is worth retrying. Errors it
	// rejects propagate immediately with zero retries consumed. Nil
	// means every error is retryable.
	Retryable func(error) bool
	// OnRetry is called before each delay with the error and the
	// 1-based attempt number that just failed. Observability only; it
	// must not affect control flow.
	OnRetry func(err error, attempt int)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
	}
}

// Delay returns the backoff delay after the given 0-based attempt:
// min(baseDelay * exponentialBase^attempt, maxDelay).
func (c RetryConfig) Delay(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(c.ExponentialBase, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}

// Retrier re-invokes fallible operations with exponential backoff
type Retrier struct {
	config RetryConfig
	logger *logging.Logger
}

// NewRetrier creates a new retrier with the given configuration
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.ExponentialBase <= 0 {
		cfg.ExponentialBase = 2.0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(err error) bool { return err != nil }
	}

	return &Retrier{
		config: cfg,
		logger: logging.GetLogger(),
	}
}

// Execute runs the operation up to MaxRetries+1 times. The operation
// must be idempotent or safe to re-run. The last error is returned
// unchanged once retries are exhausted; non-retryable errors return
// immediately.
func (r *Retrier) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after retry",
					"attempt", attempt+1,
					"max_attempts", r.config.MaxRetries+1,
				)
			}
			return nil
		}

		lastErr = err

		if !r.config.Retryable(err) {
			r.logger.Debug("Error is not retryable, stopping",
				"error", err.Error(),
				"attempt", attempt+1,
			)
			return err
		}

		if attempt == r.config.MaxRetries {
			break
		}

		delay := r.config.Delay(attempt)

		r.logger.Warn("Operation failed, retrying",
			"error", err.Error(),
			"attempt", attempt+1,
			"max_attempts", r.config.MaxRetries+1,
			"delay", delay.String(),
		)

		if r.config.OnRetry != nil {
			r.config.OnRetry(err, attempt+1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	r.logger.Error("Operation failed after all attempts",
		"error", lastErr.Error(),
		"attempts", r.config.MaxRetries+1,
	)

	return lastErr
}

// ExecuteWithResult runs an operation that returns a result with retry logic
func (r *Retrier) ExecuteWithResult(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	var result interface{}
	err := r.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// Retry is a convenience function to execute an operation with the given
// configuration without holding on to a Retrier.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	return NewRetrier(cfg).Execute(ctx, op)
}
