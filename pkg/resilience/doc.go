// Package resilience protects calls to unreliable external dependencies
// from cascading failure.
//
// # Circuit Breaker Pattern
//
// Each external dependency (redis, stripe, minio, email, database) gets
// its own breaker so one failing collaborator cannot block unrelated
// request paths. After FailureThreshold consecutive failures the breaker
// opens and calls fast-fail with *OpenError until RecoveryTimeout
// elapses; then a single trial call probes the dependency.
//
//	b := resilience.NewBreaker(resilience.Config{
//		Name:             "stripe",
//		FailureThreshold: 5,
//		RecoveryTimeout:  30 * time.Second,
//	})
//
//	err := b.Do(ctx, func(ctx context.Context) error {
//		return chargeCustomer(ctx, invoice)
//	})
//
// Only one caller ever occupies the half-open trial slot: admission and
// the open-to-half-open transition happen atomically, so a thundering
// herd cannot re-probe a recovering dependency simultaneously.
//
// # Retry with Exponential Backoff
//
// The retrier re-invokes an operation on retryable errors, waiting
// min(baseDelay * exponentialBase^attempt, maxDelay) between attempts.
// Non-retryable errors propagate immediately.
//
//	retrier := resilience.NewRetrier(resilience.DefaultRetryConfig())
//	err := retrier.Execute(ctx, func(ctx context.Context) error {
//		return fetchReport(ctx, id)
//	})
//
// # Registry
//
// The Registry is constructed once at startup and passed by reference to
// all call sites. It seeds the per-dependency breakers from
// configuration and exposes snapshots and manual resets for operations.
package resilience
