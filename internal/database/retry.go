package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/domainscan/domainscan/pkg/config"
	apperrors "github.com/domainscan/domainscan/pkg/errors"
	"github.com/domainscan/domainscan/pkg/logging"
	"github.com/domainscan/domainscan/pkg/metrics"
	"github.com/domainscan/domainscan/pkg/resilience"
)

// transientPatterns are error-text fragments indicating failures worth
// retrying: the connection dropped, the server restarted, or the pool
// is briefly exhausted.
var transientPatterns = []string{
	"connection",
	"timeout",
	"timed out",
	"network",
	"server closed",
	"connection reset",
	"broken pipe",
	"could not connect",
	"connection refused",
	"pool",
	"too many connections",
	"server has gone away",
	"lost connection",
	"connection terminated",
}

// IsTransientError reports whether a database error is transient and
// safe to retry. Permanent errors (constraint violations, malformed
// queries, permission failures) are never retried and are not evidence
// that the database is unhealthy.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 53: insufficient resources
		// (too many connections, out of memory), 57P0x: server
		// shutdown / crash / cancel on admin action.
		switch pqErr.Code.Class() {
		case "08", "53":
			return true
		}
		switch pqErr.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// Access wraps the database with retry for transient errors and the
// database circuit breaker. Retries absorb isolated transient failures
// inside a single admitted call, so the breaker only records a failure
// once local mitigation is exhausted.
type Access struct {
	db      *DB
	breaker *resilience.Breaker
	retrier *resilience.Retrier
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewAccess creates retryable data access over db. It registers the
// database breaker with reg, using the transient classifier so
// permanent errors never count against it.
func NewAccess(db *DB, reg *resilience.Registry, bc config.BreakerConfig, m *metrics.Metrics) *Access {
	breaker := reg.Register(resilience.Config{
		Name:             resilience.DepDatabase,
		FailureThreshold: bc.FailureThreshold,
		RecoveryTimeout:  bc.RecoveryTimeout,
		IsFailure:        IsTransientError,
	})

	retryCfg := resilience.RetryConfig{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
		Retryable:       IsTransientError,
	}
	if m != nil {
		retryCfg.OnRetry = func(err error, attempt int) {
			m.RetryAttempts.WithLabelValues(resilience.DepDatabase).Inc()
		}
	}

	return &Access{
		db:      db,
		breaker: breaker,
		retrier: resilience.NewRetrier(retryCfg),
		logger:  logging.GetLogger(),
		metrics: m,
	}
}

// DB returns the wrapped database handle
func (a *Access) DB() *DB {
	return a.db
}

// Breaker returns the database circuit breaker
func (a *Access) Breaker() *resilience.Breaker {
	return a.breaker
}

// Do runs op through the breaker and, inside the admitted call, the
// retrier. Once mitigation is exhausted (or the circuit is open) the
// caller gets a typed unavailability error; permanent errors pass
// through unchanged.
func (a *Access) Do(ctx context.Context, op func(context.Context) error) error {
	err := a.breaker.Do(ctx, func(ctx context.Context) error {
		return a.retrier.Execute(ctx, op)
	})
	if err == nil {
		return nil
	}

	if resilience.IsOpenError(err) || IsTransientError(err) {
		if a.metrics != nil && !resilience.IsOpenError(err) {
			a.metrics.RetryExhaustions.WithLabelValues(resilience.DepDatabase).Inc()
		}
		return apperrors.NewUnavailableError(resilience.DepDatabase).WithCause(err)
	}

	return err
}

// Get runs a single-row query with retry, scanning into dest
func (a *Access) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return a.Do(ctx, func(ctx context.Context) error {
		return a.db.GetContext(ctx, dest, query, args...)
	})
}

// Select runs a multi-row query with retry, scanning into dest
func (a *Access) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return a.Do(ctx, func(ctx context.Context) error {
		return a.db.SelectContext(ctx, dest, query, args...)
	})
}

// Exec runs a statement with retry. The statement must be idempotent or
// safe to re-run, same as any retried operation.
func (a *Access) Exec(ctx context.Context, query string, args ...interface{}) error {
	return a.Do(ctx, func(ctx context.Context) error {
		_, err := a.db.ExecContext(ctx, query, args...)
		return err
	})
}

// WithTransaction runs fn in a transaction with retry around the whole
// transaction, not individual statements: a transient failure re-runs
// fn from the start on a fresh transaction.
func (a *Access) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return a.Do(ctx, func(ctx context.Context) error {
		return a.db.WithTransaction(ctx, fn)
	})
}
