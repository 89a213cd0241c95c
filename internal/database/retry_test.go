package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/domainscan/domainscan/pkg/errors"
	"github.com/domainscan/domainscan/pkg/logging"
	"github.com/domainscan/domainscan/pkg/resilience"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"bad connection", driver.ErrBadConn, true},
		{"wrapped bad connection", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"network timeout", timeoutError{}, true},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq too many connections", &pq.Error{Code: "53300"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq crash shutdown", &pq.Error{Code: "57P02"}, true},
		{"pq cannot connect now", &pq.Error{Code: "57P03"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"pq syntax error", &pq.Error{Code: "42601"}, false},
		{"pq permission denied", &pq.Error{Code: "42501"}, false},
		{"connection refused text", errors.New("dial tcp 127.0.0.1:5432: connection refused"), true},
		{"pool exhausted text", errors.New("connection pool exhausted"), true},
		{"server gone text", errors.New("driver: server has gone away"), true},
		{"plain application error", errors.New("no rows in result set"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransientError(tt.err))
		})
	}
}

func testAccess(threshold int) *Access {
	return &Access{
		breaker: resilience.NewBreaker(resilience.Config{
			Name:             resilience.DepDatabase,
			FailureThreshold: threshold,
			RecoveryTimeout:  5 * time.Second,
			IsFailure:        IsTransientError,
		}),
		retrier: resilience.NewRetrier(resilience.RetryConfig{
			MaxRetries:      3,
			BaseDelay:       time.Millisecond,
			MaxDelay:        5 * time.Millisecond,
			ExponentialBase: 2.0,
			Retryable:       IsTransientError,
		}),
		logger: logging.GetLogger(),
	}
}

func TestAccess_RetriesTransientThenSucceeds(t *testing.T) {
	a := testAccess(2)

	var calls int
	err := a.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Retries absorbed the transient failures before the breaker saw one
	assert.Equal(t, 0, a.Breaker().FailureCount())
	assert.Equal(t, resilience.StateClosed, a.Breaker().State())
}

func TestAccess_ExhaustedRetriesReturnUnavailable(t *testing.T) {
	a := testAccess(2)
	cause := &pq.Error{Code: "08006", Message: "connection failure"}

	var calls int
	err := a.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	assert.Equal(t, 4, calls)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))

	// One admitted call, one recorded failure
	assert.Equal(t, 1, a.Breaker().FailureCount())
}

func TestAccess_PermanentErrorPassesThrough(t *testing.T) {
	a := testAccess(2)
	cause := &pq.Error{Code: "23505", Message: "duplicate key"}

	var calls int
	err := a.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	// No retry, no breaker accounting, no translation
	assert.Equal(t, 1, calls)
	assert.Equal(t, error(cause), err)
	assert.Equal(t, 0, a.Breaker().FailureCount())
}

func TestAccess_OpenBreakerShortCircuits(t *testing.T) {
	a := testAccess(1)

	a.Do(context.Background(), func(ctx context.Context) error {
		return driver.ErrBadConn
	})
	require.Equal(t, resilience.StateOpen, a.Breaker().State())

	var calls int
	err := a.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.Equal(t, 0, calls)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}
