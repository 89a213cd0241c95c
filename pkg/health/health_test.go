package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainscan/domainscan/pkg/config"
	"github.com/domainscan/domainscan/pkg/resilience"
)

func testRegistry() *resilience.Registry {
	return resilience.NewRegistry(config.ResilienceConfig{
		Redis:    config.BreakerConfig{FailureThreshold: 3, RecoveryTimeout: 10 * time.Second},
		Stripe:   config.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second},
		Minio:    config.BreakerConfig{FailureThreshold: 3, RecoveryTimeout: 15 * time.Second},
		Email:    config.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second},
		Database: config.BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 5 * time.Second},
	}, nil, nil)
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(testRegistry())
	c.RegisterCheck("database", func(ctx context.Context) error { return nil })
	c.RegisterCheck("redis", func(ctx context.Context) error { return nil })

	report := c.Run(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
	assert.Len(t, report.Breakers, 5)
	for _, check := range report.Checks {
		assert.Equal(t, StatusHealthy, check.Status)
		assert.Empty(t, check.Error)
	}
}

func TestChecker_FailingCheckIsUnhealthy(t *testing.T) {
	c := NewChecker(testRegistry())
	c.RegisterCheck("database", func(ctx context.Context) error { return nil })
	c.RegisterCheck("redis", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	report := c.Run(context.Background())

	require.Equal(t, StatusUnhealthy, report.Status)
	for _, check := range report.Checks {
		if check.Name == "redis" {
			assert.Equal(t, StatusUnhealthy, check.Status)
			assert.Equal(t, "connection refused", check.Error)
		}
	}
}

func TestChecker_OpenBreakerIsDegraded(t *testing.T) {
	reg := testRegistry()
	c := NewChecker(reg)
	c.RegisterCheck("database", func(ctx context.Context) error { return nil })

	// Trip the stripe breaker; the probe itself still passes
	stripe := reg.Get(resilience.DepStripe)
	for i := 0; i < 5; i++ {
		stripe.Do(context.Background(), func(ctx context.Context) error {
			return errors.New("api error")
		})
	}
	require.Equal(t, resilience.StateOpen, stripe.State())

	report := c.Run(context.Background())

	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, resilience.StateOpen.String(), report.Breakers[resilience.DepStripe].State)
}

func TestChecker_UnhealthyBeatsDegraded(t *testing.T) {
	reg := testRegistry()
	c := NewChecker(reg)
	c.RegisterCheck("redis", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	db := reg.Get(resilience.DepDatabase)
	for i := 0; i < 2; i++ {
		db.Do(context.Background(), func(ctx context.Context) error {
			return errors.New("connection refused")
		})
	}
	require.Equal(t, resilience.StateOpen, db.State())

	report := c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestChecker_NilRegistry(t *testing.T) {
	c := NewChecker(nil)
	c.RegisterCheck("database", func(ctx context.Context) error { return nil })

	report := c.Run(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Nil(t, report.Breakers)
}
