package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.Cache.StaleWindow)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDefaultResilienceConfig(t *testing.T) {
	rc := DefaultResilienceConfig()

	assert.Equal(t, 3, rc.Redis.FailureThreshold)
	assert.Equal(t, 10*time.Second, rc.Redis.RecoveryTimeout)
	assert.Equal(t, 5, rc.Stripe.FailureThreshold)
	assert.Equal(t, 30*time.Second, rc.Stripe.RecoveryTimeout)
	assert.Equal(t, 3, rc.Minio.FailureThreshold)
	assert.Equal(t, 15*time.Second, rc.Minio.RecoveryTimeout)
	assert.Equal(t, 5, rc.Email.FailureThreshold)
	assert.Equal(t, 60*time.Second, rc.Email.RecoveryTimeout)
	assert.Equal(t, 2, rc.Database.FailureThreshold)
	assert.Equal(t, 5*time.Second, rc.Database.RecoveryTimeout)
}

func TestResilienceConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BREAKER_DATABASE_THRESHOLD", "4")
	t.Setenv("BREAKER_DATABASE_RECOVERY", "20s")

	rc := DefaultResilienceConfig()
	assert.Equal(t, 4, rc.Database.FailureThreshold)
	assert.Equal(t, 20*time.Second, rc.Database.RecoveryTimeout)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Database.Port = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Cache.DefaultTTL = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Resilience.Email.FailureThreshold = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Resilience.Redis.RecoveryTimeout = 0
	assert.Error(t, bad.Validate())
}
