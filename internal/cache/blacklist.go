package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/domainscan/domainscan/pkg/logging"
	"github.com/domainscan/domainscan/pkg/metrics"
	"github.com/domainscan/domainscan/pkg/resilience"
)

const blacklistPrefix = "token_blacklist"

// defaultRevocationTTL is used when a token's expiry cannot be read.
// Matches the longest session lifetime the platform issues.
const defaultRevocationTTL = 24 * time.Hour

// TokenBlacklist tracks revoked tokens (logout before natural expiry)
// in the cache store.
//
// Unlike the rest of the cache API, the revocation check fails CLOSED:
// an unreachable store means the token is treated as revoked, so an
// outage can never silently make authorization permissive. Call sites
// that are not security-critical can opt out with WithFailOpen.
type TokenBlacklist struct {
	client  *Client
	breaker *resilience.Breaker
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewTokenBlacklist creates a token blacklist guarded by the store's breaker
func NewTokenBlacklist(client *Client, breaker *resilience.Breaker, m *metrics.Metrics) *TokenBlacklist {
	return &TokenBlacklist{
		client:  client,
		breaker: breaker,
		logger:  logging.GetLogger(),
		metrics: m,
	}
}

// CheckOption configures a revocation check
type CheckOption func(*checkOptions)

type checkOptions struct {
	failOpen bool
}

// WithFailOpen makes an unreachable store report the token as NOT
// revoked. Only for call sites where availability matters more than the
// revocation guarantee; never use it on an authorization path.
func WithFailOpen() CheckOption {
	return func(o *checkOptions) {
		o.failOpen = true
	}
}

// RevokeToken blacklists a token for the remainder of its lifetime,
// read from the JWT exp claim. A token that is already expired needs no
// blacklisting and reports success.
func (t *TokenBlacklist) RevokeToken(ctx context.Context, token string) bool {
	ttl := revocationTTL(token, time.Now())
	if ttl <= 0 {
		return true
	}
	return t.Revoke(ctx, token, ttl)
}

// Revoke blacklists a token for an explicit duration
func (t *TokenBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) bool {
	key := Key(blacklistPrefix, hashToken(token))

	err := t.breaker.Do(ctx, func(ctx context.Context) error {
		return t.client.Set(ctx, key, "1", ttl)
	})
	if err != nil {
		t.logger.Error("Failed to blacklist token, revocation not persisted",
			"ttl", ttl.String(), "error", err.Error())
		return false
	}

	t.logger.Debug("Token blacklisted", "ttl", ttl.String())
	return true
}

// IsTokenRevoked reports whether a token has been revoked. When the
// backing store is unreachable it returns true (fail-closed) unless the
// caller passed WithFailOpen.
func (t *TokenBlacklist) IsTokenRevoked(ctx context.Context, token string, opts ...CheckOption) bool {
	var options checkOptions
	for _, opt := range opts {
		opt(&options)
	}

	key := Key(blacklistPrefix, hashToken(token))

	var revoked bool
	err := t.breaker.Do(ctx, func(ctx context.Context) error {
		count, err := t.client.Exists(ctx, key)
		if err != nil {
			return err
		}
		revoked = count > 0
		return nil
	})

	if err != nil {
		if options.failOpen {
			t.logger.Warn("Token revocation check failed, failing open by caller request",
				"error", err.Error())
			return false
		}

		if t.metrics != nil {
			t.metrics.TokenChecksFailClosed.Inc()
		}
		t.logger.Warn("Token revocation check failed, failing closed",
			"error", err.Error())
		return true
	}

	return revoked
}

// hashToken derives the storage key from the token so raw bearer tokens
// never land in the store.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// revocationTTL returns the remaining lifetime of a JWT, read from its
// exp claim without signature verification; the caller already
// authenticated the token, blacklisting only needs its expiry.
func revocationTTL(token string, now time.Time) time.Duration {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return defaultRevocationTTL
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultRevocationTTL
	}

	return exp.Sub(now)
}
