package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/domainscan/domainscan/pkg/errors"
	"github.com/domainscan/domainscan/pkg/logging"
	"github.com/domainscan/domainscan/pkg/metrics"
	"github.com/domainscan/domainscan/pkg/resilience"
)

// staleFraction is the share of an entry's original lifetime below which
// GetWithStale flags it as stale while still returning it.
const staleFraction = 0.20

// Service provides caching on top of Redis, guarded by the store's
// circuit breaker. No operation ever surfaces a backing-store failure to
// the caller: reads degrade to miss, writes to no-op. The one deliberate
// exception is the token blacklist, which lives in blacklist.go.
type Service struct {
	client  *Client
	breaker *resilience.Breaker
	config  *Config
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Config holds cache behavior configuration
type Config struct {
	DefaultTTL time.Duration `json:"default_ttl"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL: 5 * time.Minute,
	}
}

// NewService creates a new cache service guarded by the given breaker
func NewService(client *Client, breaker *resilience.Breaker, cfg *Config, m *metrics.Metrics) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Service{
		client:  client,
		breaker: breaker,
		config:  cfg,
		logger:  logging.GetLogger(),
		metrics: m,
	}
}

// Key joins parts into the <domain>:<entity>:<id> naming convention
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// envelope is the stored shape: the payload plus its original TTL as
// companion metadata, so staleness can be computed from the store's own
// remaining TTL without external clock bookkeeping.
type envelope struct {
	Value       json.RawMessage `json:"v"`
	OriginalTTL int64           `json:"ttl"`
}

// Get retrieves a value and unmarshals it into dest. Returns false on a
// miss, on an open breaker, or on any store error; it never blocks on or
// errors for a backing-store outage.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) bool {
	found, _, _ := s.getEnvelope(ctx, key, dest)
	return found
}

// GetWithStale retrieves a value and reports whether it is stale: an
// entry with less than 20% of its original lifetime remaining is flagged
// stale but still returned.
func (s *Service) GetWithStale(ctx context.Context, key string, dest interface{}) (found bool, stale bool) {
	found, remaining, originalTTL := s.getEnvelope(ctx, key, dest)
	if !found {
		return false, false
	}

	if originalTTL > 0 && remaining >= 0 {
		threshold := time.Duration(staleFraction * float64(time.Duration(originalTTL)*time.Second))
		stale = remaining < threshold
	}

	if stale && s.metrics != nil {
		s.metrics.CacheStaleHits.WithLabelValues(keyPrefix(key)).Inc()
	}

	return true, stale
}

// GetWithRemaining retrieves a value along with its remaining TTL. Used
// by the stale-while-revalidate loader to compare against its stale
// window. Remaining is -1 when unknown.
func (s *Service) GetWithRemaining(ctx context.Context, key string, dest interface{}) (found bool, remaining time.Duration) {
	found, remaining, _ = s.getEnvelope(ctx, key, dest)
	return found, remaining
}

// getEnvelope performs the breaker-guarded read. A missing key is not a
// breaker failure; only real store errors are recorded against it.
func (s *Service) getEnvelope(ctx context.Context, key string, dest interface{}) (found bool, remaining time.Duration, originalTTL int64) {
	remaining = -1

	var raw string
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		val, err := s.client.Get(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil
			}
			return err
		}
		raw = val
		found = true

		ttl, err := s.client.TTL(ctx, key)
		if err != nil {
			return err
		}
		remaining = ttl
		return nil
	})

	if err != nil {
		s.missOnError(key, "get", err)
		return false, -1, 0
	}

	if !found {
		if s.metrics != nil {
			s.metrics.CacheMisses.WithLabelValues(keyPrefix(key)).Inc()
		}
		return false, -1, 0
	}

	var env envelope
	if jsonErr := json.Unmarshal([]byte(raw), &env); jsonErr == nil && env.Value != nil {
		originalTTL = env.OriginalTTL
		raw = string(env.Value)
	}
	// Entries written without an envelope (foreign writers) are treated
	// as fresh and returned as-is.

	if dest != nil {
		if err := json.Unmarshal([]byte(raw), dest); err != nil {
			s.logger.Warn("Failed to decode cached value, treating as miss",
				"key", key, "error", err.Error())
			return false, -1, 0
		}
	}

	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues(keyPrefix(key)).Inc()
	}

	return true, remaining, originalTTL
}

// Set stores a value with the given TTL. Returns false, rather than an
// error, when the breaker is open or the write fails.
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to serialize cache value", "key", key, "error", err.Error())
		return false
	}

	data, err := json.Marshal(envelope{
		Value:       payload,
		OriginalTTL: int64(ttl.Seconds()),
	})
	if err != nil {
		s.logger.Warn("Failed to serialize cache envelope", "key", key, "error", err.Error())
		return false
	}

	err = s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.client.Set(ctx, key, string(data), ttl)
	})
	if err != nil {
		s.missOnError(key, "set", err)
		return false
	}

	return true
}

// Delete removes a key. Best-effort: failures are logged, never raised,
// since failed cache invalidation is not a user-facing failure.
func (s *Service) Delete(ctx context.Context, key string) bool {
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.Del(ctx, key)
		return err
	})
	if err != nil {
		s.missOnError(key, "delete", err)
		return false
	}
	return true
}

// DeleteByPattern removes all keys matching the pattern (e.g.
// "dashboard:stats:*"). Best-effort; returns the number of keys removed.
func (s *Service) DeleteByPattern(ctx context.Context, pattern string) int64 {
	var removed int64
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		keys, err := s.client.Keys(ctx, pattern)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, keys...)
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		s.missOnError(pattern, "delete_pattern", err)
		return 0
	}
	return removed
}

// Exists checks whether a key exists. Degrades to false on outage.
func (s *Service) Exists(ctx context.Context, key string) bool {
	var count int64
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		n, err := s.client.Exists(ctx, key)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		s.missOnError(key, "exists", err)
		return false
	}
	return count > 0
}

// Breaker returns the breaker guarding this service's backing store
func (s *Service) Breaker() *resilience.Breaker {
	return s.breaker
}

func (s *Service) missOnError(key, operation string, err error) {
	if s.metrics != nil {
		s.metrics.CacheMisses.WithLabelValues(keyPrefix(key)).Inc()
		if !resilience.IsOpenError(err) {
			s.metrics.CacheErrors.WithLabelValues(operation).Inc()
		}
	}

	if resilience.IsOpenError(err) {
		s.logger.Debug("Cache store circuit open, degrading to miss",
			"key", key, "operation", operation)
		return
	}

	s.logger.Warn("Cache operation failed, degrading to miss",
		"key", key, "operation", operation, "error", err.Error())
}

func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
