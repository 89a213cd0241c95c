package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/domainscan/domainscan/pkg/logging"
	"github.com/domainscan/domainscan/pkg/metrics"
)

// refreshTimeout bounds a detached background revalidation so an
// abandoned fetch cannot leak forever.
const refreshTimeout = 30 * time.Second

// FetchFunc recomputes the value for a cache entry
type FetchFunc func(ctx context.Context) (interface{}, error)

// Loader wraps a fetch function with stale-while-revalidate caching.
//
// On a hit whose remaining TTL has dropped below the stale window the
// soon-to-expire value is returned immediately and a single background
// refresh is scheduled, re-populating the entry with ttl+staleWindow.
// On a miss the caller blocks on a synchronous fetch and the result is
// cached before returning.
type Loader struct {
	cache       *Service
	prefix      string
	ttl         time.Duration
	staleWindow time.Duration

	// inflight holds the keys currently being refreshed in the
	// background. LoadOrStore is the atomic check-and-set that keeps
	// concurrent stale hits from scheduling duplicate refreshes.
	inflight sync.Map

	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewLoader creates a stale-while-revalidate loader for one key prefix
func NewLoader(cache *Service, prefix string, ttl, staleWindow time.Duration) *Loader {
	return &Loader{
		cache:       cache,
		prefix:      prefix,
		ttl:         ttl,
		staleWindow: staleWindow,
		logger:      logging.GetLogger(),
		metrics:     cache.metrics,
	}
}

// Do returns the cached value for id, refreshing it in the background
// when it is about to expire. dest receives the value on both the hit
// and the miss path.
func (l *Loader) Do(ctx context.Context, id string, dest interface{}, fetch FetchFunc) error {
	key := Key(l.prefix, id)

	found, remaining := l.cache.GetWithRemaining(ctx, key, dest)
	if found {
		if remaining >= 0 && remaining <= l.staleWindow {
			l.scheduleRefresh(ctx, key, fetch)
		}
		return nil
	}

	// Miss: the caller waits for the fetch and may cancel it.
	value, err := fetch(ctx)
	if err != nil {
		return err
	}

	l.cache.Set(ctx, key, value, l.ttl)

	return assign(value, dest)
}

// scheduleRefresh starts a detached refresh for key unless one is
// already in flight. The refresh is fire-and-forget: it is decoupled
// from the triggering request's cancellation, since other callers still
// benefit from the refreshed value, and its failures are only logged.
func (l *Loader) scheduleRefresh(ctx context.Context, key string, fetch FetchFunc) {
	if _, loaded := l.inflight.LoadOrStore(key, struct{}{}); loaded {
		return
	}

	if l.metrics != nil {
		l.metrics.CacheRevalidations.WithLabelValues(l.prefix, "scheduled").Inc()
	}

	bg := context.WithoutCancel(ctx)

	go func() {
		defer l.inflight.Delete(key)
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("Background cache refresh panicked", "key", key, "panic", r)
			}
		}()

		refreshCtx, cancel := context.WithTimeout(bg, refreshTimeout)
		defer cancel()

		value, err := fetch(refreshCtx)
		if err != nil {
			if l.metrics != nil {
				l.metrics.CacheRevalidations.WithLabelValues(l.prefix, "error").Inc()
			}
			l.logger.Warn("Background cache refresh failed",
				"key", key, "error", err.Error())
			return
		}

		l.cache.Set(refreshCtx, key, value, l.ttl+l.staleWindow)

		l.logger.Debug("Background cache refresh completed", "key", key)
	}()
}

// Invalidate drops the cached entry for id
func (l *Loader) Invalidate(ctx context.Context, id string) bool {
	return l.cache.Delete(ctx, Key(l.prefix, id))
}

// refreshing reports whether a background refresh for id is in flight
func (l *Loader) refreshing(id string) bool {
	_, ok := l.inflight.Load(Key(l.prefix, id))
	return ok
}

// assign copies a fetched value into dest through the same JSON shape
// the cache path uses, so both paths decode identically.
func assign(value, dest interface{}) error {
	if dest == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
