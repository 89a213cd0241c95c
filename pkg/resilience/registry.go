package resilience

import (
	"sync"

	"github.com/domainscan/domainscan/pkg/config"
	"github.com/domainscan/domainscan/pkg/logging"
	"github.com/domainscan/domainscan/pkg/metrics"
)

// Dependency names for the pre-configured breakers. These identify
// external collaborators, they are not user-facing API.
const (
	DepRedis    = "redis"
	DepStripe   = "stripe"
	DepMinio    = "minio"
	DepEmail    = "email"
	DepDatabase = "database"
)

// Registry owns one circuit breaker per named dependency. It is built
// once at process start and passed to every call site, so tests can
// construct fresh instances instead of sharing package globals.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewRegistry creates a registry seeded with the five dependency
// breakers and their configured threshold/timeout pairs.
func NewRegistry(cfg config.ResilienceConfig, m *metrics.Metrics, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.GetLogger()
	}

	r := &Registry{
		breakers: make(map[string]*Breaker),
		metrics:  m,
		logger:   logger,
	}

	for name, bc := range map[string]config.BreakerConfig{
		DepRedis:    cfg.Redis,
		DepStripe:   cfg.Stripe,
		DepMinio:    cfg.Minio,
		DepEmail:    cfg.Email,
		DepDatabase: cfg.Database,
	} {
		r.Register(Config{
			Name:             name,
			FailureThreshold: bc.FailureThreshold,
			RecoveryTimeout:  bc.RecoveryTimeout,
		})
	}

	return r
}

// Register creates a breaker from the given config, wires it into the
// registry's metrics, and returns it. An existing breaker with the same
// name is replaced.
func (r *Registry) Register(cfg Config) *Breaker {
	userStateChange := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to State) {
		if r.metrics != nil {
			r.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			r.metrics.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		}
		if userStateChange != nil {
			userStateChange(name, from, to)
		}
	}

	userReject := cfg.OnReject
	cfg.OnReject = func(name string) {
		if r.metrics != nil {
			r.metrics.BreakerRejections.WithLabelValues(name).Inc()
		}
		if userReject != nil {
			userReject(name)
		}
	}

	b := NewBreaker(cfg)

	r.mu.Lock()
	r.breakers[b.name] = b
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.BreakerState.WithLabelValues(b.name).Set(float64(StateClosed))
	}

	return b
}

// Get returns the breaker for a dependency name, or nil if none exists
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Reset manually resets the named breaker. Returns false if no breaker
// is registered under that name.
func (r *Registry) Reset(name string) bool {
	b := r.Get(name)
	if b == nil {
		return false
	}
	b.Reset()
	return true
}

// ResetAll manually resets every registered breaker
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// Snapshots returns the current state of every registered breaker
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}
