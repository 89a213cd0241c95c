package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the resilience layer
type Metrics struct {
	// Circuit breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Retry metrics
	RetryAttempts    *prometheus.CounterVec
	RetryExhaustions *prometheus.CounterVec

	// Cache metrics
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	CacheStaleHits      *prometheus.CounterVec
	CacheRevalidations  *prometheus.CounterVec
	CacheErrors         *prometheus.CounterVec
	TokenChecksFailClosed prometheus.Counter
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "domainscan",
		Enabled:   true,
	}
}

// NewMetrics creates all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Metrics{
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "circuit_breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"dependency"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "circuit_breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"dependency", "from", "to"},
		),
		BreakerRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "circuit_breaker_rejections_total",
				Help:      "Total number of calls rejected by an open circuit breaker",
			},
			[]string{"dependency"},
		),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts after a failed first try",
			},
			[]string{"operation"},
		),
		RetryExhaustions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "retry_exhaustions_total",
				Help:      "Total number of operations that failed after all retries",
			},
			[]string{"operation"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"prefix"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses (including degraded misses)",
			},
			[]string{"prefix"},
		),
		CacheStaleHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_stale_hits_total",
				Help:      "Total number of cache hits served past their freshness window",
			},
			[]string{"prefix"},
		),
		CacheRevalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_revalidations_total",
				Help:      "Total number of background cache revalidations scheduled",
			},
			[]string{"prefix", "status"},
		),
		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_errors_total",
				Help:      "Total number of cache store errors swallowed as misses",
			},
			[]string{"operation"},
		),
		TokenChecksFailClosed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "token_checks_fail_closed_total",
				Help:      "Total number of token revocation checks that failed closed",
			},
		),
	}

	return m
}

// Register registers all metrics with the given registerer
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.BreakerState,
		m.BreakerTransitions,
		m.BreakerRejections,
		m.RetryAttempts,
		m.RetryExhaustions,
		m.CacheHits,
		m.CacheMisses,
		m.CacheStaleHits,
		m.CacheRevalidations,
		m.CacheErrors,
		m.TokenChecksFailClosed,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers all metrics and panics on error
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	if err := m.Register(reg); err != nil {
		panic(err)
	}
}
