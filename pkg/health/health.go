package health

import (
	"context"
	"sync"
	"time"

	"github.com/domainscan/domainscan/pkg/logging"
	"github.com/domainscan/domainscan/pkg/resilience"
)

// Status represents overall or per-check health
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// CheckResult is the outcome of a single probe
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Report aggregates probe results and breaker snapshots. It is a plain
// value: exposing it over HTTP is the responsibility of whatever
// transport layer consumes this library.
type Report struct {
	Status    Status                          `json:"status"`
	Checks    []CheckResult                   `json:"checks"`
	Breakers  map[string]resilience.Snapshot  `json:"breakers,omitempty"`
	Timestamp time.Time                       `json:"timestamp"`
}

// Checker runs registered health checks and reports breaker state
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]Check
	registry *resilience.Registry
	timeout  time.Duration
	logger   *logging.Logger
}

// NewChecker creates a health checker. registry may be nil when no
// breaker reporting is wanted.
func NewChecker(registry *resilience.Registry) *Checker {
	return &Checker{
		checks:   make(map[string]Check),
		registry: registry,
		timeout:  5 * time.Second,
		logger:   logging.GetLogger(),
	}
}

// RegisterCheck adds a named probe
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all registered checks and assembles a report. A failing
// check makes the report unhealthy; an open or half-open breaker with
// all checks passing makes it degraded.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Checks:    make([]CheckResult, 0, len(checks)),
		Timestamp: time.Now(),
	}

	for name, check := range checks {
		result := c.runCheck(ctx, name, check)
		if result.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
		}
		report.Checks = append(report.Checks, result)
	}

	if c.registry != nil {
		report.Breakers = c.registry.Snapshots()
		if report.Status == StatusHealthy {
			for _, snap := range report.Breakers {
				if snap.State != resilience.StateClosed.String() {
					report.Status = StatusDegraded
					break
				}
			}
		}
	}

	return report
}

func (c *Checker) runCheck(ctx context.Context, name string, check Check) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check(checkCtx)
	duration := time.Since(start)

	result := CheckResult{
		Name:      name,
		Status:    StatusHealthy,
		Duration:  duration,
		CheckedAt: start,
	}

	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		c.logger.Warn("Health check failed",
			"check", name, "duration", duration.String(), "error", err.Error())
	}

	return result
}
