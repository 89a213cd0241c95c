package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/domainscan/domainscan/pkg/logging"
)

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed - normal operation, calls are admitted
	StateClosed State = iota
	// StateOpen - the dependency is considered down, calls fast-fail
	StateOpen
	// StateHalfOpen - a single trial call probes whether the dependency recovered
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// OpenError is returned when a call is rejected without being attempted
// because the breaker for the named dependency is open.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open: service unavailable", e.Name)
}

// IsOpenError checks if an error was produced by an open circuit breaker,
// as opposed to an error from the dependency itself.
func IsOpenError(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}

// Config holds configuration for a circuit breaker
type Config struct {
	// Name identifies the guarded dependency in logs, metrics and errors
	Name string
	// FailureThreshold is the number of consecutive recorded failures
	// that trips the breaker from closed to open
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before a trial
	// call is admitted
	RecoveryTimeout time.Duration
	// IsFailure decides whether an error counts against the breaker.
	// Permanent errors (constraint violations, bad input) are not
	// evidence the dependency is unhealthy and should return false.
	// Nil means every error counts.
	IsFailure func(error) bool
	// OnStateChange is called after every state transition
	OnStateChange func(name string, from, to State)
	// OnReject is called each time a call is rejected while open
	OnReject func(name string)
}

// Breaker is a per-dependency state machine that gates whether calls to
// that dependency are attempted at all.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	isFailure        func(error) bool
	onStateChange    func(name string, from, to State)
	onReject         func(name string)

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailure   time.Time
	trialInFlight bool

	logger *logging.Logger
}

// Snapshot is a point-in-time copy of a breaker's state for reporting
type Snapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// NewBreaker creates a new circuit breaker with the given configuration
func NewBreaker(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	b := &Breaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		isFailure:        cfg.IsFailure,
		onStateChange:    cfg.OnStateChange,
		onReject:         cfg.OnReject,
		state:            StateClosed,
		logger:           logging.GetLogger(),
	}

	if b.isFailure == nil {
		b.isFailure = func(err error) bool { return err != nil }
	}

	return b
}

// Do runs the given operation if the breaker admits it. The operation's
// error is propagated as-is; a rejected call returns *OpenError without
// the operation being invoked.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	trial, err := b.allow(time.Now())
	if err != nil {
		if b.onReject != nil {
			b.onReject(b.name)
		}
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(fmt.Errorf("panic: %v", r), trial, time.Now())
			panic(r)
		}
	}()

	opErr := op(ctx)
	b.record(opErr, trial, time.Now())
	return opErr
}

// Execute runs an operation that returns a result
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	var result interface{}
	err := b.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// ExecuteWithFallback runs an operation and returns the fallback value
// instead of *OpenError when the circuit is open. Errors from the
// operation itself still propagate, so callers can distinguish a degraded
// result from a failed one.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, fallback interface{}, op func(context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.Execute(ctx, op)
	if err != nil && IsOpenError(err) {
		b.logger.Debug("Circuit open, returning fallback value", "name", b.name)
		return fallback, nil
	}
	return result, err
}

// allow decides admission. The open-to-half-open flip and the claim of
// the trial slot happen under one lock acquisition: exactly one caller
// owns the trial, every concurrent caller keeps getting *OpenError until
// the trial resolves.
func (b *Breaker) allow(now time.Time) (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) >= b.recoveryTimeout {
			b.setState(StateHalfOpen)
			b.trialInFlight = true
			return true, nil
		}
		return false, &OpenError{Name: b.name}
	default: // StateHalfOpen
		if b.trialInFlight {
			return false, &OpenError{Name: b.name}
		}
		b.trialInFlight = true
		return true, nil
	}
}

// record reports the outcome of an admitted call back to the breaker
func (b *Breaker) record(err error, trial bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
	}

	if err == nil {
		b.failureCount = 0
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	if !b.isFailure(err) {
		// Not evidence of ill health. A half-open breaker stays
		// half-open so the next caller gets a fresh trial slot.
		return
	}

	b.failureCount++
	b.lastFailure = now

	if b.state == StateHalfOpen {
		b.setState(StateOpen)
	} else if b.state == StateClosed && b.failureCount >= b.failureThreshold {
		b.setState(StateOpen)
	}
}

// setState must be called with the mutex held
func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state

	if b.onStateChange != nil {
		b.onStateChange(b.name, prev, state)
	}

	b.logger.Info("Circuit breaker state changed",
		"name", b.name,
		"from", prev.String(),
		"to", state.String(),
		"failure_count", b.failureCount,
	)
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Name returns the name of the guarded dependency
func (b *Breaker) Name() string {
	return b.name
}

// Snapshot returns a copy of the breaker's current state
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
	}
}

// Reset forces the breaker back to closed. Operational override only,
// not part of normal request flow.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.lastFailure = time.Time{}
	b.trialInFlight = false

	if prev != StateClosed && b.onStateChange != nil {
		b.onStateChange(b.name, prev, StateClosed)
	}

	b.logger.Info("Circuit breaker manually reset", "name", b.name, "from", prev.String())
}
