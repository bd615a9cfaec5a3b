// Package retries decides whether a failed sync may be attempted again and
// how long to wait before doing so.
//
// A Manager is hydrated from persisted State at the start of every
// controller cycle, updated with IncrementFailure when an attempt fails, and
// persisted again before the retry decision is acted on.
package retries

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffPolicy describes an exponential backoff: the first step waits
// MinInterval, each following step multiplies by Base, and no step exceeds
// MaxInterval. Step zero means no wait.
type BackoffPolicy struct {
	MinInterval time.Duration `json:"minInterval" yaml:"minInterval"`
	MaxInterval time.Duration `json:"maxInterval" yaml:"maxInterval"`
	Base        int           `json:"base" yaml:"base"`
}

// Backoff returns the wait for the given step.
func (p BackoffPolicy) Backoff(step int) time.Duration {
	if step <= 0 || p.MinInterval <= 0 {
		return 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = float64(max(p.Base, 1))
	// no jitter: the result is recorded in workflow history and must be reproducible
	b.RandomizationFactor = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < step; i++ {
		d = b.NextBackOff()
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Validate checks the policy bounds.
func (p BackoffPolicy) Validate() error {
	if p.MinInterval < 0 {
		return fmt.Errorf("minInterval must not be negative")
	}
	if p.MaxInterval < p.MinInterval {
		return fmt.Errorf("maxInterval (%s) must be greater than or equal to minInterval (%s)", p.MaxInterval, p.MinInterval)
	}
	if p.Base < 1 {
		return fmt.Errorf("base must be at least 1, got %d", p.Base)
	}
	return nil
}

// Limits caps the number of failures tolerated before giving up.
type Limits struct {
	MaxSuccessiveCompleteFailures int `json:"maxSuccessiveCompleteFailures" yaml:"maxSuccessiveCompleteFailures"`
	MaxTotalCompleteFailures      int `json:"maxTotalCompleteFailures" yaml:"maxTotalCompleteFailures"`
	MaxSuccessivePartialFailures  int `json:"maxSuccessivePartialFailures" yaml:"maxSuccessivePartialFailures"`
	MaxTotalPartialFailures       int `json:"maxTotalPartialFailures" yaml:"maxTotalPartialFailures"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxSuccessiveCompleteFailures: 5,
		MaxTotalCompleteFailures:      10,
		MaxSuccessivePartialFailures:  1000,
		MaxTotalPartialFailures:       20,
	}
}

// DefaultCompleteFailurePolicy returns the backoff applied after attempts
// that committed nothing.
func DefaultCompleteFailurePolicy() BackoffPolicy {
	return BackoffPolicy{
		MinInterval: 10 * time.Second,
		MaxInterval: 30 * time.Minute,
		Base:        3,
	}
}

// State is the persisted part of a Manager.
type State struct {
	SuccessiveCompleteFailures int `json:"successiveCompleteFailures"`
	TotalCompleteFailures      int `json:"totalCompleteFailures"`
	SuccessivePartialFailures  int `json:"successivePartialFailures"`
	TotalPartialFailures       int `json:"totalPartialFailures"`
}

// Manager tracks failures for one job and answers retry questions.
// Its fields are exported so that it can travel through activity results.
type Manager struct {
	CompleteFailurePolicy BackoffPolicy  `json:"completeFailurePolicy"`
	PartialFailurePolicy  *BackoffPolicy `json:"partialFailurePolicy,omitempty"`
	Limits                Limits         `json:"limits"`
	State                 State          `json:"state"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithPartialFailurePolicy sets a backoff applied after partial failures.
func WithPartialFailurePolicy(p BackoffPolicy) Option {
	return func(m *Manager) {
		m.PartialFailurePolicy = &p
	}
}

// WithState seeds the counters from a persisted state.
func WithState(s State) Option {
	return func(m *Manager) {
		m.State = s
	}
}

// NewManager creates a Manager with zeroed counters unless WithState is given.
func NewManager(policy BackoffPolicy, limits Limits, opts ...Option) *Manager {
	m := &Manager{
		CompleteFailurePolicy: policy,
		Limits:                limits,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IncrementFailure records a failed attempt. A partial failure (some records
// committed) resets the successive complete counter and vice versa.
func (m *Manager) IncrementFailure(partial bool) {
	if partial {
		m.State.SuccessivePartialFailures++
		m.State.TotalPartialFailures++
		m.State.SuccessiveCompleteFailures = 0
		return
	}
	m.State.SuccessiveCompleteFailures++
	m.State.TotalCompleteFailures++
	m.State.SuccessivePartialFailures = 0
}

// ShouldRetry reports whether every limit still has room.
func (m *Manager) ShouldRetry() bool {
	s, l := m.State, m.Limits
	switch {
	case s.SuccessivePartialFailures >= l.MaxSuccessivePartialFailures:
		return false
	case s.TotalPartialFailures >= l.MaxTotalPartialFailures:
		return false
	case s.SuccessiveCompleteFailures >= l.MaxSuccessiveCompleteFailures:
		return false
	case s.TotalCompleteFailures >= l.MaxTotalCompleteFailures:
		return false
	default:
		return true
	}
}

// Backoff returns the wait before the next attempt.
func (m *Manager) Backoff() time.Duration {
	if m.State.SuccessiveCompleteFailures > 0 {
		return m.CompleteFailurePolicy.Backoff(m.State.SuccessiveCompleteFailures)
	}
	if m.State.SuccessivePartialFailures > 0 && m.PartialFailurePolicy != nil {
		return m.PartialFailurePolicy.Backoff(m.State.SuccessivePartialFailures)
	}
	return 0
}
