// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package resilience

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/metrics"
)

// BreakerConfig controls per-collaborator circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens
	// the circuit.
	FailureThreshold uint32

	// ResetTimeout is how long an open circuit waits before admitting
	// the half-open trial call.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig matches the service defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// Guard is a registry of named circuit breakers. A breaker is created
// lazily on first use and shared by all concurrent callers for that
// name for the process lifetime.
type Guard struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	config   BreakerConfig
	trail    *audit.Trail
}

// NewGuard creates an empty breaker registry. trail may be nil; when
// set, circuit-open transitions are recorded on the audit trail.
func NewGuard(cfg BreakerConfig, trail *audit.Trail) *Guard {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}

	return &Guard{
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		config:   cfg,
		trail:    trail,
	}
}

// Execute runs fn through the named breaker. An open circuit or a
// rejected half-open call fails fast with a circuit_open fault, which
// is deliberately non-retryable.
func (g *Guard) Execute(name string, fn func() (any, error)) (any, error) {
	result, err := g.breaker(name).Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
			return nil, faults.Wrap(faults.KindCircuitOpen, "circuit breaker "+name+" is open", err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	return result, nil
}

// State reports the named breaker's state as closed/half-open/open.
// A breaker that has never executed reports closed.
func (g *Guard) State(name string) string {
	return stateToString(g.breaker(name).State())
}

// breaker returns the breaker for name, creating it on first use.
func (g *Guard) breaker(name string) *gobreaker.CircuitBreaker[any] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[name]; ok {
		return cb
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: name,
		// Exactly one trial call is admitted in half-open.
		MaxRequests: 1,
		Timeout:     g.config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.config.FailureThreshold
		},
		OnStateChange: g.onStateChange,
	})

	g.breakers[name] = cb
	return cb
}

// onStateChange records transitions and audits circuit-open events.
func (g *Guard) onStateChange(name string, from, to gobreaker.State) {
	fromStr := stateToString(from)
	toStr := stateToString(to)

	logging.Info().
		Str("breaker", name).
		Str("from", fromStr).
		Str("to", toStr).
		Msg("circuit breaker state transition")

	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
	metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

	if to == gobreaker.StateOpen && g.trail != nil {
		g.trail.LogBreakerTripped(name, g.config.FailureThreshold)
	}
}

// stateToFloat maps breaker states to the gauge values used in
// dashboards: 0=closed, 1=half-open, 2=open.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
