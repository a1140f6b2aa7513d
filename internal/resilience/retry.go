// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package resilience wraps flaky collaborators in retry and circuit
// breaker primitives so the analysis pipeline degrades gracefully
// under partial upstream failure.
package resilience

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/metrics"
)

// RetryConfig controls the exponential backoff schedule.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig matches the service defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retry runs fn up to MaxRetries+1 times. Only errors whose fault kind
// is retryable consume a retry slot; any other error is returned
// immediately. Backoff waits respect context cancellation. After
// exhaustion the last error is wrapped in *faults.RetryExhausted.
func Retry(ctx context.Context, operation string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !faults.Retryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxRetries+1 {
			break
		}

		metrics.RetryAttempts.WithLabelValues(operation).Inc()

		delay := backoffDelay(cfg, attempt)
		logging.Ctx(ctx).Debug().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(lastErr).
			Msg("retrying after transient failure")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			// A deadline overrun is a timeout; a caller abort is not,
			// and must not surface as one.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return faults.Wrap(faults.KindTimeout, "retry wait deadline exceeded", ctx.Err())
			}
			return faults.Wrap(faults.KindInternal, "retry wait cancelled", ctx.Err())
		case <-timer.C:
		}
	}

	metrics.RetryExhaustions.WithLabelValues(operation).Inc()
	return &faults.RetryExhausted{Attempts: cfg.MaxRetries + 1, Last: lastErr}
}

// backoffDelay computes min(base * multiplier^(attempt-1), max).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}
