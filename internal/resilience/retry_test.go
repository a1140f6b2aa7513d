// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kestrelsec/riskgate/internal/faults"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "test", fastRetryConfig(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhaustsRetryableFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "test", fastRetryConfig(), func(context.Context) error {
		calls++
		return faults.New(faults.KindUpstreamUnavailable, "store down")
	})

	// Initial attempt plus MaxRetries retries.
	if calls != 4 {
		t.Errorf("expected 4 invocations, got %d", calls)
	}

	var exhausted *faults.RetryExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhausted, got %T: %v", err, err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("expected 4 attempts recorded, got %d", exhausted.Attempts)
	}
	if faults.KindOf(err) != faults.KindUpstreamUnavailable {
		t.Errorf("exhaustion must preserve the underlying kind, got %s", faults.KindOf(err))
	}
}

func TestRetryNonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	original := faults.New(faults.KindValidation, "bad input")

	err := Retry(context.Background(), "test", fastRetryConfig(), func(context.Context) error {
		calls++
		return original
	})

	if calls != 1 {
		t.Errorf("non-retryable error must not consume retry slots, got %d calls", calls)
	}
	if !errors.Is(err, original) {
		t.Error("non-retryable error must be returned unchanged")
	}
}

func TestRetryCircuitOpenNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "test", fastRetryConfig(), func(context.Context) error {
		calls++
		return faults.New(faults.KindCircuitOpen, "breaker open")
	})

	if calls != 1 {
		t.Errorf("circuit_open must not be retried, got %d calls", calls)
	}
	if faults.KindOf(err) != faults.KindCircuitOpen {
		t.Errorf("unexpected kind %s", faults.KindOf(err))
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "test", fastRetryConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return faults.New(faults.KindTimeout, "slow upstream")
		}
		return nil
	})

	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected success on third call, got %d", calls)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastRetryConfig()
	cfg.BaseDelay = time.Minute // would block without cancellation

	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, "test", cfg, func(context.Context) error {
			return faults.New(faults.KindUpstreamUnavailable, "down")
		})
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
		if faults.KindOf(err) == faults.KindTimeout {
			t.Error("a caller abort must not classify as a timeout")
		}
		if faults.Retryable(err) {
			t.Error("a caller abort must not be retryable")
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not honor context cancellation")
	}
}

func TestRetryContextDeadlineIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	cfg := fastRetryConfig()
	cfg.BaseDelay = time.Minute // deadline fires during the backoff wait

	err := Retry(ctx, "test", cfg, func(context.Context) error {
		return faults.New(faults.KindUpstreamUnavailable, "down")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded in chain, got %v", err)
	}
	if faults.KindOf(err) != faults.KindTimeout {
		t.Errorf("deadline overrun must classify as timeout, got %q", faults.KindOf(err))
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{7, 5 * time.Second}, // 6400ms capped at max
	}

	for _, tt := range tests {
		if got := backoffDelay(cfg, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
