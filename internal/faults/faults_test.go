// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package faults

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"direct fault", New(KindValidation, "bad input"), KindValidation},
		{"wrapped fault", fmt.Errorf("outer: %w", New(KindTimeout, "slow")), KindTimeout},
		{"plain error", errors.New("boom"), KindInternal},
		{"exhausted retries keep the last kind", &RetryExhausted{
			Attempts: 3,
			Last:     New(KindUpstreamUnavailable, "store down"),
		}, KindUpstreamUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(KindUpstreamUnavailable, "down")) {
		t.Error("upstream unavailability must be retryable")
	}
	if !Retryable(New(KindTimeout, "slow")) {
		t.Error("timeouts must be retryable")
	}
	if Retryable(New(KindCircuitOpen, "open")) {
		t.Error("an open breaker must not be retried")
	}
	if Retryable(New(KindValidation, "bad")) {
		t.Error("validation failures must not be retried")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindSecurityViolation, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindRateLimit, http.StatusTooManyRequests},
		{KindUpstreamUnavailable, http.StatusServiceUnavailable},
		{KindCircuitOpen, http.StatusServiceUnavailable},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.kind); got != tc.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(KindUpstreamUnavailable, "query failed", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause lost")
	}
	if err.Error() != "query failed: underlying" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
