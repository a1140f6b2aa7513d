// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package faults defines the error taxonomy shared across the analysis
// pipeline. Every error that crosses a component boundary is classified
// into a Kind; the HTTP layer maps kinds to status codes and the retry
// machinery uses kinds to decide retryability.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind string

const (
	// KindValidation marks malformed input. Terminal, never retried.
	KindValidation Kind = "validation"

	// KindSecurityViolation marks a request flagged as an intrusion.
	// Terminal; always audited with a blocked outcome.
	KindSecurityViolation Kind = "security_violation"

	// KindNotFound marks a legitimate empty result.
	KindNotFound Kind = "not_found"

	// KindRateLimit marks per-caller quota exhaustion. Terminal to the
	// caller; carries a retry-after hint.
	KindRateLimit Kind = "rate_limit"

	// KindUpstreamUnavailable marks transient collaborator failures
	// (network, telephony, store). Retryable.
	KindUpstreamUnavailable Kind = "upstream_unavailable"

	// KindCircuitOpen marks a fast-fail while a breaker is open.
	// Terminal for this call; surfaced to callers as upstream trouble.
	KindCircuitOpen Kind = "circuit_open"

	// KindTimeout marks a processing-time budget overrun. Retryable.
	KindTimeout Kind = "timeout"

	// KindInternal marks unexpected failures.
	KindInternal Kind = "internal"
)

// Fault is an error carrying a Kind and an optional wrapped cause.
type Fault struct {
	kind Kind
	msg  string
	err  error
}

// New creates a Fault with the given kind and message.
func New(kind Kind, msg string) *Fault {
	return &Fault{kind: kind, msg: msg}
}

// Newf creates a Fault with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Fault {
	return &Fault{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a Fault wrapping an underlying error.
func Wrap(kind Kind, msg string, err error) *Fault {
	return &Fault{kind: kind, msg: msg, err: err}
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.err != nil {
		return f.msg + ": " + f.err.Error()
	}
	return f.msg
}

// Unwrap returns the wrapped cause, if any.
func (f *Fault) Unwrap() error {
	return f.err
}

// Kind returns the fault classification.
func (f *Fault) Kind() Kind {
	return f.kind
}

// KindOf returns the Kind of err. Unclassified errors are internal;
// context timeouts map to KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.kind
	}
	var re *RetryExhausted
	if errors.As(err, &re) {
		return KindOf(re.Last)
	}
	return KindInternal
}

// IsKind reports whether err classifies as the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether err is worth retrying. Circuit-open is
// deliberately not retryable: the breaker already knows the upstream
// is down and retrying would just burn the reset timeout.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstreamUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to an HTTP status code. Circuit-open presents
// as upstream unavailability per the error contract.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindSecurityViolation:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstreamUnavailable, KindCircuitOpen:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RetryExhausted aggregates a failed retry loop: how many attempts ran
// and the last error observed.
type RetryExhausted struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last observed error.
func (e *RetryExhausted) Unwrap() error {
	return e.Last
}
