// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package api exposes the HTTP surface of the analysis pipeline:
// routing, request decoding, rate limiting and error mapping.
package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/kestrelsec/riskgate/internal/logging"
)

// errorPayload is the wire shape of every error response. The error
// field is a stable machine-readable code; correlation_id links the
// response to audit entries and logs.
type errorPayload struct {
	Error         string      `json:"error"`
	Message       string      `json:"message,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Details       interface{} `json:"details,omitempty"`
	RetryAfter    int         `json:"retry_after,omitempty"`
}

// writeJSON serializes v and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing left but to log.
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// respondError writes a structured error with the request's
// correlation id attached.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	writeJSON(w, status, errorPayload{
		Error:         code,
		Message:       message,
		CorrelationID: logging.CorrelationIDFromContext(r.Context()),
		Details:       details,
	})
}

// SecurityHeaders sets the baseline response headers. HSTS is added
// only behind TLS so plain-HTTP dev setups stay usable.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
