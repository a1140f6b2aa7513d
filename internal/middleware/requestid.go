// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package middleware provides the HTTP middleware shared by all
// routes: request identity propagation and Prometheus instrumentation.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kestrelsec/riskgate/internal/logging"
)

// RequestID propagates an X-Request-ID header (honoring an upstream
// proxy's value) and seeds the logging context with request and
// correlation ids so every audit entry links back to the call.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
