// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/metrics"
	"github.com/kestrelsec/riskgate/internal/middleware"
)

// Router builds the chi mux with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/fraud", func(r chi.Router) {
		r.Use(s.auditRequests)
		r.Use(s.rateLimiter())

		r.Post("/analyze", s.handleAnalyze)
		r.Get("/analyze/status/{request_id}", s.handleAnalyzeStatus)
		r.Post("/analyze/batch", s.handleAnalyzeBatch)
		r.Get("/patterns/{phone_hash}", s.handlePatterns)
	})

	return r
}

// auditRequests writes one trail entry per call once the handler
// chain finishes. Handlers add richer typed events on top (verdicts,
// intrusion blocks), but every call gets at least this record.
func (s *Server) auditRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.trail.LogRequest(r.Context(), audit.Source{
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Method:    r.Method,
		}, rec.status)
	})
}

// statusCapture records the status written downstream.
type statusCapture struct {
	http.ResponseWriter
	status int
}

func (w *statusCapture) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// rateLimiter enforces the per-caller quota with two tiers: standard
// callers are keyed by client IP, privileged API keys get the higher
// budget keyed by key. Disabled entirely via config for load tests.
func (s *Server) rateLimiter() func(http.Handler) http.Handler {
	if s.cfg.Security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}

	window := s.cfg.Security.RateLimitWindow
	retryAfter := int(window.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	privileged := make(map[string]bool, len(s.cfg.Security.PrivilegedKeys))
	for _, key := range s.cfg.Security.PrivilegedKeys {
		privileged[key] = true
	}

	standardLimit := httprate.Limit(
		s.cfg.Security.RateLimitReqs,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(s.limitHandler("standard", retryAfter)),
	)
	privilegedLimit := httprate.Limit(
		s.cfg.Security.RateLimitPrivileged,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return r.Header.Get("X-API-Key"), nil
		}),
		httprate.WithLimitHandler(s.limitHandler("privileged", retryAfter)),
	)

	return func(next http.Handler) http.Handler {
		standard := standardLimit(next)
		elevated := privilegedLimit(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if privileged[r.Header.Get("X-API-Key")] {
				elevated.ServeHTTP(w, r)
				return
			}
			standard.ServeHTTP(w, r)
		})
	}
}

// limitHandler writes the 429 payload, records the rejection, and
// audits the throttled caller.
func (s *Server) limitHandler(tier string, retryAfter int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.APIRateLimitHits.WithLabelValues(tier).Inc()

		identity := r.Header.Get("X-API-Key")
		if identity == "" {
			identity = r.RemoteAddr
		}
		s.trail.LogRateLimited(r.Context(), audit.Source{
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Method:    r.Method,
		}, identity, retryAfter)

		logging.Ctx(r.Context()).Warn().
			Str("tier", tier).
			Str("path", r.URL.Path).
			Msg("rate limit exceeded")

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, errorPayload{
			Error:         "rate_limited",
			Message:       "request quota exceeded",
			CorrelationID: logging.CorrelationIDFromContext(r.Context()),
			RetryAfter:    retryAfter,
		})
	}
}
