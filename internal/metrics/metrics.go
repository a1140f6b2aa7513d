// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package metrics provides Prometheus instrumentation for the analysis
// pipeline. Metrics are registered via promauto and exposed at the
// /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fraud Analysis Metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_analyses_total",
			Help: "Total number of fraud analyses by detection mode and verdict",
		},
		[]string{"mode", "verdict"}, // verdict: "fraud", "clean", "error"
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fraud_analysis_duration_seconds",
			Help:    "Fraud analysis duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	IndicatorsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_indicators_total",
			Help: "Total number of fraud indicators emitted",
		},
		[]string{"type", "severity"},
	)

	LearningWritebacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_learning_writebacks_total",
			Help: "Total number of learning write-backs to the signal store",
		},
		[]string{"result"}, // "stored", "dropped", "failed"
	)

	// Intrusion Scanner Metrics
	IntrusionScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intrusion_scans_total",
			Help: "Total number of intrusion scans by outcome",
		},
		[]string{"outcome"}, // "clean", "detected", "blocked"
	)

	IntrusionSignatureHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intrusion_signature_hits_total",
			Help: "Total number of signature matches by intrusion type",
		},
		[]string{"intrusion_type"},
	)

	// Behavioral Pattern Metrics
	PatternAnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "behavior_pattern_analyses_total",
			Help: "Total number of behavioral pattern analyses",
		},
		[]string{"window", "result"}, // result: "found", "empty", "error"
	)

	PatternCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "behavior_pattern_cache_hits_total",
			Help: "Total number of pattern cache hits",
		},
	)

	PatternCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "behavior_pattern_cache_misses_total",
			Help: "Total number of pattern cache misses",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Retry Metrics
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts by operation",
		},
		[]string{"operation"},
	)

	RetryExhaustions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_exhaustions_total",
			Help: "Total number of retry loops that exhausted all attempts",
		},
		[]string{"operation"},
	)

	// Audit Trail Metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of audit events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Total number of audit events dropped due to a full buffer",
		},
	)

	AuditStoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_store_failures_total",
			Help: "Total number of audit store write failures routed to the fallback sink",
		},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_queue_depth",
			Help: "Current depth of the async audit event queue",
		},
	)

	// Batch Metrics
	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_analyses_total",
			Help: "Total number of batch analysis requests",
		},
	)

	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Total number of batch items by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "Batch analysis duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"tier"}, // "standard", "privileged"
	)

	// Velocity Counter Metrics
	VelocityKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "velocity_counter_keys",
			Help: "Current number of tracked velocity counter keys",
		},
	)
)

// RecordAnalysis records one fraud analysis outcome.
func RecordAnalysis(mode string, isFraud bool, duration time.Duration, err error) {
	verdict := "clean"
	switch {
	case err != nil:
		verdict = "error"
	case isFraud:
		verdict = "fraud"
	}
	AnalysesTotal.WithLabelValues(mode, verdict).Inc()
	AnalysisDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
