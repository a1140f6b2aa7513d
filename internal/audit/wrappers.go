// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package audit

import (
	"context"
	"fmt"

	"github.com/kestrelsec/riskgate/internal/logging"
)

// Typed wrappers building on Log. Each stamps the correlation id from
// the context so every verdict links causally to its inputs.

// LogDecision records one fraud verdict. Exactly one decision event is
// written per analysis request regardless of outcome.
func (t *Trail) LogDecision(ctx context.Context, requestID, phoneHash, mode string, isFraud bool, confidence float64, outcome Outcome) {
	severity := SeverityInfo
	if isFraud {
		severity = SeverityWarning
	}
	if outcome == OutcomeFailure {
		severity = SeverityError
	}

	t.Log(&Event{
		Type:     EventTypeFraudDecision,
		Severity: severity,
		Outcome:  outcome,
		Actor:    SystemActor(),
		Target: &Target{
			ID:   phoneHash,
			Type: "phone_hash",
		},
		Action:      "analyze",
		Description: fmt.Sprintf("Fraud analysis (%s): is_fraud=%t confidence=%.1f", mode, isFraud, confidence),
		Metadata: mustJSON(map[string]interface{}{
			"detection_mode": mode,
			"is_fraud":       isFraud,
			"confidence":     confidence,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     requestID,
	})
}

// LogRequest records one API call and its response status. The HTTP
// layer writes exactly one of these per request, so rejected calls
// (validation failures, malformed bodies, empty lookups) leave a
// trail entry too.
func (t *Trail) LogRequest(ctx context.Context, source Source, status int) {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	if status >= 400 {
		outcome = OutcomeFailure
		severity = SeverityWarning
	}

	t.Log(&Event{
		Type:        EventTypeAPIRequest,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       Actor{ID: source.IPAddress, Type: "caller"},
		Source:      source,
		Action:      "request",
		Description: fmt.Sprintf("%s %s -> %d", source.Method, source.Endpoint, status),
		Metadata: mustJSON(map[string]interface{}{
			"status": status,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

// LogIntrusionBlocked records a request blocked by the signature
// scanner. Always audited with a blocked outcome.
func (t *Trail) LogIntrusionBlocked(ctx context.Context, source Source, intrusionType, eventID string) {
	t.Log(&Event{
		Type:        EventTypeIntrusionDetected,
		Severity:    SeverityCritical,
		Outcome:     OutcomeBlocked,
		Actor:       Actor{ID: source.IPAddress, Type: "caller"},
		Source:      source,
		Action:      "block",
		Description: "Request blocked by intrusion signature scan: " + intrusionType,
		Metadata: mustJSON(map[string]string{
			"intrusion_type": intrusionType,
			"event_id":       eventID,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

// LogDeliveryOutcome records the result of a delivery attempt
// (learning write-back, alert dispatch). Channel groups entries for
// delivery-rate aggregation.
func (t *Trail) LogDeliveryOutcome(ctx context.Context, channel, targetID string, success bool, detail string) {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	if !success {
		outcome = OutcomeFailure
		severity = SeverityWarning
	}

	t.Log(&Event{
		Type:     EventTypeDelivery,
		Severity: severity,
		Outcome:  outcome,
		Actor:    SystemActor(),
		Target: &Target{
			ID:   targetID,
			Type: "delivery",
		},
		Action:        "deliver",
		Description:   detail,
		Channel:       channel,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

// LogError records a system error with its correlation id.
func (t *Trail) LogError(ctx context.Context, action string, err error, severity Severity) {
	if severity == "" {
		severity = SeverityError
	}

	t.Log(&Event{
		Type:          EventTypeSystemError,
		Severity:      severity,
		Outcome:       OutcomeFailure,
		Actor:         SystemActor(),
		Action:        action,
		Description:   err.Error(),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

// LogSystemEvent records a general system event.
func (t *Trail) LogSystemEvent(ctx context.Context, action, description string, metadata map[string]interface{}) {
	t.Log(&Event{
		Type:          EventTypeSystemEvent,
		Severity:      SeverityInfo,
		Outcome:       OutcomeSuccess,
		Actor:         SystemActor(),
		Action:        action,
		Description:   description,
		Metadata:      mustJSON(metadata),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	})
}

// LogBreakerTripped records a circuit breaker opening.
func (t *Trail) LogBreakerTripped(name string, consecutiveFailures uint32) {
	t.Log(&Event{
		Type:     EventTypeBreakerTripped,
		Severity: SeverityCritical,
		Outcome:  OutcomeFailure,
		Actor:    SystemActor(),
		Target: &Target{
			ID:   name,
			Type: "breaker",
		},
		Action:      "trip",
		Description: fmt.Sprintf("Circuit breaker %q opened after %d consecutive failures", name, consecutiveFailures),
		Metadata: mustJSON(map[string]interface{}{
			"consecutive_failures": consecutiveFailures,
		}),
	})
}

// LogBatch records the aggregate outcome of one batch analysis.
func (t *Trail) LogBatch(ctx context.Context, batchID string, total, successCount, failureCount int) {
	outcome := OutcomeSuccess
	if failureCount > 0 && successCount > 0 {
		outcome = OutcomePartialFailure
	} else if failureCount > 0 {
		outcome = OutcomeFailure
	}

	t.Log(&Event{
		Type:     EventTypeBatchDecision,
		Severity: SeverityInfo,
		Outcome:  outcome,
		Actor:    SystemActor(),
		Target: &Target{
			ID:   batchID,
			Type: "batch",
		},
		Action:      "analyze_batch",
		Description: fmt.Sprintf("Batch analysis: %d total, %d succeeded, %d failed", total, successCount, failureCount),
		Metadata: mustJSON(map[string]interface{}{
			"total_requests": total,
			"success_count":  successCount,
			"failure_count":  failureCount,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	})
}

// LogRateLimited records a rate-limit rejection.
func (t *Trail) LogRateLimited(ctx context.Context, source Source, identity string, retryAfterSeconds int) {
	t.Log(&Event{
		Type:        EventTypeRateLimited,
		Severity:    SeverityWarning,
		Outcome:     OutcomeBlocked,
		Actor:       Actor{ID: identity, Type: "caller"},
		Source:      source,
		Action:      "rate_limit",
		Description: "Request rejected by rate limiter",
		Metadata: mustJSON(map[string]interface{}{
			"retry_after_seconds": retryAfterSeconds,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}
