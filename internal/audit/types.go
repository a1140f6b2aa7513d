// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package audit provides the durable, queryable, correlation-keyed
// trail of every fraud verdict and system event. Writes are
// fire-and-forget: Log never returns an error to its caller.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Decision events
	EventTypeFraudDecision EventType = "fraud.decision"
	EventTypeFraudBlocked  EventType = "fraud.blocked"
	EventTypeBatchDecision EventType = "fraud.batch"

	// Security events
	EventTypeIntrusionDetected EventType = "security.intrusion_detected"
	EventTypeRateLimited       EventType = "security.rate_limited"

	// API access events (one per call, regardless of outcome)
	EventTypeAPIRequest EventType = "api.request"

	// Delivery events (notification/write-back outcomes)
	EventTypeDelivery EventType = "delivery.outcome"

	// System events
	EventTypeSystemError    EventType = "system.error"
	EventTypeSystemEvent    EventType = "system.event"
	EventTypeBreakerTripped EventType = "system.breaker_tripped"
	EventTypeConfigChanged  EventType = "system.config_changed"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates how the audited action ended.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeFailure        Outcome = "failure"
	OutcomeBlocked        Outcome = "blocked"
	OutcomePartialFailure Outcome = "partial_failure"
)

// Event is one immutable audit entry. The "read" status of an entry
// lives in a metadata sidecar on the logger, never in the entry itself.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Severity of the event.
	Severity Severity `json:"severity"`

	// Outcome indicates how the action ended.
	Outcome Outcome `json:"outcome"`

	// Actor who performed the action.
	Actor Actor `json:"actor"`

	// Target of the action (optional).
	Target *Target `json:"target,omitempty"`

	// Source of the request.
	Source Source `json:"source"`

	// Action describes what was done.
	Action string `json:"action"`

	// Description provides human-readable details.
	Description string `json:"description"`

	// Channel groups delivery events for rate aggregation.
	Channel string `json:"channel,omitempty"`

	// Metadata contains event-specific details.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorrelationID links related events.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID from the originating analysis request.
	RequestID string `json:"request_id,omitempty"`
}

// Actor represents who performed an action.
type Actor struct {
	// ID is the unique identifier (API key identity, service, system).
	ID string `json:"id"`

	// Type of actor (caller, service, system).
	Type string `json:"type"`

	// Name of the actor.
	Name string `json:"name,omitempty"`
}

// Target represents the object of an action.
type Target struct {
	// ID of the target resource (phone hash, store id, breaker name).
	ID string `json:"id"`

	// Type of target (phone_hash, store, breaker, batch).
	Type string `json:"type"`

	// Name of the target.
	Name string `json:"name,omitempty"`
}

// Source represents where a request originated.
type Source struct {
	// IPAddress of the client.
	IPAddress string `json:"ip_address"`

	// UserAgent of the client.
	UserAgent string `json:"user_agent,omitempty"`

	// Endpoint is the HTTP route that triggered the event.
	Endpoint string `json:"endpoint,omitempty"`

	// Method is the HTTP method.
	Method string `json:"method,omitempty"`
}

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*Event, error)

	// Query retrieves events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the retention period.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	// Types filters by event types.
	Types []EventType `json:"types,omitempty"`

	// Severities filters by severity levels.
	Severities []Severity `json:"severities,omitempty"`

	// Outcomes filters by outcome.
	Outcomes []Outcome `json:"outcomes,omitempty"`

	// ActorID filters by actor ID.
	ActorID string `json:"actor_id,omitempty"`

	// TargetID filters by target ID.
	TargetID string `json:"target_id,omitempty"`

	// Channel filters delivery events by channel.
	Channel string `json:"channel,omitempty"`

	// StartTime is the beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// CorrelationID filters by correlation ID.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID filters by request ID.
	RequestID string `json:"request_id,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}
