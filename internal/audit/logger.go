// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/metrics"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool

	// BufferSize is the size of the async write buffer. A full buffer
	// drops events rather than blocking the decision path.
	BufferSize int

	// Retention is how long to keep audit entries.
	Retention time.Duration

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		BufferSize:      1000,
		Retention:       30 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
	}
}

// AlertFunc is invoked for critical-severity events. Best effort: the
// logger swallows any panic or error from the hook.
type AlertFunc func(event *Event)

// Trail is the audit logging service. Log is fire-and-forget: events
// flow through a bounded channel to a single writer goroutine, store
// failures are routed to the zerolog fallback sink, and a full buffer
// drops the event with a metric rather than blocking the caller.
type Trail struct {
	config    *Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	wg        sync.WaitGroup

	alertMu sync.RWMutex
	alert   AlertFunc

	// readStatus is the sidecar holding per-event read markers; the
	// entries themselves stay immutable.
	readMu     sync.RWMutex
	readStatus map[string]time.Time
}

// NewTrail creates an audit trail writing to the given store.
func NewTrail(store Store, config *Config) *Trail {
	if config == nil {
		config = DefaultConfig()
	}

	t := &Trail{
		config:     config,
		store:      store,
		eventChan:  make(chan *Event, config.BufferSize),
		stopChan:   make(chan struct{}),
		readStatus: make(map[string]time.Time),
	}

	t.wg.Add(1)
	go t.asyncWriter()

	return t
}

// SetAlertHook installs the hook invoked on critical events.
func (t *Trail) SetAlertHook(fn AlertFunc) {
	t.alertMu.Lock()
	defer t.alertMu.Unlock()
	t.alert = fn
}

// asyncWriter processes events from the buffer.
func (t *Trail) asyncWriter() {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-t.eventChan:
					t.writeEvent(event)
				default:
					return
				}
			}
		case event := <-t.eventChan:
			t.writeEvent(event)
			metrics.AuditQueueDepth.Set(float64(len(t.eventChan)))
		}
	}
}

// writeEvent persists an event; failures go to the fallback sink.
func (t *Trail) writeEvent(event *Event) {
	if t.store == nil {
		t.fallback(event, nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.store.Save(ctx, event); err != nil {
		metrics.AuditStoreFailures.Inc()
		t.fallback(event, err)
	}
}

// fallback writes the event to the structured log so no entry is
// silently lost when the store misbehaves.
func (t *Trail) fallback(event *Event, cause error) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to marshal audit event for fallback sink")
		return
	}
	logging.Error().
		AnErr("store_error", cause).
		RawJSON("event", data).
		Msg("Audit event routed to fallback sink")
}

// Log records an audit event. It never returns an error and never
// blocks: a full buffer drops the event.
func (t *Trail) Log(event *Event) {
	if event == nil || !t.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	metrics.AuditEventsTotal.WithLabelValues(string(event.Type), string(event.Outcome)).Inc()

	if event.Severity == SeverityCritical {
		t.fireAlert(event)
	}

	select {
	case t.eventChan <- event:
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// fireAlert invokes the alert hook, swallowing its failures.
func (t *Trail) fireAlert(event *Event) {
	t.alertMu.RLock()
	fn := t.alert
	t.alertMu.RUnlock()

	if fn == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error().Interface("panic", r).Msg("Audit alert hook panicked")
			}
		}()
		fn(event)
	}()
}

// Close shuts down the trail, draining buffered events.
func (t *Trail) Close() error {
	close(t.stopChan)
	t.wg.Wait()
	return nil
}

// StartCleanupRoutine runs retention cleanup until ctx is done.
func (t *Trail) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-t.config.Retention)
				count, err := t.store.Delete(ctx, cutoff)
				if err != nil {
					logging.Error().Err(err).Msg("Audit cleanup error")
				} else if count > 0 {
					logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
				}
			}
		}
	}()
}

// Query retrieves events matching the filter.
func (t *Trail) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return t.store.Query(ctx, filter)
}

// QueryByCorrelation returns all events sharing a correlation id.
func (t *Trail) QueryByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return t.store.Query(ctx, QueryFilter{CorrelationID: correlationID, Limit: 1000})
}

// Count returns the number of events matching the filter.
func (t *Trail) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return t.store.Count(ctx, filter)
}

// MarkRead records a read marker for an event in the metadata sidecar.
func (t *Trail) MarkRead(eventID string) {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	t.readStatus[eventID] = time.Now()
}

// IsRead reports whether an event has a read marker.
func (t *Trail) IsRead(eventID string) bool {
	t.readMu.RLock()
	defer t.readMu.RUnlock()
	_, ok := t.readStatus[eventID]
	return ok
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// mustJSON converts a value to JSON, returning empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// SystemActor returns an Actor representing the service itself.
func SystemActor() Actor {
	return Actor{
		ID:   "system",
		Type: "system",
		Name: "Riskgate",
	}
}
