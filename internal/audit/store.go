// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save persists an audit event.
func (s *MemoryStore) Save(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Enforce max length by removing the oldest 10%
	if len(s.events) >= s.maxLen {
		removeCount := s.maxLen / 10
		if removeCount < 1 {
			removeCount = 1
		}
		s.events = s.events[removeCount:]
	}

	s.events = append(s.events, *event)
	return nil
}

// Get retrieves an event by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}

	return nil, fmt.Errorf("event not found: %s", id)
}

// Query retrieves events matching the filter, most recent first.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Event

	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]

		if !matchesFilter(&event, &filter) {
			continue
		}

		results = append(results, event)

		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results, nil
}

// matchesFilter returns true if the event matches all filter criteria.
//
//nolint:gocyclo // complexity inherent to multi-criteria filter matching
func matchesFilter(event *Event, filter *QueryFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Severities) > 0 {
		found := false
		for _, sev := range filter.Severities {
			if event.Severity == sev {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Outcomes) > 0 {
		found := false
		for _, o := range filter.Outcomes {
			if event.Outcome == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.ActorID != "" && event.Actor.ID != filter.ActorID {
		return false
	}

	if filter.TargetID != "" {
		if event.Target == nil || event.Target.ID != filter.TargetID {
			return false
		}
	}

	if filter.Channel != "" && event.Channel != filter.Channel {
		return false
	}

	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}

	if filter.CorrelationID != "" && event.CorrelationID != filter.CorrelationID {
		return false
	}

	if filter.RequestID != "" && event.RequestID != filter.RequestID {
		return false
	}

	return true
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			count++
		}
	}

	return count, nil
}

// Delete removes events older than the given time.
func (s *MemoryStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []Event
	var deleted int64

	for idx := range s.events {
		if s.events[idx].Timestamp.Before(olderThan) {
			deleted++
		} else {
			kept = append(kept, s.events[idx])
		}
	}

	s.events = kept
	return deleted, nil
}

// Clear removes all events (for testing).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

// Len returns the number of events in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
