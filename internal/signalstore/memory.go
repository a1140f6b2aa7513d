// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package signalstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for development and tests.
// Events older than the retention period are trimmed on append.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string][]SignalEvent // phone hash -> events, append order
	retention time.Duration
	closed    bool
}

// NewMemoryStore creates a memory-backed signal store.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &MemoryStore{
		events:    make(map[string][]SignalEvent),
		retention: retention,
	}
}

// Append persists one signal event.
func (s *MemoryStore) Append(_ context.Context, event SignalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	s.events[event.PhoneHash] = append(s.events[event.PhoneHash], event)
	s.trimLocked(event.PhoneHash)

	return nil
}

// Query returns in-window events ordered by occurrence time.
func (s *MemoryStore) Query(_ context.Context, phoneHash string, start, end time.Time) ([]SignalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var out []SignalEvent
	for _, ev := range s.events[phoneHash] {
		if !ev.OccurredAt.Before(start) && ev.OccurredAt.Before(end) {
			out = append(out, ev)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})

	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.events = nil
	return nil
}

// trimLocked drops events past the retention window for one key.
// Must be called with the write lock held.
func (s *MemoryStore) trimLocked(phoneHash string) {
	cutoff := time.Now().Add(-s.retention)
	evs := s.events[phoneHash]

	kept := evs[:0]
	for _, ev := range evs {
		if ev.OccurredAt.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	if len(kept) == 0 {
		delete(s.events, phoneHash)
		return
	}
	s.events[phoneHash] = kept
}
