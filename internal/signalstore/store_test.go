// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package signalstore

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewBadgerStoreWithDB(db, time.Hour)
}

// storeImpls lets the same contract tests run against both backends.
func storeImpls(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"badger": newTestBadgerStore(t),
	}
}

func TestStoreAppendQuery(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			events := []SignalEvent{
				{PhoneHash: "abc12345", PatternType: PatternCallFrequency, Weight: 0.8, OccurredAt: now.Add(-30 * time.Minute)},
				{PhoneHash: "abc12345", PatternType: PatternTimePattern, Weight: 0.5, OccurredAt: now.Add(-10 * time.Minute)},
				{PhoneHash: "other999", PatternType: PatternCallFrequency, Weight: 0.9, OccurredAt: now.Add(-5 * time.Minute)},
			}
			for _, ev := range events {
				if err := store.Append(ctx, ev); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			got, err := store.Query(ctx, "abc12345", now.Add(-time.Hour), now)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 events, got %d", len(got))
			}
			if got[0].PatternType != PatternCallFrequency || got[1].PatternType != PatternTimePattern {
				t.Errorf("events out of time order: %v then %v", got[0].PatternType, got[1].PatternType)
			}
			for _, ev := range got {
				if ev.ID == "" {
					t.Error("expected generated event id")
				}
			}
		})
	}
}

func TestStoreQueryWindowBounds(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			// One violation 31 minutes ago, one 29 minutes ago.
			old := SignalEvent{PhoneHash: "abc12345", PatternType: PatternCallFrequency, OccurredAt: now.Add(-31 * time.Minute)}
			recent := SignalEvent{PhoneHash: "abc12345", PatternType: PatternCallFrequency, OccurredAt: now.Add(-29 * time.Minute)}
			if err := store.Append(ctx, old); err != nil {
				t.Fatal(err)
			}
			if err := store.Append(ctx, recent); err != nil {
				t.Fatal(err)
			}

			got, err := store.Query(ctx, "abc12345", now.Add(-30*time.Minute), now)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("30m window should include only the 29m-old event, got %d events", len(got))
			}
		})
	}
}

func TestStoreQueryEmpty(t *testing.T) {
	ctx := context.Background()

	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.Query(ctx, "nosuchhash", time.Now().Add(-time.Hour), time.Now())
			if err != nil {
				t.Fatalf("empty query must not error: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("expected no events, got %d", len(got))
			}
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if err := store.Append(context.Background(), SignalEvent{PhoneHash: "abc12345"}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
