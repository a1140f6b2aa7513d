// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package signalstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kestrelsec/riskgate/internal/logging"
)

// signalKeyPrefix namespaces signal events in the shared badger DB.
const signalKeyPrefix = "signal:"

// BadgerStore is a durable Store backed by BadgerDB. Keys embed the
// phone hash and a zero-padded nanosecond timestamp so a prefix scan
// yields events in time order.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
}

// NewBadgerStore opens a badger-backed signal store at the given path.
func NewBadgerStore(path string, retention time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's logger is noisy; errors surface through ops

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open signal store at %s: %w", path, err)
	}

	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &BadgerStore{db: db, retention: retention}, nil
}

// NewBadgerStoreWithDB wraps an existing badger DB, for tests and for
// sharing one DB across stores.
func NewBadgerStoreWithDB(db *badger.DB, retention time.Duration) *BadgerStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &BadgerStore{db: db, retention: retention}
}

// signalKey builds the ordered key for one event.
func signalKey(phoneHash string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", signalKeyPrefix, phoneHash, at.UnixNano(), id))
}

// Append persists one signal event with a retention TTL.
func (s *BadgerStore) Append(ctx context.Context, event SignalEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal signal event: %w", err)
	}

	key := signalKey(event.PhoneHash, event.OccurredAt, event.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(s.retention)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set signal event: %w", err)
		}
		return nil
	})
}

// Query scans the phone hash prefix and filters to [start, end).
func (s *BadgerStore) Query(ctx context.Context, phoneHash string, start, end time.Time) ([]SignalEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(signalKeyPrefix + phoneHash + ":")
	var out []SignalEvent

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek directly to the window start; keys are time-ordered.
		seek := signalKey(phoneHash, start, "")
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var ev SignalEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil {
				// A corrupt entry should not fail the whole scan.
				logging.Warn().
					Str("component", "signalstore").
					Str("key", string(it.Item().Key())).
					Err(err).
					Msg("skipping unreadable signal event")
				continue
			}
			if !ev.OccurredAt.Before(end) {
				break
			}
			if !ev.OccurredAt.Before(start) {
				out = append(out, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query signal events: %w", err)
	}

	return out, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
