// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage. The time-ordered key allows range
// scans newest-last; the id index supports Get by event id.
const (
	auditKeyPrefix   = "audit:"
	auditIDKeyPrefix = "audit_id:"
)

// ErrEventNotFound is returned when no event has the given id.
var ErrEventNotFound = errors.New("audit: event not found")

// BadgerStore implements Store using BadgerDB for durable storage.
// Suitable for production use with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a badger-backed audit store at the given path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit store at %s: %w", path, err)
	}

	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreWithDB wraps an existing badger DB.
func NewBadgerStoreWithDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// auditKey builds the time-ordered key for one event.
func auditKey(at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", auditKeyPrefix, at.UnixNano(), id))
}

// Save persists an audit event.
func (s *BadgerStore) Save(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := auditKey(event.Timestamp, event.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set audit event: %w", err)
		}

		// Secondary index: id -> primary key
		idKey := []byte(auditIDKeyPrefix + event.ID)
		if err := txn.Set(idKey, key); err != nil {
			return fmt.Errorf("set audit id index: %w", err)
		}

		return nil
	})
}

// Get retrieves an event by ID via the id index.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var event Event

	err := s.db.View(func(txn *badger.Txn) error {
		idItem, err := txn.Get([]byte(auditIDKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("get audit id index: %w", err)
		}

		var primaryKey []byte
		if err := idItem.Value(func(val []byte) error {
			primaryKey = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(primaryKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("get audit event: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// Query scans the time-ordered prefix in reverse and filters in
// memory. Audit queries are operator-facing, so a full prefix scan
// bounded by Limit is acceptable.
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []Event

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditKeyPrefix)
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the prefix range.
		seek := append([]byte(auditKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(auditKeyPrefix)); it.Next() {
			var event Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				continue
			}

			if !matchesFilter(&event, &filter) {
				continue
			}

			results = append(results, event)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	return results, nil
}

// Count returns the number of events matching the filter.
func (s *BadgerStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	unlimited := filter
	unlimited.Limit = 0

	events, err := s.Query(ctx, unlimited)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// Delete removes events older than the given time.
func (s *BadgerStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := auditKey(olderThan, "")
	var deleted int64

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		var toDelete [][]byte
		for it.Rewind(); it.ValidForPrefix([]byte(auditKeyPrefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(cutoff) {
				break // keys are time-ordered
			}

			var event Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err == nil && event.ID != "" {
				toDelete = append(toDelete, []byte(auditIDKeyPrefix+event.ID))
			}
			toDelete = append(toDelete, key)
		}

		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		deleted = int64(len(toDelete)) / 2
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}

	return deleted, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
