// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package signalstore persists risk signal events keyed by phone hash
// and time. The behavioral pattern analyzer reads through this narrow
// interface; the fraud engine writes learning outcomes back through it.
package signalstore

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("signalstore: store closed")

// PatternType classifies a stored signal event.
type PatternType string

const (
	PatternCallFrequency   PatternType = "call_frequency"
	PatternTimePattern     PatternType = "time_pattern"
	PatternLocationPattern PatternType = "location_pattern"
	PatternSimilarity      PatternType = "similarity_pattern"
)

// AllPatternTypes lists the known pattern types in canonical order.
func AllPatternTypes() []PatternType {
	return []PatternType{
		PatternCallFrequency,
		PatternTimePattern,
		PatternLocationPattern,
		PatternSimilarity,
	}
}

// Valid reports whether the pattern type is known.
func (p PatternType) Valid() bool {
	switch p {
	case PatternCallFrequency, PatternTimePattern, PatternLocationPattern, PatternSimilarity:
		return true
	}
	return false
}

// SignalEvent is one recorded risk signal for a phone hash.
type SignalEvent struct {
	ID          string            `json:"id"`
	PhoneHash   string            `json:"phone_hash"`
	PatternType PatternType       `json:"pattern_type"`
	StoreID     string            `json:"store_id,omitempty"`
	// Weight grades how strong a violation this event represents,
	// in [0,1]. Learning write-backs use the verdict confidence.
	Weight     float64           `json:"weight"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store is the narrow interface the pipeline consumes. Implementations
// must be safe for concurrent use.
type Store interface {
	// Append persists one signal event.
	Append(ctx context.Context, event SignalEvent) error

	// Query returns events for a phone hash within [start, end),
	// ordered by occurrence time ascending. An empty result is not
	// an error.
	Query(ctx context.Context, phoneHash string, start, end time.Time) ([]SignalEvent, error)

	// Close releases resources.
	Close() error
}
