// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package audit

import (
	"context"
	"time"
)

// Grouping selects the bucket size for rate aggregation.
type Grouping string

const (
	GroupByHour Grouping = "hour"
	GroupByDay  Grouping = "day"
)

// RateBucket is one aggregation bucket.
type RateBucket struct {
	Period   time.Time `json:"period"`
	Total    int64     `json:"total"`
	Success  int64     `json:"success"`
	Failure  int64     `json:"failure"`
	Rate     float64   `json:"rate"` // success / total, 0 when empty
	Channel  string    `json:"channel,omitempty"`
	Type     string    `json:"type,omitempty"`
}

// truncate maps a timestamp to its bucket start.
func (g Grouping) truncate(t time.Time) time.Time {
	switch g {
	case GroupByDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	default:
		return t.Truncate(time.Hour)
	}
}

// DeliveryRates aggregates delivery events into success-rate buckets
// grouped by period and channel.
func (t *Trail) DeliveryRates(ctx context.Context, start, end time.Time, group Grouping) ([]RateBucket, error) {
	events, err := t.store.Query(ctx, QueryFilter{
		Types:     []EventType{EventTypeDelivery},
		StartTime: &start,
		EndTime:   &end,
	})
	if err != nil {
		return nil, err
	}

	type bucketKey struct {
		period  time.Time
		channel string
	}
	buckets := make(map[bucketKey]*RateBucket)

	for i := range events {
		ev := &events[i]
		key := bucketKey{period: group.truncate(ev.Timestamp), channel: ev.Channel}

		b, ok := buckets[key]
		if !ok {
			b = &RateBucket{Period: key.period, Channel: key.channel}
			buckets[key] = b
		}

		b.Total++
		if ev.Outcome == OutcomeSuccess {
			b.Success++
		} else {
			b.Failure++
		}
	}

	return finalizeBuckets(buckets), nil
}

// ErrorRates aggregates system error events into rate buckets grouped
// by period and event type.
func (t *Trail) ErrorRates(ctx context.Context, start, end time.Time, group Grouping) ([]RateBucket, error) {
	events, err := t.store.Query(ctx, QueryFilter{
		StartTime: &start,
		EndTime:   &end,
	})
	if err != nil {
		return nil, err
	}

	type bucketKey struct {
		period    time.Time
		eventType string
	}
	buckets := make(map[bucketKey]*RateBucket)

	for i := range events {
		ev := &events[i]
		key := bucketKey{period: group.truncate(ev.Timestamp), eventType: string(ev.Type)}

		b, ok := buckets[key]
		if !ok {
			b = &RateBucket{Period: key.period, Type: key.eventType}
			buckets[key] = b
		}

		b.Total++
		switch ev.Outcome {
		case OutcomeFailure, OutcomeBlocked, OutcomePartialFailure:
			b.Failure++
		default:
			b.Success++
		}
	}

	return finalizeBuckets(buckets), nil
}

// finalizeBuckets computes rates and flattens the map, oldest first.
func finalizeBuckets[K comparable](buckets map[K]*RateBucket) []RateBucket {
	out := make([]RateBucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Total > 0 {
			b.Rate = float64(b.Success) / float64(b.Total)
		}
		out = append(out, *b)
	}

	// insertion sort by period; bucket counts are small
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Period.Before(out[j-1].Period); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}
