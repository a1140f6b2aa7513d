// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package behavior computes per-phone-hash risk scores over a time
// window from stored signal events.
package behavior

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kestrelsec/riskgate/internal/cache"
	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/metrics"
	"github.com/kestrelsec/riskgate/internal/models"
	"github.com/kestrelsec/riskgate/internal/signalstore"
	"github.com/kestrelsec/riskgate/internal/validation"
)

// Window tokens accepted by AnalyzePatterns. Unknown or empty tokens
// fall back to the default 24h window.
const (
	Window30m = "30m"
	Window24h = "24h"
	Window7d  = "7d"
	Window30d = "30d"

	DefaultWindow = Window24h
)

// saturationCount is the number of fully-weighted recent violations
// that maps to a risk score of 100.
const saturationCount = 10.0

// Pattern is one aggregated behavioral risk signal.
type Pattern struct {
	PhoneHash      string                   `json:"phone_hash"`
	PatternType    signalstore.PatternType  `json:"pattern_type"`
	RiskScore      float64                  `json:"risk_score"`
	ViolationCount int                      `json:"violation_count"`
	FirstDetected  time.Time                `json:"first_detected"`
	LastUpdated    time.Time                `json:"last_updated"`
	// Details is populated only when requested.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Analyzer computes behavioral patterns from the signal store.
// Stateless per call; the pattern cache is the only shared state and
// is internally synchronized.
type Analyzer struct {
	store signalstore.Store
	cache *cache.LRUCache
}

// NewAnalyzer creates an analyzer reading from the given store.
// cacheSize/cacheTTL bound the computed-pattern cache.
func NewAnalyzer(store signalstore.Store, cacheSize int, cacheTTL time.Duration) *Analyzer {
	return &Analyzer{
		store: store,
		cache: cache.NewLRUCache(cacheSize, cacheTTL),
	}
}

// ResolveWindow maps a symbolic window token to a duration.
// Empty or unknown tokens resolve to 24 hours.
func ResolveWindow(token string) time.Duration {
	switch token {
	case Window30m:
		return 30 * time.Minute
	case Window24h:
		return 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// NormalizeWindow returns the canonical token for a window string,
// falling back to the default on unknown input.
func NormalizeWindow(token string) string {
	switch token {
	case Window30m, Window24h, Window7d, Window30d:
		return token
	default:
		return DefaultWindow
	}
}

// AnalyzePatterns aggregates signal events for the phone hash over the
// window and scores each requested pattern type. An empty result set
// is legitimate, not an error; callers decide whether to surface it as
// not-found.
func (a *Analyzer) AnalyzePatterns(ctx context.Context, phoneHash, window string, patternTypes []signalstore.PatternType, includeDetails bool) ([]Pattern, error) {
	if verr := validation.ValidatePhoneHash(phoneHash); verr != nil {
		return nil, faults.Wrap(faults.KindValidation, "invalid phone hash", verr)
	}

	window = NormalizeWindow(window)
	if len(patternTypes) == 0 {
		patternTypes = signalstore.AllPatternTypes()
	}

	cacheKey := patternCacheKey(phoneHash, window, patternTypes, includeDetails)
	if cached, ok := a.cache.Get(cacheKey); ok {
		metrics.PatternCacheHits.Inc()
		return cached.([]Pattern), nil
	}
	metrics.PatternCacheMisses.Inc()

	end := time.Now()
	start := end.Add(-ResolveWindow(window))

	events, err := a.store.Query(ctx, phoneHash, start, end)
	if err != nil {
		metrics.PatternAnalysesTotal.WithLabelValues(window, "error").Inc()
		return nil, faults.Wrap(faults.KindUpstreamUnavailable, "signal store query failed", err)
	}

	patterns := a.aggregate(phoneHash, events, patternTypes, start, end, includeDetails)

	result := "found"
	if len(patterns) == 0 {
		result = "empty"
	}
	metrics.PatternAnalysesTotal.WithLabelValues(window, result).Inc()

	a.cache.Add(cacheKey, patterns)

	logging.Ctx(ctx).Debug().
		Str("phone_hash", phoneHash).
		Str("window", window).
		Int("events", len(events)).
		Int("patterns", len(patterns)).
		Msg("behavioral pattern analysis complete")

	return patterns, nil
}

// aggregate groups events by pattern type and scores each group.
func (a *Analyzer) aggregate(phoneHash string, events []signalstore.SignalEvent, patternTypes []signalstore.PatternType, start, end time.Time, includeDetails bool) []Pattern {
	byType := make(map[signalstore.PatternType][]signalstore.SignalEvent)
	for _, ev := range events {
		byType[ev.PatternType] = append(byType[ev.PatternType], ev)
	}

	windowDur := end.Sub(start)
	var patterns []Pattern

	for _, pt := range patternTypes {
		group := byType[pt]
		if len(group) == 0 {
			continue
		}

		score := scoreViolations(group, end, windowDur)

		p := Pattern{
			PhoneHash:      phoneHash,
			PatternType:    pt,
			RiskScore:      score,
			ViolationCount: len(group),
			FirstDetected:  group[0].OccurredAt,
			LastUpdated:    group[len(group)-1].OccurredAt,
		}
		if includeDetails {
			p.Details = buildDetails(group)
		}

		patterns = append(patterns, p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].RiskScore > patterns[j].RiskScore
	})

	return patterns
}

// scoreViolations computes a 0-100 recency-weighted violation density.
// Each violation contributes its stored weight scaled by how recent it
// is within the window; saturationCount fully-weighted recent
// violations map to 100.
func scoreViolations(events []signalstore.SignalEvent, end time.Time, window time.Duration) float64 {
	var raw float64
	for _, ev := range events {
		weight := ev.Weight
		if weight <= 0 {
			weight = 0.5
		}
		if weight > 1 {
			weight = 1
		}

		age := end.Sub(ev.OccurredAt)
		recency := 1.0 - float64(age)/float64(window)
		if recency < 0 {
			recency = 0
		}
		// Old violations still count at half strength.
		raw += weight * (0.5 + 0.5*recency)
	}

	return models.ClampScore(raw / saturationCount * 100)
}

// buildDetails summarizes the contributing events.
func buildDetails(events []signalstore.SignalEvent) map[string]interface{} {
	stores := make(map[string]int)
	var totalWeight float64
	for _, ev := range events {
		if ev.StoreID != "" {
			stores[ev.StoreID]++
		}
		totalWeight += ev.Weight
	}

	return map[string]interface{}{
		"event_count":     len(events),
		"total_weight":    totalWeight,
		"distinct_stores": len(stores),
		"first_event":     events[0].OccurredAt,
		"last_event":      events[len(events)-1].OccurredAt,
	}
}

// OverallRiskLevel grades the mean per-pattern risk score:
// critical >= 90, high >= 70, medium >= 40, else low.
func OverallRiskLevel(patterns []Pattern) models.RiskLevel {
	if len(patterns) == 0 {
		return models.RiskLow
	}

	var sum float64
	for _, p := range patterns {
		sum += p.RiskScore
	}
	mean := sum / float64(len(patterns))

	switch {
	case mean >= 90:
		return models.RiskCritical
	case mean >= 70:
		return models.RiskHigh
	case mean >= 40:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// OverallRiskScore returns the mean per-pattern risk score.
func OverallRiskScore(patterns []Pattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	var sum float64
	for _, p := range patterns {
		sum += p.RiskScore
	}
	return models.ClampScore(sum / float64(len(patterns)))
}

// patternCacheKey builds the cache key for one analysis request.
func patternCacheKey(phoneHash, window string, types []signalstore.PatternType, details bool) string {
	var sb strings.Builder
	sb.WriteString(phoneHash)
	sb.WriteByte('|')
	sb.WriteString(window)
	sb.WriteByte('|')
	for _, t := range types {
		sb.WriteString(string(t))
		sb.WriteByte(',')
	}
	if details {
		sb.WriteString("|d")
	}
	return sb.String()
}
