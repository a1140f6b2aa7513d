// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package intrusion scans individual requests for known attack
// signatures and lightweight anomalies. Scans are synchronous,
// side-effect-free and bounded-time so they can run inline ahead of
// expensive analysis work.
package intrusion

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelsec/riskgate/internal/cache"
	"github.com/kestrelsec/riskgate/internal/metrics"
	"github.com/kestrelsec/riskgate/internal/models"
)

// IntrusionType classifies a detected threat.
type IntrusionType string

const (
	TypePathTraversal     IntrusionType = "path_traversal"
	TypeScriptInjection   IntrusionType = "script_injection"
	TypeSQLInjection      IntrusionType = "sql_injection"
	TypeProtocolHandler   IntrusionType = "protocol_handler"
	TypeSuspiciousKeyword IntrusionType = "suspicious_keyword"
	TypeHeaderAnomaly     IntrusionType = "header_anomaly"
	TypePayloadAnomaly    IntrusionType = "payload_anomaly"
)

// RequestContext carries the request fields the scanner inspects.
// All fields are optional; missing or malformed values are treated as
// non-matching, never as errors.
type RequestContext struct {
	Method        string
	URL           string
	Headers       map[string]string
	Body          string
	Query         string
	IP            string
	UserAgent     string
	CorrelationID string
}

// Result is the outcome of one request scan.
type Result struct {
	ThreatDetected    bool                     `json:"threat_detected"`
	ThreatLevel       models.Severity          `json:"threat_level,omitempty"`
	IntrusionType     IntrusionType            `json:"intrusion_type,omitempty"`
	Confidence        float64                  `json:"confidence"`
	RecommendedAction models.RecommendedAction `json:"recommended_action"`
	EventID           string                   `json:"event_id,omitempty"`
}

// Config tunes the scanner.
type Config struct {
	// BlockThreshold is the minimum threat severity that yields a
	// block recommendation.
	BlockThreshold models.Severity

	// MaxPayloadBytes flags bodies larger than this as anomalous.
	// Zero disables the check.
	MaxPayloadBytes int

	// ExtraKeywords extends the built-in suspicious keyword set.
	ExtraKeywords []string
}

// signatureClass is one ordered matcher: the first class with a hit
// decides the result.
type signatureClass struct {
	intrusionType IntrusionType
	level         models.Severity
	confidence    float64
	matcher       *cache.PatternMatcher
}

// Scanner matches requests against attack signature classes. Stateless
// per call; the automatons are built once at construction and only
// read afterwards.
type Scanner struct {
	classes         []signatureClass
	blockWeight     float64
	maxPayloadBytes int
}

// NewScanner builds the signature automatons from the built-in
// pattern sets plus any configured extra keywords.
func NewScanner(cfg Config) *Scanner {
	threshold := cfg.BlockThreshold
	if threshold == "" {
		threshold = models.SeverityHigh
	}

	keywords := append([]string{
		"etc/passwd",
		"etc/shadow",
		"cmd.exe",
		"/bin/sh",
		"/bin/bash",
		"xp_cmdshell",
	}, cfg.ExtraKeywords...)

	return &Scanner{
		blockWeight:     threshold.Weight(),
		maxPayloadBytes: cfg.MaxPayloadBytes,
		classes: []signatureClass{
			{
				intrusionType: TypePathTraversal,
				level:         models.SeverityHigh,
				confidence:    90,
				matcher: cache.NewPatternMatcherFromSlice([]string{
					"../", "..\\", "%2e%2e%2f", "%2e%2e/", "..%2f", "%252e%252e",
				}, TypePathTraversal),
			},
			{
				intrusionType: TypeScriptInjection,
				level:         models.SeverityHigh,
				confidence:    85,
				matcher: cache.NewPatternMatcherFromSlice([]string{
					"<script", "javascript:", "onerror=", "onload=",
					"eval(", "document.cookie", "<iframe",
				}, TypeScriptInjection),
			},
			{
				intrusionType: TypeSQLInjection,
				level:         models.SeverityHigh,
				confidence:    85,
				matcher: cache.NewPatternMatcherFromSlice([]string{
					"union select", "or 1=1", "' or '", "; drop table",
					"sleep(", "benchmark(", "information_schema",
				}, TypeSQLInjection),
			},
			{
				intrusionType: TypeProtocolHandler,
				level:         models.SeverityMedium,
				confidence:    75,
				matcher: cache.NewPatternMatcherFromSlice([]string{
					"file://", "gopher://", "dict://", "php://", "data:text/html",
				}, TypeProtocolHandler),
			},
			{
				intrusionType: TypeSuspiciousKeyword,
				level:         models.SeverityMedium,
				confidence:    70,
				matcher:       cache.NewPatternMatcherFromSlice(keywords, TypeSuspiciousKeyword),
			},
		},
	}
}

// AnalyzeRequest scans one request. The first matching signature class
// decides intrusion type, threat level and confidence; anomaly checks
// run only when no signature matched. A clean request yields
// ThreatDetected=false with an allow recommendation.
func (s *Scanner) AnalyzeRequest(req RequestContext) Result {
	haystack := s.buildHaystack(req)

	for _, class := range s.classes {
		if class.matcher.Contains(haystack) {
			return s.detected(class.intrusionType, class.level, class.confidence)
		}
	}

	if anomalyType, level, confidence, found := s.checkAnomalies(req); found {
		return s.detected(anomalyType, level, confidence)
	}

	metrics.IntrusionScansTotal.WithLabelValues("clean").Inc()
	return Result{
		ThreatDetected:    false,
		RecommendedAction: models.ActionAllow,
	}
}

// detected builds a positive result and records metrics.
func (s *Scanner) detected(intrusionType IntrusionType, level models.Severity, confidence float64) Result {
	metrics.IntrusionScansTotal.WithLabelValues("detected").Inc()
	metrics.IntrusionSignatureHits.WithLabelValues(string(intrusionType)).Inc()

	action := models.ActionAllow
	if level.Weight() >= s.blockWeight {
		action = models.ActionBlock
	}

	return Result{
		ThreatDetected:    true,
		ThreatLevel:       level,
		IntrusionType:     intrusionType,
		Confidence:        confidence,
		RecommendedAction: action,
		EventID:           uuid.NewString(),
	}
}

// buildHaystack concatenates the scannable request fields. Header
// values are included; header names are checked separately by the
// anomaly pass.
func (s *Scanner) buildHaystack(req RequestContext) string {
	var sb strings.Builder
	sb.WriteString(req.URL)
	sb.WriteByte('\n')
	sb.WriteString(req.Query)
	sb.WriteByte('\n')
	sb.WriteString(req.Body)
	sb.WriteByte('\n')
	sb.WriteString(req.UserAgent)
	for _, v := range req.Headers {
		sb.WriteByte('\n')
		sb.WriteString(v)
	}
	return sb.String()
}

// maxHeaderValueLen bounds a single header value before it is
// considered anomalous.
const maxHeaderValueLen = 8192

// checkAnomalies runs the lightweight shape checks: oversized payloads
// and malformed headers.
func (s *Scanner) checkAnomalies(req RequestContext) (IntrusionType, models.Severity, float64, bool) {
	if s.maxPayloadBytes > 0 && len(req.Body) > s.maxPayloadBytes {
		return TypePayloadAnomaly, models.SeverityMedium, 60, true
	}

	for name, value := range req.Headers {
		if hasControlChars(name) || hasControlChars(value) || len(value) > maxHeaderValueLen {
			return TypeHeaderAnomaly, models.SeverityMedium, 65, true
		}
	}

	return "", "", 0, false
}

// hasControlChars reports whether the string contains CR, LF or other
// ASCII control characters, the usual vehicle for header smuggling.
func hasControlChars(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7F {
			return true
		}
	}
	return false
}
