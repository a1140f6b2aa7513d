// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package intrusion

import (
	"strings"
	"testing"

	"github.com/kestrelsec/riskgate/internal/models"
)

func newTestScanner() *Scanner {
	return NewScanner(Config{
		BlockThreshold:  models.SeverityHigh,
		MaxPayloadBytes: 1024,
	})
}

func TestAnalyzeRequestSignatures(t *testing.T) {
	scanner := newTestScanner()

	tests := []struct {
		name       string
		req        RequestContext
		wantType   IntrusionType
		wantLevel  models.Severity
		wantAction models.RecommendedAction
	}{
		{
			name:       "path traversal in url",
			req:        RequestContext{URL: "/api/files?name=../../etc/passwd"},
			wantType:   TypePathTraversal,
			wantLevel:  models.SeverityHigh,
			wantAction: models.ActionBlock,
		},
		{
			name:       "encoded traversal",
			req:        RequestContext{URL: "/files/%2e%2e%2fsecret"},
			wantType:   TypePathTraversal,
			wantLevel:  models.SeverityHigh,
			wantAction: models.ActionBlock,
		},
		{
			name:       "script injection in body",
			req:        RequestContext{Body: `{"comment":"<SCRIPT>alert(1)</script>"}`},
			wantType:   TypeScriptInjection,
			wantLevel:  models.SeverityHigh,
			wantAction: models.ActionBlock,
		},
		{
			name:       "sql injection in query",
			req:        RequestContext{Query: "id=1 UNION SELECT password FROM users"},
			wantType:   TypeSQLInjection,
			wantLevel:  models.SeverityHigh,
			wantAction: models.ActionBlock,
		},
		{
			name:       "protocol handler below block threshold",
			req:        RequestContext{Body: `{"url":"file:///etc/hosts"}`},
			wantType:   TypeProtocolHandler,
			wantLevel:  models.SeverityMedium,
			wantAction: models.ActionAllow,
		},
		{
			name:       "signature in header value",
			req:        RequestContext{Headers: map[string]string{"Referer": "javascript:void(0)"}},
			wantType:   TypeScriptInjection,
			wantLevel:  models.SeverityHigh,
			wantAction: models.ActionBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scanner.AnalyzeRequest(tt.req)

			if !result.ThreatDetected {
				t.Fatal("expected threat to be detected")
			}
			if result.IntrusionType != tt.wantType {
				t.Errorf("intrusion type = %s, want %s", result.IntrusionType, tt.wantType)
			}
			if result.ThreatLevel != tt.wantLevel {
				t.Errorf("threat level = %s, want %s", result.ThreatLevel, tt.wantLevel)
			}
			if result.RecommendedAction != tt.wantAction {
				t.Errorf("action = %s, want %s", result.RecommendedAction, tt.wantAction)
			}
			if result.EventID == "" {
				t.Error("detected threat must carry an event id")
			}
			if result.Confidence <= 0 || result.Confidence > 100 {
				t.Errorf("confidence out of range: %g", result.Confidence)
			}
		})
	}
}

func TestAnalyzeRequestClean(t *testing.T) {
	scanner := newTestScanner()

	result := scanner.AnalyzeRequest(RequestContext{
		Method:    "POST",
		URL:       "/fraud/analyze",
		Body:      `{"phone_hash":"abc12345","message_text":"order arrived late"}`,
		UserAgent: "riskgate-client/1.0",
		Headers:   map[string]string{"Content-Type": "application/json"},
	})

	if result.ThreatDetected {
		t.Errorf("clean request flagged: %+v", result)
	}
	if result.RecommendedAction != models.ActionAllow {
		t.Errorf("clean request must be allowed, got %s", result.RecommendedAction)
	}
	if result.EventID != "" {
		t.Error("clean scan should not allocate an event id")
	}
}

func TestAnalyzeRequestFirstMatchWins(t *testing.T) {
	scanner := newTestScanner()

	// Contains both a traversal and a SQL marker; traversal is matched
	// first in class order.
	result := scanner.AnalyzeRequest(RequestContext{
		Query: "path=../../etc&id=1 union select 1",
	})

	if result.IntrusionType != TypePathTraversal {
		t.Errorf("expected first class to win, got %s", result.IntrusionType)
	}
}

func TestAnalyzeRequestAnomalies(t *testing.T) {
	scanner := newTestScanner()

	t.Run("oversized payload", func(t *testing.T) {
		result := scanner.AnalyzeRequest(RequestContext{
			Body: strings.Repeat("a", 2048),
		})
		if result.IntrusionType != TypePayloadAnomaly {
			t.Errorf("expected payload anomaly, got %+v", result)
		}
		if result.RecommendedAction != models.ActionAllow {
			t.Error("medium anomaly must not block at a high threshold")
		}
	})

	t.Run("header smuggling", func(t *testing.T) {
		result := scanner.AnalyzeRequest(RequestContext{
			Headers: map[string]string{"X-Forwarded-For": "1.2.3.4\r\nHost: evil"},
		})
		if result.IntrusionType != TypeHeaderAnomaly {
			t.Errorf("expected header anomaly, got %+v", result)
		}
	})

	t.Run("signature outranks anomaly", func(t *testing.T) {
		result := scanner.AnalyzeRequest(RequestContext{
			Body: strings.Repeat("x", 2048) + "<script>",
		})
		if result.IntrusionType != TypeScriptInjection {
			t.Errorf("signatures run before anomaly checks, got %s", result.IntrusionType)
		}
	})
}

func TestAnalyzeRequestMalformedInput(t *testing.T) {
	scanner := newTestScanner()

	// Unparsable or empty fields are non-matching, never fatal.
	requests := []RequestContext{
		{},
		{Body: string([]byte{0xff, 0xfe, 0x00})},
		{Headers: map[string]string{"": ""}},
		{URL: "://not-a-url"},
	}

	for _, req := range requests {
		result := scanner.AnalyzeRequest(req)
		_ = result // must simply not panic
	}
}

func TestBlockThresholdMedium(t *testing.T) {
	scanner := NewScanner(Config{BlockThreshold: models.SeverityMedium})

	result := scanner.AnalyzeRequest(RequestContext{Body: "php://filter/read"})
	if result.IntrusionType != TypeProtocolHandler {
		t.Fatalf("expected protocol handler hit, got %+v", result)
	}
	if result.RecommendedAction != models.ActionBlock {
		t.Error("medium threat must block at a medium threshold")
	}
}

func TestExtraKeywords(t *testing.T) {
	scanner := NewScanner(Config{
		BlockThreshold: models.SeverityHigh,
		ExtraKeywords:  []string{"forbidden-token"},
	})

	result := scanner.AnalyzeRequest(RequestContext{Body: "x=FORBIDDEN-TOKEN"})
	if result.IntrusionType != TypeSuspiciousKeyword {
		t.Errorf("expected configured keyword hit, got %+v", result)
	}
}
