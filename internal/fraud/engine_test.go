// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/behavior"
	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/models"
	"github.com/kestrelsec/riskgate/internal/resilience"
	"github.com/kestrelsec/riskgate/internal/signalstore"
)

const (
	testPhoneHash = "abc12345"
	testStoreID   = "9f8b4a2e-1c3d-4e5f-8a6b-7c8d9e0f1a2b"
)

// stubAnalyzer returns a fixed pattern set or error.
type stubAnalyzer struct {
	patterns []behavior.Pattern
	err      error
	calls    int
}

func (s *stubAnalyzer) AnalyzePatterns(context.Context, string, string, []signalstore.PatternType, bool) ([]behavior.Pattern, error) {
	s.calls++
	return s.patterns, s.err
}

type engineFixture struct {
	engine     *Engine
	analyzer   *stubAnalyzer
	auditStore *audit.MemoryStore
	signals    *signalstore.MemoryStore
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	auditStore := audit.NewMemoryStore(1000)
	trail := audit.NewTrail(auditStore, &audit.Config{
		Enabled:         true,
		BufferSize:      100,
		Retention:       time.Hour,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(func() { trail.Close() })

	signals := signalstore.NewMemoryStore(24 * time.Hour)
	analyzer := &stubAnalyzer{}

	engine := NewEngine(
		DefaultConfig(),
		analyzer,
		signals,
		resilience.NewGuard(resilience.DefaultBreakerConfig(), trail),
		resilience.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1},
		trail,
	)
	t.Cleanup(engine.Close)

	return &engineFixture{engine: engine, analyzer: analyzer, auditStore: auditStore, signals: signals}
}

func cleanRequest(mode models.DetectionMode) *models.FraudAnalysisRequest {
	return &models.FraudAnalysisRequest{
		PhoneHash:            testPhoneHash,
		MessageText:          "the delivery arrived on time and the produce was fresh",
		StoreID:              testStoreID,
		CallDuration:         45,
		SessionMetadata:      map[string]string{"channel": "ivr"},
		PreviousInteractions: []string{"req-0"},
		DetectionMode:        mode,
	}
}

func TestAnalyzeBehavioralOnlyBoundary(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		wantFraud bool
		wantRisk  models.RiskLevel
	}{
		{"exactly 70 is not fraud", 70, false, models.RiskMedium},
		{"just above 70 is fraud", 70.0001, true, models.RiskHigh},
		{"41 is medium", 41, false, models.RiskMedium},
		{"40 is low", 40, false, models.RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.analyzer.patterns = []behavior.Pattern{{
				PhoneHash:   testPhoneHash,
				PatternType: signalstore.PatternCallFrequency,
				RiskScore:   tt.score,
			}}

			resp, err := f.engine.Analyze(context.Background(), cleanRequest(models.ModeBehavioralOnly))
			if err != nil {
				t.Fatal(err)
			}

			if resp.IsFraud != tt.wantFraud {
				t.Errorf("is_fraud = %t, want %t", resp.IsFraud, tt.wantFraud)
			}
			if resp.RiskLevel != tt.wantRisk {
				t.Errorf("risk_level = %s, want %s", resp.RiskLevel, tt.wantRisk)
			}
			wantAction := models.ActionAllow
			if tt.wantFraud {
				wantAction = models.ActionBlock
			}
			if resp.RecommendedAction != wantAction {
				t.Errorf("recommended_action = %s, want %s", resp.RecommendedAction, wantAction)
			}
			if resp.AnalysisBreakdown == nil || resp.AnalysisBreakdown.Behavioral == nil {
				t.Fatal("behavioral breakdown missing")
			}
			if resp.AnalysisBreakdown.Context != nil || resp.AnalysisBreakdown.Transaction != nil {
				t.Error("behavioral_only must not populate other sections")
			}
		})
	}
}

func TestAnalyzeContextOnlyBoundaries(t *testing.T) {
	// Penalty arithmetic: scam keyword -15 each, short call -20,
	// missing session metadata -10, no prior interactions -5.
	tests := []struct {
		name       string
		mutate     func(r *models.FraudAnalysisRequest)
		wantScore  float64
		wantFraud  bool
		wantRisk   models.RiskLevel
		wantAction models.RecommendedAction
	}{
		{
			name:       "fully plausible context",
			mutate:     func(r *models.FraudAnalysisRequest) {},
			wantScore:  100,
			wantFraud:  false,
			wantRisk:   models.RiskLow,
			wantAction: models.ActionAllow,
		},
		{
			name: "legitimacy exactly 60 stays low",
			mutate: func(r *models.FraudAnalysisRequest) {
				// two keyword hits + missing metadata = -40
				r.MessageText = "please send a gift card or bitcoin to settle this"
				r.SessionMetadata = nil
			},
			wantScore:  60,
			wantFraud:  false,
			wantRisk:   models.RiskLow,
			wantAction: models.ActionAllow,
		},
		{
			name: "legitimacy below 60 is medium",
			mutate: func(r *models.FraudAnalysisRequest) {
				// two keyword hits + short call = -50
				r.MessageText = "please send a gift card or bitcoin to settle this"
				r.CallDuration = 3
			},
			wantScore:  50,
			wantFraud:  false,
			wantRisk:   models.RiskMedium,
			wantAction: models.ActionAllow,
		},
		{
			name: "legitimacy exactly 30 is not fraud",
			mutate: func(r *models.FraudAnalysisRequest) {
				// three keyword hits + short call + no history = -70
				r.MessageText = "send a gift card and bitcoin to claim your prize"
				r.CallDuration = 3
				r.PreviousInteractions = nil
			},
			wantScore:  30,
			wantFraud:  false,
			wantRisk:   models.RiskMedium,
			wantAction: models.ActionAllow,
		},
		{
			name: "legitimacy below 30 is fraud and blocked",
			mutate: func(r *models.FraudAnalysisRequest) {
				// three keyword hits + short call + no history + no metadata = -80
				r.MessageText = "send a gift card and bitcoin to claim your prize"
				r.CallDuration = 3
				r.PreviousInteractions = nil
				r.SessionMetadata = nil
			},
			wantScore:  20,
			wantFraud:  true,
			wantRisk:   models.RiskHigh,
			wantAction: models.ActionBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			req := cleanRequest(models.ModeContextOnly)
			tt.mutate(req)

			resp, err := f.engine.Analyze(context.Background(), req)
			if err != nil {
				t.Fatal(err)
			}

			if resp.AnalysisBreakdown.Context.LegitimacyScore != tt.wantScore {
				t.Errorf("legitimacy = %g, want %g", resp.AnalysisBreakdown.Context.LegitimacyScore, tt.wantScore)
			}
			if resp.IsFraud != tt.wantFraud {
				t.Errorf("is_fraud = %t, want %t", resp.IsFraud, tt.wantFraud)
			}
			if resp.RiskLevel != tt.wantRisk {
				t.Errorf("risk_level = %s, want %s", resp.RiskLevel, tt.wantRisk)
			}
			if resp.RecommendedAction != tt.wantAction {
				t.Errorf("recommended_action = %s, want %s", resp.RecommendedAction, tt.wantAction)
			}
		})
	}
}

func TestAnalyzeQuickScanVelocity(t *testing.T) {
	f := newEngineFixture(t)

	// Drive the hash over the extreme velocity threshold.
	for i := 0; i < 10; i++ {
		f.engine.velocity.Increment(testPhoneHash)
	}

	req := cleanRequest(models.ModeQuickScan)
	req.MessageText = "I want a wire transfer and a gift card refund"

	resp, err := f.engine.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	// 2 keyword hits (40) + extreme velocity (40) = 80 > threshold 65.
	if !resp.IsFraud {
		t.Errorf("expected fraud verdict, score=%g", resp.ConfidenceScore)
	}
	if resp.AnalysisBreakdown.Transaction == nil {
		t.Fatal("transaction breakdown missing")
	}
	if resp.AnalysisBreakdown.Transaction.VelocityCount < 10 {
		t.Errorf("velocity count = %d, want >= 10", resp.AnalysisBreakdown.Transaction.VelocityCount)
	}
	if f.analyzer.calls != 0 {
		t.Error("quick scan must not touch the pattern analyzer")
	}
}

func TestAnalyzeQuickScanCleanMessage(t *testing.T) {
	f := newEngineFixture(t)

	resp, err := f.engine.Analyze(context.Background(), cleanRequest(models.ModeQuickScan))
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsFraud {
		t.Errorf("clean quick scan flagged fraud: %+v", resp)
	}
	if resp.FraudIndicators == nil {
		t.Error("fraud_indicators must be an empty slice, not nil")
	}
}

func TestAnalyzeComprehensiveMergesIndicators(t *testing.T) {
	f := newEngineFixture(t)
	f.analyzer.patterns = []behavior.Pattern{{
		PhoneHash:   testPhoneHash,
		PatternType: signalstore.PatternCallFrequency,
		RiskScore:   80,
	}}

	req := cleanRequest(models.ModeComprehensive)
	req.MessageText = "urgent refund needed, send a gift card and bitcoin now"

	resp, err := f.engine.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if resp.AnalysisBreakdown.Context == nil || resp.AnalysisBreakdown.Behavioral == nil || resp.AnalysisBreakdown.Transaction == nil {
		t.Fatal("comprehensive mode must populate all three sections")
	}

	seen := make(map[string]int)
	for _, ind := range resp.FraudIndicators {
		seen[ind.Type]++
	}
	for indType, count := range seen {
		if count > 1 {
			t.Errorf("indicator type %q appears %d times after merge", indType, count)
		}
	}
	if !resp.IsFraud {
		t.Errorf("expected fraud verdict, confidence=%g", resp.ConfidenceScore)
	}
}

func TestAnalyzeComprehensiveDegradesWithoutBehavioral(t *testing.T) {
	f := newEngineFixture(t)
	f.analyzer.err = faults.New(faults.KindUpstreamUnavailable, "store down")

	resp, err := f.engine.Analyze(context.Background(), cleanRequest(models.ModeComprehensive))
	if err != nil {
		t.Fatalf("comprehensive must degrade, not fail: %v", err)
	}
	if resp.AnalysisBreakdown.Behavioral != nil {
		t.Error("behavioral section must be nil when the analyzer is unavailable")
	}
	if resp.AnalysisBreakdown.Context == nil || resp.AnalysisBreakdown.Transaction == nil {
		t.Error("remaining sections must still run")
	}
}

func TestAnalyzeBehavioralOnlyUpstreamFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.analyzer.err = faults.New(faults.KindUpstreamUnavailable, "store down")

	_, err := f.engine.Analyze(context.Background(), cleanRequest(models.ModeBehavioralOnly))
	if err == nil {
		t.Fatal("behavioral_only cannot produce a verdict without the analyzer")
	}

	// One initial attempt plus one retry at MaxRetries=1.
	if f.analyzer.calls != 2 {
		t.Errorf("expected retry once, analyzer called %d times", f.analyzer.calls)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	f := newEngineFixture(t)

	req := cleanRequest(models.ModeComprehensive)
	req.PhoneHash = "x!"

	_, err := f.engine.Analyze(context.Background(), req)
	if faults.KindOf(err) != faults.KindValidation {
		t.Errorf("expected validation fault, got %v", err)
	}
}

func TestAnalyzeRequestID(t *testing.T) {
	f := newEngineFixture(t)

	req := cleanRequest(models.ModeQuickScan)
	req.RequestID = "req-supplied"
	resp, err := f.engine.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "req-supplied" {
		t.Errorf("supplied request id not preserved: %s", resp.RequestID)
	}

	resp2, err := f.engine.Analyze(context.Background(), cleanRequest(models.ModeQuickScan))
	if err != nil {
		t.Fatal(err)
	}
	if resp2.RequestID == "" {
		t.Error("missing request id must be generated")
	}
}

func TestAnalyzeAuditsExactlyOnce(t *testing.T) {
	f := newEngineFixture(t)

	if _, err := f.engine.Analyze(context.Background(), cleanRequest(models.ModeQuickScan)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.auditStore.Len() >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	events, err := f.auditStore.Query(context.Background(), audit.QueryFilter{
		Types: []audit.EventType{audit.EventTypeFraudDecision},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("expected exactly one decision event, got %d", len(events))
	}
}

func TestAnalyzeLearningWriteback(t *testing.T) {
	f := newEngineFixture(t)

	// Force a fraud verdict through the context path.
	req := cleanRequest(models.ModeContextOnly)
	req.MessageText = "send a gift card and bitcoin to claim your prize"
	req.CallDuration = 3
	req.PreviousInteractions = nil
	req.SessionMetadata = nil
	req.EnableLearning = true

	resp, err := f.engine.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsFraud {
		t.Fatal("fixture should produce a fraud verdict")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, qerr := f.signals.Query(context.Background(),
			testPhoneHash, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
		if qerr != nil {
			t.Fatal(qerr)
		}
		if len(events) > 0 {
			if events[0].Weight <= 0 || events[0].Weight > 1 {
				t.Errorf("write-back weight out of range: %g", events[0].Weight)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("learning write-back never reached the signal store")
}

func TestMergeIndicators(t *testing.T) {
	merged := mergeIndicators([]models.FraudIndicator{
		{Type: "call_velocity", Severity: models.SeverityMedium, Confidence: 65, Description: "elevated"},
		{Type: "call_velocity", Severity: models.SeverityHigh, Confidence: 50, Description: "extreme"},
		{Type: "suspicious_keywords", Severity: models.SeverityMedium, Confidence: 80},
	})

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged indicators, got %d", len(merged))
	}

	velocity := merged[0]
	if velocity.Type != "call_velocity" {
		t.Fatalf("merge must preserve first-seen order, got %s", velocity.Type)
	}
	if velocity.Severity != models.SeverityHigh {
		t.Errorf("merge must keep max severity, got %s", velocity.Severity)
	}
	if velocity.Confidence != 65 {
		t.Errorf("merge must keep max confidence, got %g", velocity.Confidence)
	}
}

func TestCombinedConfidence(t *testing.T) {
	tests := []struct {
		name       string
		indicators []models.FraudIndicator
		want       float64
	}{
		{"no indicators", nil, 0},
		{
			"single indicator",
			[]models.FraudIndicator{{Severity: models.SeverityHigh, Confidence: 90}},
			90,
		},
		{
			"severity weighted mean",
			[]models.FraudIndicator{
				{Severity: models.SeverityHigh, Confidence: 90}, // weight 3
				{Severity: models.SeverityLow, Confidence: 10},  // weight 1
			},
			70, // (90*3 + 10*1) / 4
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := combinedConfidence(tt.indicators); got != tt.want {
				t.Errorf("combinedConfidence = %g, want %g", got, tt.want)
			}
		})
	}
}
