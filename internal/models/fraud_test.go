// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package models

import "testing"

func TestDetectionModeValid(t *testing.T) {
	valid := []DetectionMode{ModeComprehensive, ModeQuickScan, ModeContextOnly, ModeBehavioralOnly}
	for _, m := range valid {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	for _, m := range []DetectionMode{"", "deep_scan", "COMPREHENSIVE"} {
		if m.Valid() {
			t.Errorf("%q should be invalid", m)
		}
	}
}

func TestRequestModeDefaultsToComprehensive(t *testing.T) {
	req := &FraudAnalysisRequest{}
	if req.Mode() != ModeComprehensive {
		t.Errorf("Mode() = %q, want comprehensive", req.Mode())
	}

	req.DetectionMode = ModeQuickScan
	if req.Mode() != ModeQuickScan {
		t.Errorf("Mode() = %q, want quick_scan", req.Mode())
	}
}

func TestSeverityWeight(t *testing.T) {
	cases := []struct {
		severity Severity
		want     float64
	}{
		{SeverityLow, 1},
		{SeverityMedium, 2},
		{SeverityHigh, 3},
		{Severity("unknown"), 1},
	}
	for _, tc := range cases {
		if got := tc.severity.Weight(); got != tc.want {
			t.Errorf("Weight(%q) = %g, want %g", tc.severity, got, tc.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-5, 0},
		{0, 0},
		{55.5, 55.5},
		{100, 100},
		{140, 100},
	}
	for _, tc := range cases {
		if got := ClampScore(tc.in); got != tc.want {
			t.Errorf("ClampScore(%g) = %g, want %g", tc.in, got, tc.want)
		}
	}
}
