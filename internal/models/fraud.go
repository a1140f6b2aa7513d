// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package models defines the request and response types of the fraud
// analysis pipeline.
package models

import "time"

// DetectionMode selects the analysis strategy, trading cost for
// thoroughness.
type DetectionMode string

const (
	ModeComprehensive  DetectionMode = "comprehensive"
	ModeQuickScan      DetectionMode = "quick_scan"
	ModeContextOnly    DetectionMode = "context_only"
	ModeBehavioralOnly DetectionMode = "behavioral_only"
)

// Valid reports whether the mode is one of the four known strategies.
func (m DetectionMode) Valid() bool {
	switch m {
	case ModeComprehensive, ModeQuickScan, ModeContextOnly, ModeBehavioralOnly:
		return true
	}
	return false
}

// RiskLevel grades a verdict.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Severity grades a single indicator.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weight returns the severity weight used when combining indicator
// confidences (low=1, medium=2, high=3).
func (s Severity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// RecommendedAction is the verdict's disposition.
type RecommendedAction string

const (
	ActionAllow RecommendedAction = "allow"
	ActionBlock RecommendedAction = "block"
)

// CallerLocation is an optional geolocation attached to a request.
type CallerLocation struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	// AccuracyM is the reported accuracy radius in meters.
	AccuracyM float64 `json:"accuracy_m" validate:"gte=0,lte=10000"`
}

// FraudAnalysisRequest is one analysis submission. phone_hash is the
// unique key into the risk signal store.
type FraudAnalysisRequest struct {
	PhoneHash            string            `json:"phone_hash" validate:"required,alphanum,min=8,max=64"`
	MessageText          string            `json:"message_text" validate:"required,min=1,max=2000"`
	StoreID              string            `json:"store_id" validate:"required,uuid4"`
	CallDuration         int               `json:"call_duration,omitempty" validate:"omitempty,gte=0,lte=3600"`
	CallerLocation       *CallerLocation   `json:"caller_location,omitempty" validate:"omitempty"`
	SessionMetadata      map[string]string `json:"session_metadata,omitempty"`
	PreviousInteractions []string          `json:"previous_interactions,omitempty" validate:"omitempty,max=100"`
	DetectionMode        DetectionMode     `json:"detection_mode,omitempty" validate:"omitempty,oneof=comprehensive quick_scan context_only behavioral_only"`
	EnableLearning       bool              `json:"enable_learning,omitempty"`
	RequestID            string            `json:"request_id,omitempty"`
	Timestamp            time.Time         `json:"timestamp,omitempty"`
}

// Mode returns the effective detection mode; an empty mode defaults to
// comprehensive.
func (r *FraudAnalysisRequest) Mode() DetectionMode {
	if r.DetectionMode == "" {
		return ModeComprehensive
	}
	return r.DetectionMode
}

// FraudIndicator is one risk signal contributing to a verdict.
type FraudIndicator struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
}

// AnalysisBreakdown exposes per-mode sub-results. Sections not run for
// the selected mode stay nil.
type AnalysisBreakdown struct {
	Context     *ContextAnalysis     `json:"context,omitempty"`
	Behavioral  *BehavioralAnalysis  `json:"behavioral,omitempty"`
	Transaction *TransactionAnalysis `json:"transaction,omitempty"`
}

// ContextAnalysis scores how plausible the submission is for its store
// and session context.
type ContextAnalysis struct {
	LegitimacyScore float64  `json:"legitimacy_score"`
	Signals         []string `json:"signals,omitempty"`
}

// BehavioralAnalysis summarizes the pattern analyzer's contribution.
type BehavioralAnalysis struct {
	OverallRiskScore float64   `json:"overall_risk_score"`
	PatternCount     int       `json:"pattern_count"`
	RiskLevel        RiskLevel `json:"risk_level"`
}

// TransactionAnalysis summarizes keyword and transaction heuristics.
type TransactionAnalysis struct {
	KeywordHits   []string `json:"keyword_hits,omitempty"`
	VelocityCount int      `json:"velocity_count"`
	Score         float64  `json:"score"`
}

// FraudAnalysisResponse is the verdict for one request. A fraud verdict
// is data, never an HTTP error.
type FraudAnalysisResponse struct {
	RequestID         string             `json:"request_id"`
	IsFraud           bool               `json:"is_fraud"`
	ConfidenceScore   float64            `json:"confidence_score"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	FraudIndicators   []FraudIndicator   `json:"fraud_indicators"`
	AnalysisBreakdown *AnalysisBreakdown `json:"analysis_breakdown,omitempty"`
	RecommendedAction RecommendedAction  `json:"recommended_action"`
	ProcessingTimeMs  int64              `json:"processing_time_ms"`
}

// ClampScore bounds a risk or confidence score to [0,100].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
