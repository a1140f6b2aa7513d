// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package fraud

import (
	"strings"

	"github.com/kestrelsec/riskgate/internal/cache"
	"github.com/kestrelsec/riskgate/internal/models"
)

// Scam vocabulary matched against message text. All patterns share one
// automaton so a scan is a single pass over the message.
var scamKeywords = []string{
	"gift card",
	"wire transfer",
	"western union",
	"bitcoin",
	"crypto wallet",
	"verification code",
	"one time password",
	"social security",
	"act now",
	"urgent refund",
	"account suspended",
	"prize",
	"lottery",
	"overpayment",
}

// Velocity thresholds for the transaction heuristics.
const (
	velocityElevated = 5
	velocityExtreme  = 10
	storeSpreadLimit = 3
)

func newKeywordMatcher() *cache.PatternMatcher {
	return cache.NewPatternMatcherFromSlice(scamKeywords, "scam_keyword")
}

// contextAnalysis scores how plausible the submission is for its
// session context. Starts from full legitimacy and subtracts a penalty
// per suspicious signal; the signal names are returned for the
// breakdown.
func (e *Engine) contextAnalysis(req *models.FraudAnalysisRequest) (*models.ContextAnalysis, []models.FraudIndicator) {
	score := 100.0
	var signals []string

	hits := e.keywords.Match(req.MessageText)
	if len(hits) > 0 {
		score -= 15 * float64(len(hits))
		signals = append(signals, "scam_vocabulary")
	}

	if len(strings.TrimSpace(req.MessageText)) < 10 {
		score -= 10
		signals = append(signals, "message_too_short")
	}

	// CallDuration zero means not reported, not a zero-length call.
	if req.CallDuration > 0 && req.CallDuration < 5 {
		score -= 20
		signals = append(signals, "call_too_short")
	}

	if len(req.SessionMetadata) == 0 {
		score -= 10
		signals = append(signals, "no_session_metadata")
	}

	if len(req.PreviousInteractions) == 0 {
		score -= 5
		signals = append(signals, "first_interaction")
	}

	if req.CallerLocation != nil && req.CallerLocation.AccuracyM > 5000 {
		score -= 10
		signals = append(signals, "low_location_accuracy")
	}

	analysis := &models.ContextAnalysis{
		LegitimacyScore: models.ClampScore(score),
		Signals:         signals,
	}

	var indicators []models.FraudIndicator
	switch {
	case analysis.LegitimacyScore < 30:
		indicators = append(indicators, models.FraudIndicator{
			Type:        "context_legitimacy",
			Severity:    models.SeverityHigh,
			Description: "submission context is highly implausible",
			Confidence:  models.ClampScore(100 - analysis.LegitimacyScore),
		})
	case analysis.LegitimacyScore < 60:
		indicators = append(indicators, models.FraudIndicator{
			Type:        "context_legitimacy",
			Severity:    models.SeverityMedium,
			Description: "submission context is questionable",
			Confidence:  models.ClampScore(100 - analysis.LegitimacyScore),
		})
	}

	return analysis, indicators
}

// transactionAnalysis runs the keyword and velocity heuristics. Cheap
// enough for the quick-scan and batch paths: no store reads, only the
// in-memory counters.
func (e *Engine) transactionAnalysis(req *models.FraudAnalysisRequest) (*models.TransactionAnalysis, []models.FraudIndicator) {
	var keywordHits []string
	for _, m := range e.keywords.Match(req.MessageText) {
		keywordHits = append(keywordHits, m.Pattern)
	}

	velocityCount := int(e.velocity.Count(req.PhoneHash))
	distinctStores := e.stores.CountUnique(req.PhoneHash)

	score := 20 * float64(len(keywordHits))
	switch {
	case velocityCount >= velocityExtreme:
		score += 40
	case velocityCount >= velocityElevated:
		score += 20
	}
	if distinctStores >= storeSpreadLimit {
		score += 20
	}

	analysis := &models.TransactionAnalysis{
		KeywordHits:   keywordHits,
		VelocityCount: velocityCount,
		Score:         models.ClampScore(score),
	}

	var indicators []models.FraudIndicator

	if len(keywordHits) > 0 {
		severity := models.SeverityMedium
		if len(keywordHits) >= 3 {
			severity = models.SeverityHigh
		}
		confidence := 50 + 15*float64(len(keywordHits))
		indicators = append(indicators, models.FraudIndicator{
			Type:        "suspicious_keywords",
			Severity:    severity,
			Description: "message contains known scam vocabulary",
			Confidence:  models.ClampScore(confidence),
		})
	}

	if velocityCount >= velocityExtreme {
		indicators = append(indicators, models.FraudIndicator{
			Type:        "call_velocity",
			Severity:    models.SeverityHigh,
			Description: "phone hash exceeds the extreme call-frequency threshold",
			Confidence:  85,
		})
	} else if velocityCount >= velocityElevated {
		indicators = append(indicators, models.FraudIndicator{
			Type:        "call_velocity",
			Severity:    models.SeverityMedium,
			Description: "phone hash shows elevated call frequency",
			Confidence:  65,
		})
	}

	if distinctStores >= storeSpreadLimit {
		indicators = append(indicators, models.FraudIndicator{
			Type:        "store_spread",
			Severity:    models.SeverityMedium,
			Description: "phone hash active across many stores in the window",
			Confidence:  60,
		})
	}

	return analysis, indicators
}
