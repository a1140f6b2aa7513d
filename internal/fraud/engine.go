// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package fraud implements the decision engine that turns one analysis
// request into a fraud verdict. Four detection modes trade cost for
// thoroughness; every request produces exactly one audit decision
// event regardless of outcome.
package fraud

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/behavior"
	"github.com/kestrelsec/riskgate/internal/cache"
	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/metrics"
	"github.com/kestrelsec/riskgate/internal/models"
	"github.com/kestrelsec/riskgate/internal/resilience"
	"github.com/kestrelsec/riskgate/internal/signalstore"
	"github.com/kestrelsec/riskgate/internal/validation"
)

// breakerName guards all signal-store reads issued by the engine.
const breakerName = "signal-store"

// Config tunes the decision engine.
type Config struct {
	// ComprehensiveThreshold is the combined confidence above which a
	// comprehensive verdict is fraud.
	ComprehensiveThreshold float64

	// QuickScanThreshold is the transaction score above which a quick
	// scan flags fraud.
	QuickScanThreshold float64

	// VelocityWindow and VelocityMaxKeys bound the per-phone-hash
	// call-frequency counters.
	VelocityWindow  time.Duration
	VelocityMaxKeys int

	// LearningQueueSize bounds the best-effort write-back queue.
	LearningQueueSize int
}

// DefaultConfig matches the service defaults.
func DefaultConfig() Config {
	return Config{
		ComprehensiveThreshold: 60,
		QuickScanThreshold:     65,
		VelocityWindow:         10 * time.Minute,
		VelocityMaxKeys:        10000,
		LearningQueueSize:      256,
	}
}

// PatternAnalyzer is the behavioral dependency of the engine,
// satisfied by *behavior.Analyzer.
type PatternAnalyzer interface {
	AnalyzePatterns(ctx context.Context, phoneHash, window string, patternTypes []signalstore.PatternType, includeDetails bool) ([]behavior.Pattern, error)
}

// Engine is the fraud decision engine. Safe for concurrent use: the
// velocity counters and the learning queue are internally
// synchronized, everything else is request-local.
type Engine struct {
	cfg      Config
	analyzer PatternAnalyzer
	store    signalstore.Store
	guard    *resilience.Guard
	retryCfg resilience.RetryConfig
	trail    *audit.Trail

	keywords *cache.PatternMatcher
	velocity *cache.SlidingWindowStore
	stores   *cache.UniqueValueStore

	learnCh chan signalstore.SignalEvent
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewEngine wires the decision engine. The learning write-back worker
// starts immediately; call Close to drain it.
func NewEngine(cfg Config, analyzer PatternAnalyzer, store signalstore.Store, guard *resilience.Guard, retryCfg resilience.RetryConfig, trail *audit.Trail) *Engine {
	if cfg.ComprehensiveThreshold == 0 {
		cfg.ComprehensiveThreshold = DefaultConfig().ComprehensiveThreshold
	}
	if cfg.QuickScanThreshold == 0 {
		cfg.QuickScanThreshold = DefaultConfig().QuickScanThreshold
	}
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = DefaultConfig().VelocityWindow
	}
	if cfg.VelocityMaxKeys <= 0 {
		cfg.VelocityMaxKeys = DefaultConfig().VelocityMaxKeys
	}
	if cfg.LearningQueueSize <= 0 {
		cfg.LearningQueueSize = DefaultConfig().LearningQueueSize
	}

	e := &Engine{
		cfg:      cfg,
		analyzer: analyzer,
		store:    store,
		guard:    guard,
		retryCfg: retryCfg,
		trail:    trail,
		keywords: newKeywordMatcher(),
		velocity: cache.NewSlidingWindowStore(cfg.VelocityWindow, 10, cfg.VelocityMaxKeys),
		stores:   cache.NewUniqueValueStore(cfg.VelocityWindow, 10, cfg.VelocityMaxKeys),
		learnCh:  make(chan signalstore.SignalEvent, cfg.LearningQueueSize),
	}

	e.wg.Add(1)
	go e.learner()

	return e
}

// Analyze produces a fraud verdict for one request. A fraud verdict is
// data, not an error: errors are returned only when no verdict could
// be produced at all.
func (e *Engine) Analyze(ctx context.Context, req *models.FraudAnalysisRequest) (*models.FraudAnalysisResponse, error) {
	start := time.Now()
	mode := req.Mode()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if verr := validation.ValidateStruct(req); verr != nil {
		err := faults.Wrap(faults.KindValidation, "invalid analysis request", verr)
		e.trail.LogDecision(ctx, requestID, req.PhoneHash, string(mode), false, 0, audit.OutcomeFailure)
		metrics.RecordAnalysis(string(mode), false, time.Since(start), err)
		return nil, err
	}

	// Velocity counters feed the transaction heuristics of later
	// requests, so every validated request is recorded.
	e.velocity.Increment(req.PhoneHash)
	e.stores.Add(req.PhoneHash, req.StoreID)
	metrics.VelocityKeys.Set(float64(e.velocity.Len()))

	var (
		resp *models.FraudAnalysisResponse
		err  error
	)

	switch mode {
	case models.ModeComprehensive:
		resp, err = e.analyzeComprehensive(ctx, req)
	case models.ModeQuickScan:
		resp = e.analyzeQuickScan(req)
	case models.ModeContextOnly:
		resp = e.analyzeContextOnly(req)
	case models.ModeBehavioralOnly:
		resp, err = e.analyzeBehavioralOnly(ctx, req)
	default:
		err = faults.Newf(faults.KindValidation, "unknown detection mode %q", mode)
	}

	if err != nil {
		e.trail.LogDecision(ctx, requestID, req.PhoneHash, string(mode), false, 0, audit.OutcomeFailure)
		metrics.RecordAnalysis(string(mode), false, time.Since(start), err)
		return nil, err
	}

	resp.RequestID = requestID
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	if resp.FraudIndicators == nil {
		resp.FraudIndicators = []models.FraudIndicator{}
	}

	outcome := audit.OutcomeSuccess
	if resp.RecommendedAction == models.ActionBlock {
		outcome = audit.OutcomeBlocked
	}
	e.trail.LogDecision(ctx, requestID, req.PhoneHash, string(mode), resp.IsFraud, resp.ConfidenceScore, outcome)
	metrics.RecordAnalysis(string(mode), resp.IsFraud, time.Since(start), nil)

	for _, ind := range resp.FraudIndicators {
		metrics.IndicatorsEmitted.WithLabelValues(ind.Type, string(ind.Severity)).Inc()
	}

	if req.EnableLearning {
		e.enqueueLearning(req, resp)
	}

	return resp, nil
}

// analyzeComprehensive runs all three sub-analyses and merges their
// indicators. A behavioral failure degrades to a two-section verdict
// rather than failing the request.
func (e *Engine) analyzeComprehensive(ctx context.Context, req *models.FraudAnalysisRequest) (*models.FraudAnalysisResponse, error) {
	breakdown := &models.AnalysisBreakdown{}
	var indicators []models.FraudIndicator

	ctxAnalysis, ctxIndicators := e.contextAnalysis(req)
	breakdown.Context = ctxAnalysis
	indicators = append(indicators, ctxIndicators...)

	behavioral, behIndicators, err := e.behavioralAnalysis(ctx, req)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("phone_hash", req.PhoneHash).
			Msg("behavioral analysis unavailable, continuing without it")
	} else {
		breakdown.Behavioral = behavioral
		indicators = append(indicators, behIndicators...)
	}

	txn, txnIndicators := e.transactionAnalysis(req)
	breakdown.Transaction = txn
	indicators = append(indicators, txnIndicators...)

	merged := mergeIndicators(indicators)
	confidence := combinedConfidence(merged)
	isFraud := confidence > e.cfg.ComprehensiveThreshold

	return &models.FraudAnalysisResponse{
		IsFraud:           isFraud,
		ConfidenceScore:   confidence,
		RiskLevel:         riskLevelFromScore(confidence),
		FraudIndicators:   merged,
		AnalysisBreakdown: breakdown,
		RecommendedAction: actionForFraud(isFraud),
	}, nil
}

// analyzeQuickScan is the lightweight heuristic pass used on
// high-volume and batch paths: transaction checks only, no store
// reads.
func (e *Engine) analyzeQuickScan(req *models.FraudAnalysisRequest) *models.FraudAnalysisResponse {
	txn, indicators := e.transactionAnalysis(req)
	isFraud := txn.Score > e.cfg.QuickScanThreshold

	return &models.FraudAnalysisResponse{
		IsFraud:           isFraud,
		ConfidenceScore:   txn.Score,
		RiskLevel:         riskLevelFromScore(txn.Score),
		FraudIndicators:   indicators,
		AnalysisBreakdown: &models.AnalysisBreakdown{Transaction: txn},
		RecommendedAction: actionForFraud(isFraud),
	}
}

// analyzeContextOnly grades the submission context alone. Legitimacy
// below 30 is fraud with a block recommendation; below 60 is medium
// risk.
func (e *Engine) analyzeContextOnly(req *models.FraudAnalysisRequest) *models.FraudAnalysisResponse {
	ctxAnalysis, indicators := e.contextAnalysis(req)

	resp := &models.FraudAnalysisResponse{
		ConfidenceScore:   models.ClampScore(100 - ctxAnalysis.LegitimacyScore),
		FraudIndicators:   indicators,
		AnalysisBreakdown: &models.AnalysisBreakdown{Context: ctxAnalysis},
	}

	switch {
	case ctxAnalysis.LegitimacyScore < 30:
		resp.IsFraud = true
		resp.RiskLevel = models.RiskHigh
		resp.RecommendedAction = models.ActionBlock
	case ctxAnalysis.LegitimacyScore < 60:
		resp.RiskLevel = models.RiskMedium
		resp.RecommendedAction = models.ActionAllow
	default:
		resp.RiskLevel = models.RiskLow
		resp.RecommendedAction = models.ActionAllow
	}

	return resp
}

// analyzeBehavioralOnly delegates to the pattern analyzer over the
// default pattern types. Fraud iff the overall risk score exceeds 70.
func (e *Engine) analyzeBehavioralOnly(ctx context.Context, req *models.FraudAnalysisRequest) (*models.FraudAnalysisResponse, error) {
	behavioral, indicators, err := e.behavioralAnalysis(ctx, req)
	if err != nil {
		return nil, err
	}

	isFraud := behavioral.OverallRiskScore > 70

	return &models.FraudAnalysisResponse{
		IsFraud:           isFraud,
		ConfidenceScore:   behavioral.OverallRiskScore,
		RiskLevel:         behavioral.RiskLevel,
		FraudIndicators:   indicators,
		AnalysisBreakdown: &models.AnalysisBreakdown{Behavioral: behavioral},
		RecommendedAction: actionForFraud(isFraud),
	}, nil
}

// behavioralAnalysis queries the pattern analyzer through the
// signal-store breaker with retry on transient failures. circuit_open
// is not retryable, so an open breaker fails fast.
func (e *Engine) behavioralAnalysis(ctx context.Context, req *models.FraudAnalysisRequest) (*models.BehavioralAnalysis, []models.FraudIndicator, error) {
	var patterns []behavior.Pattern

	err := resilience.Retry(ctx, "behavioral_analysis", e.retryCfg, func(ctx context.Context) error {
		result, xerr := e.guard.Execute(breakerName, func() (any, error) {
			return e.analyzer.AnalyzePatterns(ctx, req.PhoneHash, behavior.DefaultWindow, nil, false)
		})
		if xerr != nil {
			return xerr
		}
		patterns = result.([]behavior.Pattern)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	overall := behavior.OverallRiskScore(patterns)

	analysis := &models.BehavioralAnalysis{
		OverallRiskScore: overall,
		PatternCount:     len(patterns),
		RiskLevel:        behavioralRiskLevel(overall),
	}

	var indicators []models.FraudIndicator
	for _, p := range patterns {
		if p.RiskScore <= 40 {
			continue
		}
		indicators = append(indicators, models.FraudIndicator{
			Type:        string(p.PatternType),
			Severity:    severityFromScore(p.RiskScore),
			Description: "behavioral pattern detected over " + behavior.DefaultWindow + " window",
			Confidence:  p.RiskScore,
		})
	}

	return analysis, indicators, nil
}

// behavioralRiskLevel maps an overall behavioral score to a risk
// grade: high above 70, medium above 40, else low.
func behavioralRiskLevel(score float64) models.RiskLevel {
	switch {
	case score > 70:
		return models.RiskHigh
	case score > 40:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// riskLevelFromScore grades a combined confidence score.
func riskLevelFromScore(score float64) models.RiskLevel {
	switch {
	case score > 70:
		return models.RiskHigh
	case score > 40:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// severityFromScore grades one indicator's contributing score.
func severityFromScore(score float64) models.Severity {
	switch {
	case score > 70:
		return models.SeverityHigh
	case score > 40:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func actionForFraud(isFraud bool) models.RecommendedAction {
	if isFraud {
		return models.ActionBlock
	}
	return models.ActionAllow
}

// mergeIndicators reconciles overlapping indicators from different
// sub-analyses: one indicator per type, keeping the maximum severity
// and the maximum confidence observed for that type.
func mergeIndicators(indicators []models.FraudIndicator) []models.FraudIndicator {
	if len(indicators) == 0 {
		return nil
	}

	byType := make(map[string]*models.FraudIndicator)
	var order []string

	for i := range indicators {
		ind := indicators[i]
		existing, ok := byType[ind.Type]
		if !ok {
			copied := ind
			byType[ind.Type] = &copied
			order = append(order, ind.Type)
			continue
		}

		if ind.Severity.Weight() > existing.Severity.Weight() {
			existing.Severity = ind.Severity
			existing.Description = ind.Description
		}
		if ind.Confidence > existing.Confidence {
			existing.Confidence = ind.Confidence
		}
	}

	merged := make([]models.FraudIndicator, 0, len(order))
	for _, t := range order {
		merged = append(merged, *byType[t])
	}
	return merged
}

// combinedConfidence is the severity-weighted mean of the merged
// indicator confidences, clamped to [0,100]. No indicators means no
// evidence of fraud.
func combinedConfidence(indicators []models.FraudIndicator) float64 {
	if len(indicators) == 0 {
		return 0
	}

	var weightedSum, weightTotal float64
	for _, ind := range indicators {
		w := ind.Severity.Weight()
		weightedSum += ind.Confidence * w
		weightTotal += w
	}

	return models.ClampScore(weightedSum / weightTotal)
}

// enqueueLearning feeds the observed outcome back into the signal
// store best-effort. Never blocks the response path: a full queue
// drops the write-back.
func (e *Engine) enqueueLearning(req *models.FraudAnalysisRequest, resp *models.FraudAnalysisResponse) {
	if !resp.IsFraud {
		return
	}

	event := signalstore.SignalEvent{
		PhoneHash:   req.PhoneHash,
		PatternType: learningPatternType(resp.FraudIndicators),
		StoreID:     req.StoreID,
		Weight:      resp.ConfidenceScore / 100,
		OccurredAt:  time.Now(),
	}

	select {
	case e.learnCh <- event:
	default:
		metrics.LearningWritebacks.WithLabelValues("dropped").Inc()
	}
}

// learningPatternType picks the signal class for a write-back from the
// strongest indicator.
func learningPatternType(indicators []models.FraudIndicator) signalstore.PatternType {
	var top *models.FraudIndicator
	for i := range indicators {
		if top == nil || indicators[i].Confidence > top.Confidence {
			top = &indicators[i]
		}
	}
	if top == nil {
		return signalstore.PatternSimilarity
	}

	switch top.Type {
	case "call_velocity":
		return signalstore.PatternCallFrequency
	case string(signalstore.PatternCallFrequency),
		string(signalstore.PatternTimePattern),
		string(signalstore.PatternLocationPattern),
		string(signalstore.PatternSimilarity):
		return signalstore.PatternType(top.Type)
	default:
		return signalstore.PatternSimilarity
	}
}

// learner drains the write-back queue. Each write is audited as a
// delivery outcome so learning loss is observable.
func (e *Engine) learner() {
	defer e.wg.Done()

	for event := range e.learnCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := e.store.Append(ctx, event)
		cancel()

		if err != nil {
			metrics.LearningWritebacks.WithLabelValues("failure").Inc()
			e.trail.LogDeliveryOutcome(context.Background(), "signal_store", event.PhoneHash, false,
				"learning write-back failed: "+err.Error())
			continue
		}

		metrics.LearningWritebacks.WithLabelValues("success").Inc()
		e.trail.LogDeliveryOutcome(context.Background(), "signal_store", event.PhoneHash, true,
			"learning write-back stored")
	}
}

// Close stops the learning worker after draining queued write-backs.
func (e *Engine) Close() {
	e.closeMu.Lock()
	if !e.closed {
		e.closed = true
		close(e.learnCh)
	}
	e.closeMu.Unlock()

	e.wg.Wait()
}
