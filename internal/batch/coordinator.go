// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package batch fans one request list out to the fraud engine under a
// fixed concurrency ceiling, preserving input order and isolating
// per-item failures.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/metrics"
	"github.com/kestrelsec/riskgate/internal/models"
)

// Analyzer is the engine dependency, satisfied by *fraud.Engine.
type Analyzer interface {
	Analyze(ctx context.Context, req *models.FraudAnalysisRequest) (*models.FraudAnalysisResponse, error)
}

// Config bounds batch execution.
type Config struct {
	// MaxConcurrency is the fixed in-flight window; excess items queue.
	MaxConcurrency int

	// MaxItems is the largest accepted batch.
	MaxItems int
}

// DefaultConfig matches the service defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 5, MaxItems: 20}
}

// ItemResult is the outcome for one batch position. Index refers to
// the input order regardless of completion order.
type ItemResult struct {
	Index   int                           `json:"index"`
	Success bool                          `json:"success"`
	Result  *models.FraudAnalysisResponse `json:"result,omitempty"`
	Error   string                        `json:"error,omitempty"`
}

// Result is the aggregate outcome of one batch.
type Result struct {
	BatchID          string       `json:"batch_id"`
	TotalRequests    int          `json:"total_requests"`
	SuccessCount     int          `json:"success_count"`
	FailureCount     int          `json:"failure_count"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Results          []ItemResult `json:"results"`
}

// Coordinator runs batches against the fraud engine.
type Coordinator struct {
	engine Analyzer
	cfg    Config
	trail  *audit.Trail
}

// NewCoordinator wires a batch coordinator.
func NewCoordinator(cfg Config, engine Analyzer, trail *audit.Trail) *Coordinator {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.MaxItems < 1 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}
	return &Coordinator{engine: engine, cfg: cfg, trail: trail}
}

// AnalyzeBatch processes the requests concurrently and returns one
// result per input, in input order. An item failure is captured in its
// slot and never aborts siblings. Each item defaults to quick_scan
// with learning disabled to bound cost.
func (c *Coordinator) AnalyzeBatch(ctx context.Context, requests []*models.FraudAnalysisRequest) (*Result, error) {
	if len(requests) == 0 {
		return nil, faults.New(faults.KindValidation, "batch must contain at least one request")
	}
	if len(requests) > c.cfg.MaxItems {
		return nil, faults.Newf(faults.KindValidation, "batch exceeds %d requests", c.cfg.MaxItems)
	}

	start := time.Now()
	batchID := uuid.NewString()

	results := make([]ItemResult, len(requests))
	sem := make(chan struct{}, c.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i, req := range requests {
		wg.Add(1)
		go func(index int, req *models.FraudAnalysisRequest) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[index] = c.analyzeItem(ctx, index, req)
		}(i, req)
	}

	wg.Wait()

	result := &Result{
		BatchID:          batchID,
		TotalRequests:    len(requests),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Results:          results,
	}
	for _, item := range results {
		if item.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	metrics.BatchesTotal.Inc()
	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	metrics.BatchItemsTotal.WithLabelValues("success").Add(float64(result.SuccessCount))
	metrics.BatchItemsTotal.WithLabelValues("failure").Add(float64(result.FailureCount))

	c.trail.LogBatch(ctx, batchID, result.TotalRequests, result.SuccessCount, result.FailureCount)

	logging.Ctx(ctx).Info().
		Str("batch_id", batchID).
		Int("total", result.TotalRequests).
		Int("succeeded", result.SuccessCount).
		Int("failed", result.FailureCount).
		Int64("duration_ms", result.ProcessingTimeMs).
		Msg("batch analysis complete")

	return result, nil
}

// analyzeItem runs one batch item, converting panics and errors into
// an isolated failure slot.
func (c *Coordinator) analyzeItem(ctx context.Context, index int, req *models.FraudAnalysisRequest) (item ItemResult) {
	item.Index = index

	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Int("index", index).
				Interface("panic", r).
				Msg("batch item panicked")
			item.Success = false
			item.Result = nil
			item.Error = "internal error"
		}
	}()

	// Batch items run the cheap path unless the caller opted into a
	// specific mode; learning is always off to bound cost.
	itemReq := *req
	if itemReq.DetectionMode == "" {
		itemReq.DetectionMode = models.ModeQuickScan
	}
	itemReq.EnableLearning = false

	resp, err := c.engine.Analyze(ctx, &itemReq)
	if err != nil {
		item.Success = false
		item.Error = err.Error()
		return item
	}

	item.Success = true
	item.Result = resp
	return item
}
