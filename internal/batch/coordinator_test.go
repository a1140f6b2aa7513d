// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/models"
)

// fakeEngine records calls and fails for phone hashes in failFor.
type fakeEngine struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
	modes    []models.DetectionMode
	learning []bool
	failFor  map[string]bool
	delay    time.Duration
}

func (f *fakeEngine) Analyze(_ context.Context, req *models.FraudAnalysisRequest) (*models.FraudAnalysisResponse, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.modes = append(f.modes, req.DetectionMode)
	f.learning = append(f.learning, req.EnableLearning)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.failFor[req.PhoneHash] {
		return nil, errors.New("engine failure for " + req.PhoneHash)
	}
	return &models.FraudAnalysisResponse{
		RequestID: req.PhoneHash,
		IsFraud:   false,
		RiskLevel: models.RiskLow,
	}, nil
}

func newTestCoordinator(t *testing.T, engine Analyzer) (*Coordinator, *audit.MemoryStore) {
	t.Helper()

	store := audit.NewMemoryStore(100)
	trail := audit.NewTrail(store, &audit.Config{
		Enabled:         true,
		BufferSize:      100,
		Retention:       time.Hour,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(func() { trail.Close() })

	return NewCoordinator(Config{MaxConcurrency: 5, MaxItems: 20}, engine, trail), store
}

func makeRequests(n int) []*models.FraudAnalysisRequest {
	reqs := make([]*models.FraudAnalysisRequest, n)
	for i := range reqs {
		reqs[i] = &models.FraudAnalysisRequest{
			PhoneHash:   fmt.Sprintf("hash%04d", i),
			MessageText: "routine feedback call",
			StoreID:     "9f8b4a2e-1c3d-4e5f-8a6b-7c8d9e0f1a2b",
		}
	}
	return reqs
}

func TestAnalyzeBatchOrderAndIsolation(t *testing.T) {
	engine := &fakeEngine{failFor: map[string]bool{"hash0007": true}, delay: 5 * time.Millisecond}
	coord, _ := newTestCoordinator(t, engine)

	result, err := coord.AnalyzeBatch(context.Background(), makeRequests(12))
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalRequests != 12 || len(result.Results) != 12 {
		t.Fatalf("expected 12 results, got %d/%d", result.TotalRequests, len(result.Results))
	}
	if result.SuccessCount != 11 || result.FailureCount != 1 {
		t.Errorf("counts = %d/%d, want 11/1", result.SuccessCount, result.FailureCount)
	}

	for i, item := range result.Results {
		if item.Index != i {
			t.Errorf("result %d carries index %d; order must follow input", i, item.Index)
		}
		if i == 7 {
			if item.Success || item.Error == "" {
				t.Errorf("item 7 must be an isolated failure, got %+v", item)
			}
			continue
		}
		if !item.Success || item.Result == nil {
			t.Errorf("item %d should succeed, got %+v", i, item)
		}
	}
	if result.BatchID == "" {
		t.Error("batch id missing")
	}
}

func TestAnalyzeBatchConcurrencyCeiling(t *testing.T) {
	engine := &fakeEngine{delay: 20 * time.Millisecond}
	coord, _ := newTestCoordinator(t, engine)

	if _, err := coord.AnalyzeBatch(context.Background(), makeRequests(12)); err != nil {
		t.Fatal(err)
	}

	if engine.maxSeen > 5 {
		t.Errorf("in-flight ceiling violated: saw %d concurrent items", engine.maxSeen)
	}
	if engine.calls != 12 {
		t.Errorf("expected all 12 items processed, got %d", engine.calls)
	}
}

func TestAnalyzeBatchItemDefaults(t *testing.T) {
	engine := &fakeEngine{}
	coord, _ := newTestCoordinator(t, engine)

	reqs := makeRequests(2)
	reqs[0].EnableLearning = true
	reqs[1].DetectionMode = models.ModeContextOnly

	if _, err := coord.AnalyzeBatch(context.Background(), reqs); err != nil {
		t.Fatal(err)
	}

	for _, learning := range engine.learning {
		if learning {
			t.Error("batch items must run with learning disabled")
		}
	}

	modeSet := map[models.DetectionMode]bool{}
	for _, m := range engine.modes {
		modeSet[m] = true
	}
	if !modeSet[models.ModeQuickScan] {
		t.Error("unset mode must default to quick_scan")
	}
	if !modeSet[models.ModeContextOnly] {
		t.Error("an explicit item mode must be preserved")
	}

	// The caller's request structs are not mutated.
	if !reqs[0].EnableLearning || reqs[1].DetectionMode != models.ModeContextOnly {
		t.Error("input requests mutated by the coordinator")
	}
}

func TestAnalyzeBatchSizeBounds(t *testing.T) {
	coord, _ := newTestCoordinator(t, &fakeEngine{})

	if _, err := coord.AnalyzeBatch(context.Background(), nil); faults.KindOf(err) != faults.KindValidation {
		t.Errorf("empty batch must fail validation, got %v", err)
	}
	if _, err := coord.AnalyzeBatch(context.Background(), makeRequests(21)); faults.KindOf(err) != faults.KindValidation {
		t.Errorf("oversized batch must fail validation, got %v", err)
	}
}

func TestAnalyzeBatchAuditsOnce(t *testing.T) {
	engine := &fakeEngine{failFor: map[string]bool{"hash0001": true}}
	coord, store := newTestCoordinator(t, engine)

	if _, err := coord.AnalyzeBatch(context.Background(), makeRequests(3)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Len() >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	events, err := store.Query(context.Background(), audit.QueryFilter{
		Types: []audit.EventType{audit.EventTypeBatchDecision},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one batch audit event, got %d", len(events))
	}
	if events[0].Outcome != audit.OutcomePartialFailure {
		t.Errorf("mixed batch must audit partial_failure, got %s", events[0].Outcome)
	}
}
