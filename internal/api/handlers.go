// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/batch"
	"github.com/kestrelsec/riskgate/internal/behavior"
	"github.com/kestrelsec/riskgate/internal/config"
	"github.com/kestrelsec/riskgate/internal/faults"
	"github.com/kestrelsec/riskgate/internal/intrusion"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/models"
	"github.com/kestrelsec/riskgate/internal/signalstore"
	"github.com/kestrelsec/riskgate/internal/validation"
)

// maxBodyBytes bounds request body reads before JSON decoding.
const maxBodyBytes = 1 << 20 // 1 MiB

// PatternSource is the behavioral lookup dependency, satisfied by
// *behavior.Analyzer.
type PatternSource interface {
	AnalyzePatterns(ctx context.Context, phoneHash, window string, patternTypes []signalstore.PatternType, includeDetails bool) ([]behavior.Pattern, error)
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg         *config.Config
	engine      batch.Analyzer
	coordinator *batch.Coordinator
	patterns    PatternSource
	scanner     *intrusion.Scanner
	trail       *audit.Trail
}

// NewServer wires the HTTP layer.
func NewServer(cfg *config.Config, engine batch.Analyzer, coordinator *batch.Coordinator, patterns PatternSource, scanner *intrusion.Scanner, trail *audit.Trail) *Server {
	return &Server{
		cfg:         cfg,
		engine:      engine,
		coordinator: coordinator,
		patterns:    patterns,
		scanner:     scanner,
		trail:       trail,
	}
}

// handleAnalyze runs the full pipeline for one request: intrusion scan
// first, then validation, then the fraud engine. A fraud verdict is a
// 200 with is_fraud set; only broken requests and infrastructure
// trouble produce error statuses.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "failed to read request body", nil)
		return
	}

	if blocked := s.scanIncoming(w, r, string(body)); blocked {
		return
	}

	var req models.FraudAnalysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON", nil)
		return
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, "validation_failed", apiErr.Message, apiErr.Details)
		return
	}

	resp, err := s.engine.Analyze(r.Context(), &req)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleAnalyzeStatus reports the state of a previously submitted
// request. Analysis is synchronous, so any well-formed id is complete.
func (s *Server) handleAnalyzeStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")
	if len(requestID) < 8 {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "request_id must be at least 8 characters", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"request_id": requestID,
		"status":     "completed",
	})
}

// batchEnvelope is the wire shape of a batch submission.
type batchEnvelope struct {
	Requests []*models.FraudAnalysisRequest `json:"requests"`
}

// handleAnalyzeBatch fans a request list out to the engine.
func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "failed to read request body", nil)
		return
	}

	if blocked := s.scanIncoming(w, r, string(body)); blocked {
		return
	}

	var envelope batchEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON", nil)
		return
	}

	result, err := s.coordinator.AnalyzeBatch(r.Context(), envelope.Requests)
	if err != nil {
		if faults.IsKind(err, faults.KindValidation) {
			respondError(w, r, http.StatusBadRequest, "validation_failed", err.Error(), nil)
			return
		}
		s.respondEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// patternsResponse is the wire shape of a patterns lookup.
type patternsResponse struct {
	PhoneHash         string             `json:"phone_hash"`
	Patterns          []behavior.Pattern `json:"patterns"`
	OverallRiskLevel  models.RiskLevel   `json:"overall_risk_level"`
	TimeWindow        string             `json:"time_window"`
	AnalysisTimestamp time.Time          `json:"analysis_timestamp"`
}

// handlePatterns looks up behavioral patterns for a phone hash. An
// absent time_window defaults to 24h, but an explicit unknown token is
// a caller mistake and rejected.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	phoneHash := chi.URLParam(r, "phone_hash")
	query := r.URL.Query()

	window := behavior.DefaultWindow
	if raw := query.Get("time_window"); raw != "" {
		if behavior.NormalizeWindow(raw) != raw {
			respondError(w, r, http.StatusBadRequest, "invalid_request",
				"time_window must be one of 30m, 24h, 7d, 30d", nil)
			return
		}
		window = raw
	}

	var patternTypes []signalstore.PatternType
	if raw := query.Get("pattern_types"); raw != "" {
		for _, token := range strings.Split(raw, ",") {
			pt := signalstore.PatternType(strings.TrimSpace(token))
			if !pt.Valid() {
				respondError(w, r, http.StatusBadRequest, "invalid_request",
					"unknown pattern type: "+string(pt), nil)
				return
			}
			patternTypes = append(patternTypes, pt)
		}
	}

	includeDetails := false
	if raw := query.Get("include_details"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid_request",
				"include_details must be a boolean", nil)
			return
		}
		includeDetails = parsed
	}

	patterns, err := s.patterns.AnalyzePatterns(r.Context(), phoneHash, window, patternTypes, includeDetails)
	if err != nil {
		if faults.IsKind(err, faults.KindValidation) {
			respondError(w, r, http.StatusBadRequest, "validation_failed", err.Error(), nil)
			return
		}
		s.respondEngineError(w, r, err)
		return
	}

	if len(patterns) == 0 {
		respondError(w, r, http.StatusNotFound, "patterns_not_found",
			"no behavioral patterns recorded for this phone hash in the window", nil)
		return
	}

	s.trail.LogSystemEvent(r.Context(), "patterns_lookup", "behavioral patterns served", map[string]interface{}{
		"phone_hash":  phoneHash,
		"time_window": window,
		"patterns":    len(patterns),
	})

	writeJSON(w, http.StatusOK, patternsResponse{
		PhoneHash:         phoneHash,
		Patterns:          patterns,
		OverallRiskLevel:  behavior.OverallRiskLevel(patterns),
		TimeWindow:        window,
		AnalysisTimestamp: time.Now().UTC(),
	})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scanIncoming runs the intrusion scanner over the raw request. A
// blocking threat writes the 403 itself and reports true.
func (s *Server) scanIncoming(w http.ResponseWriter, r *http.Request, body string) bool {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	result := s.scanner.AnalyzeRequest(intrusion.RequestContext{
		Method:        r.Method,
		URL:           r.URL.Path,
		Headers:       headers,
		Body:          body,
		Query:         r.URL.RawQuery,
		IP:            r.RemoteAddr,
		UserAgent:     r.UserAgent(),
		CorrelationID: logging.CorrelationIDFromContext(r.Context()),
	})

	if !result.ThreatDetected || result.RecommendedAction != models.ActionBlock {
		return false
	}

	s.trail.LogIntrusionBlocked(r.Context(), audit.Source{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	}, string(result.IntrusionType), result.EventID)

	respondError(w, r, http.StatusForbidden, "request_blocked",
		"request rejected by intrusion analysis", map[string]interface{}{
			"intrusion_type": result.IntrusionType,
			"event_id":       result.EventID,
		})
	return true
}

// respondEngineError maps pipeline errors onto the HTTP contract.
func (s *Server) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := faults.KindOf(err)
	status := faults.HTTPStatus(kind)

	code := "internal_error"
	message := "an internal error occurred"
	switch kind {
	case faults.KindValidation:
		code = "validation_failed"
		message = err.Error()
	case faults.KindUpstreamUnavailable, faults.KindCircuitOpen:
		code = "upstream_unavailable"
		message = "a required upstream dependency is unavailable"
	case faults.KindTimeout:
		code = "timeout"
		message = "the analysis did not complete in time"
	}

	if status >= 500 {
		logging.Ctx(r.Context()).Error().Err(err).Str("kind", string(kind)).Msg("analysis request failed")
	}

	respondError(w, r, status, code, message, nil)
}
