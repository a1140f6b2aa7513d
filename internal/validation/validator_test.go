// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package validation

import (
	"testing"

	"github.com/kestrelsec/riskgate/internal/models"
)

func validRequest() *models.FraudAnalysisRequest {
	return &models.FraudAnalysisRequest{
		PhoneHash:   "abc12345",
		MessageText: "checking on my order",
		StoreID:     "9f8b4a2e-1c3d-4e5f-8a6b-7c8d9e0f1a2b",
	}
}

func TestValidateStructAccepts(t *testing.T) {
	if err := ValidateStruct(validRequest()); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestValidateStructRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.FraudAnalysisRequest)
		field  string
	}{
		{"short phone hash", func(r *models.FraudAnalysisRequest) { r.PhoneHash = "ab12" }, "PhoneHash"},
		{"non-alphanumeric hash", func(r *models.FraudAnalysisRequest) { r.PhoneHash = "abc 1234!" }, "PhoneHash"},
		{"empty message", func(r *models.FraudAnalysisRequest) { r.MessageText = "" }, "MessageText"},
		{"bad store id", func(r *models.FraudAnalysisRequest) { r.StoreID = "not-a-uuid" }, "StoreID"},
		{"negative duration", func(r *models.FraudAnalysisRequest) { r.CallDuration = -1 }, "CallDuration"},
		{"unknown mode", func(r *models.FraudAnalysisRequest) { r.DetectionMode = "deep" }, "DetectionMode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)

			verr := ValidateStruct(req)
			if verr == nil {
				t.Fatal("expected validation error")
			}

			found := false
			for _, fe := range verr.Errors() {
				if fe.Field() == tc.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a %s error, got %v", tc.field, verr)
			}
		})
	}
}

func TestValidatePhoneHash(t *testing.T) {
	if err := ValidatePhoneHash("abcdef123456"); err != nil {
		t.Errorf("valid hash rejected: %v", err)
	}
	for _, bad := range []string{"", "short", "has spaces 123", "trailing-punct!"} {
		if err := ValidatePhoneHash(bad); err == nil {
			t.Errorf("hash %q should be rejected", bad)
		}
	}
}

func TestToAPIErrorShape(t *testing.T) {
	req := validRequest()
	req.PhoneHash = ""
	req.MessageText = ""

	verr := ValidateStruct(req)
	if verr == nil {
		t.Fatal("expected validation error")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if len(apiErr.Details) < 2 {
		t.Errorf("expected per-field details, got %v", apiErr.Details)
	}
}
