// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/audit"
)

// appendEntry posts an audit entry through the API and returns its ID.
func appendEntry(t *testing.T, f *fixture, body string) string {
	t.Helper()
	rec, envelope := f.do(t, http.MethodPost, "/api/v1/audit/entries", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d (body %s)", rec.Code, rec.Body.String())
	}
	data, _ := json.Marshal(envelope.Data)
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.ID == "" {
		t.Fatalf("append response missing id: %s", rec.Body.String())
	}
	return out.ID
}

func TestAppendAndGetAuditEntry(t *testing.T) {
	f := newFixture(t)

	id := appendEntry(t, f, `{
		"event_type": "login_failure",
		"category": "authentication",
		"risk": "medium",
		"actor_id": "actor-9",
		"ip_address": "198.51.100.4",
		"action": "login",
		"success": false
	}`)

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/audit/entries/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	data, _ := json.Marshal(envelope.Data)
	var entry audit.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.ID != id {
		t.Errorf("id = %q, want %q", entry.ID, id)
	}
	if entry.Category != audit.CategoryAuthentication || entry.Risk != audit.RiskMedium {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Success {
		t.Error("success should be false")
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
}

func TestAppendAuditEntryValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing event type", `{"category":"authentication"}`},
		{"unknown category", `{"event_type":"x","category":"gossip"}`},
		{"bad ip", `{"event_type":"x","category":"data_access","ip_address":"not-an-ip"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, envelope := f.do(t, http.MethodPost, "/api/v1/audit/entries", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if envelope.Error == nil {
				t.Fatal("missing error payload")
			}
		})
	}
}

func TestGetAuditEntryNotFound(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/audit/entries/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSearchAuditEntries(t *testing.T) {
	f := newFixture(t)

	appendEntry(t, f, `{"event_type":"login_failure","category":"authentication","risk":"medium","actor_id":"actor-9","success":false}`)
	appendEntry(t, f, `{"event_type":"login_failure","category":"authentication","risk":"medium","actor_id":"actor-9","success":false}`)
	appendEntry(t, f, `{"event_type":"odds_read","category":"data_access","risk":"low","actor_id":"actor-3","success":true}`)

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/audit/search?category=authentication", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if envelope.Meta == nil || envelope.Meta.Pagination == nil {
		t.Fatal("missing pagination meta")
	}
	if envelope.Meta.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", envelope.Meta.Pagination.Total)
	}

	data, _ := json.Marshal(envelope.Data)
	var result audit.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(result.Entries))
	}
	if result.Aggregations.ByCategory[audit.CategoryAuthentication] != 2 {
		t.Errorf("aggregations = %+v", result.Aggregations)
	}
}

func TestSearchAuditEntriesRejectsBadRisk(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/audit/search?risk=severe", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestVerifyAuditIntegrity(t *testing.T) {
	f := newFixture(t)

	appendEntry(t, f, `{"event_type":"payout","category":"data_modification","risk":"high","actor_id":"actor-4","success":true}`)
	appendEntry(t, f, `{"event_type":"payout","category":"data_modification","risk":"high","actor_id":"actor-5","success":true}`)

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/audit/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	data, _ := json.Marshal(envelope.Data)
	var out struct {
		Verified  bool     `json:"verified"`
		FailedIDs []string `json:"failed_ids"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Verified {
		t.Errorf("verified = false, failed = %v", out.FailedIDs)
	}
}

func TestExportAuditLogs(t *testing.T) {
	f := newFixture(t)
	appendEntry(t, f, `{"event_type":"login_failure","category":"authentication","risk":"medium","actor_id":"actor-9","success":false}`)

	start := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	path := fmt.Sprintf("/api/v1/audit/export?start=%s&end=%s&format=json&include_proof=true", start, end)
	rec, envelope := f.do(t, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	data, _ := json.Marshal(envelope.Data)
	var export audit.Export
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if export.EntryCount != 1 {
		t.Errorf("entry count = %d, want 1", export.EntryCount)
	}
	if export.Format != audit.FormatJSON {
		t.Errorf("format = %q", export.Format)
	}
	if export.IntegrityProof == "" {
		t.Error("integrity proof missing")
	}
	if len(export.Data) == 0 {
		t.Error("export data empty")
	}
}

func TestExportAuditLogsRequiresPeriod(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/audit/export?format=json", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing period: status = %d, want 400", rec.Code)
	}

	// End before start.
	start := time.Now().UTC().Format(time.RFC3339)
	end := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	rec, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/audit/export?start=%s&end=%s", start, end), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted period: status = %d, want 400", rec.Code)
	}
}

func TestGenerateComplianceReport(t *testing.T) {
	f := newFixture(t)
	appendEntry(t, f, `{"event_type":"login_failure","category":"authentication","risk":"medium","actor_id":"actor-9","success":false}`)
	appendEntry(t, f, `{"event_type":"bet_placed","category":"data_modification","risk":"low","actor_id":"actor-9","success":true}`)

	start := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	rec, envelope := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/audit/report?start=%s&end=%s", start, end), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	data, _ := json.Marshal(envelope.Data)
	var report audit.ComplianceReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Total != 2 {
		t.Errorf("total = %d, want 2", report.Total)
	}
	if report.TotalError != 0 {
		t.Errorf("integrity failures = %d, want 0", report.TotalError)
	}
	if report.Summary.ByCategory[audit.CategoryAuthentication] != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
}
