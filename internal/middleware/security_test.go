// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wagerdeck/sentinel/internal/audit"
	"github.com/wagerdeck/sentinel/internal/detection"
)

type securityFixture struct {
	middleware *Security
	auditor    *audit.Logger
	auditStore *audit.MemoryStore
}

func newSecurityFixture(t *testing.T, config SecurityConfig) *securityFixture {
	t.Helper()

	engine := detection.NewEngine(
		detection.NewMemoryThreatStore(),
		detection.NewMemoryEventStore(100),
		detection.NewMemoryState(),
		detection.DefaultConfig(),
	)
	engine.RegisterRule(detection.NewInjectionRule())

	auditStore := audit.NewMemoryStore()
	auditor := audit.NewLogger(auditStore, nil, audit.DefaultConfig())
	t.Cleanup(func() { auditor.Close() })

	resolver := IdentityResolverFunc(func(r *http.Request) Identity {
		if actor := r.Header.Get("X-Test-Actor"); actor != "" {
			return Identity{ActorID: actor, SessionID: "session-1"}
		}
		return Identity{}
	})

	return &securityFixture{
		middleware: NewSecurity(engine, auditor, resolver, config),
		auditor:    auditor,
		auditStore: auditStore,
	}
}

// drainAudit closes the audit logger so queued entries are flushed to the
// store before assertions.
func (f *securityFixture) drainAudit() {
	f.auditor.Close()
}

func TestSecurityCleanRequestPassesThrough(t *testing.T) {
	f := newSecurityFixture(t, DefaultSecurityConfig())

	var gotBody string
	handler := f.middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	payload := `{"stake":25.00,"selection":"home_win"}`
	req := httptest.NewRequest(http.MethodPost, "/bets", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotBody != payload {
		t.Errorf("handler saw body %q, want %q", gotBody, payload)
	}
}

func TestSecurityBlocksInjectionAttempt(t *testing.T) {
	f := newSecurityFixture(t, DefaultSecurityConfig())

	handlerCalled := false
	handler := f.middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	payload := `{"selection":"1 or 1=1 union select balance from wallets"}`
	req := httptest.NewRequest(http.MethodPost, "/bets", strings.NewReader(payload))
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if handlerCalled {
		t.Fatal("handler ran for a blocked request")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, "request blocked for security reasons") {
		t.Errorf("body = %q, want generic block message", got)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Errorf("block response should report success false, got %q", rec.Body.String())
	}

	f.drainAudit()
	entries, err := f.auditStore.Query(context.Background(), audit.QueryFilter{IPAddress: "198.51.100.7"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Success {
		t.Error("blocked request audited as success")
	}
	if entries[0].Risk != audit.RiskHigh {
		t.Errorf("risk = %q, want %q", entries[0].Risk, audit.RiskHigh)
	}
}

func TestSecurityAuditsSensitiveRoutes(t *testing.T) {
	f := newSecurityFixture(t, SecurityConfig{ReadSampleRate: 0})

	handler := f.middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// A plain read on a sensitive route is audited even without sampling.
	req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
	req.Header.Set("X-Test-Actor", "actor-77")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// An ordinary read is not.
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/matches/today", nil))

	f.drainAudit()
	entries, err := f.auditStore.Query(context.Background(), audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].ActorID != "actor-77" {
		t.Errorf("actor = %q, want actor-77", entries[0].ActorID)
	}
	if entries[0].Category != audit.CategoryDataModification {
		t.Errorf("category = %q, want %q", entries[0].Category, audit.CategoryDataModification)
	}
}

func TestSecurityAuditsFailuresAndMutations(t *testing.T) {
	f := newSecurityFixture(t, SecurityConfig{ReadSampleRate: 0})

	status := http.StatusOK
	handler := f.middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	// Mutating method on an ordinary route.
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/comments", nil))

	// Failed read on an ordinary route.
	status = http.StatusInternalServerError
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/matches/today", nil))

	f.drainAudit()
	entries, err := f.auditStore.Query(context.Background(), audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
}

func TestSecuritySamplesReads(t *testing.T) {
	f := newSecurityFixture(t, SecurityConfig{ReadSampleRate: 2})

	handler := f.middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 4; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/matches/today", nil))
	}

	f.drainAudit()
	count, err := f.auditStore.Count(context.Background(), audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("sampled audit entries = %d, want 2 of 4 reads", count)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{name: "forwarded single hop", xff: "203.0.113.9", remoteAddr: "10.0.0.1:443", want: "203.0.113.9"},
		{name: "forwarded chain uses first hop", xff: "203.0.113.9, 10.0.0.2, 10.0.0.3", remoteAddr: "10.0.0.1:443", want: "203.0.113.9"},
		{name: "real ip fallback", xri: "198.51.100.4", remoteAddr: "10.0.0.1:443", want: "198.51.100.4"},
		{name: "remote addr strips port", remoteAddr: "192.0.2.33:51811", want: "192.0.2.33"},
		{name: "remote addr without port", remoteAddr: "192.0.2.33", want: "192.0.2.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		path string
		want audit.Category
	}{
		{"/auth/login", audit.CategoryAuthentication},
		{"/api/v1/tokens", audit.CategoryAuthentication},
		{"/admin/users", audit.CategoryAuthorization},
		{"/bets", audit.CategoryDataModification},
		{"/withdraw/request", audit.CategoryDataModification},
		{"/profile/email", audit.CategoryDataModification},
		{"/api/v1/audit/search", audit.CategorySecurityEvent},
		{"/matches/today", audit.CategoryDataAccess},
	}

	for _, tt := range tests {
		if got := classifyPath(tt.path); got != tt.want {
			t.Errorf("classifyPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSecurityBodySampleIsCapped(t *testing.T) {
	f := newSecurityFixture(t, SecurityConfig{MaxBodySample: 16, ReadSampleRate: 0})

	var gotBody string
	handler := f.middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))

	payload := strings.Repeat("a", 64)
	req := httptest.NewRequest(http.MethodPost, "/comments", strings.NewReader(payload))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotBody != payload {
		t.Errorf("handler saw %d body bytes, want full %d", len(gotBody), len(payload))
	}
}
