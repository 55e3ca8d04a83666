// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package middleware

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/audit"
	"github.com/wagerdeck/sentinel/internal/detection"
	"github.com/wagerdeck/sentinel/internal/logging"
	"github.com/wagerdeck/sentinel/internal/metrics"
)

// Identity is what the platform knows about the caller of a request.
// Zero values mean anonymous.
type Identity struct {
	ActorID   string
	SessionID string
}

// IdentityResolver extracts the caller identity from a request, usually
// from a session cookie or bearer token validated upstream.
type IdentityResolver interface {
	Identify(r *http.Request) Identity
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(r *http.Request) Identity

func (f IdentityResolverFunc) Identify(r *http.Request) Identity { return f(r) }

// SecurityConfig tunes the security middleware.
type SecurityConfig struct {
	// MaxBodySample caps how many request body bytes are inspected.
	MaxBodySample int `json:"max_body_sample"`

	// ReadSampleRate audits one in N read requests that would otherwise
	// be skipped. Zero disables read sampling.
	ReadSampleRate int `json:"read_sample_rate"`

	// BlockSeverity is the minimum fast-path threat severity that gets
	// a request rejected outright.
	BlockSeverity detection.Severity `json:"block_severity"`
}

// DefaultSecurityConfig returns production defaults.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxBodySample:  8 * 1024,
		ReadSampleRate: 100,
		BlockSeverity:  detection.SeverityHigh,
	}
}

// Security inspects every request through the detection engine. Fast-path
// rules run synchronously and can reject the request; full analysis is
// queued and never blocks the caller. Security-relevant requests are
// recorded in the audit trail.
type Security struct {
	engine   *detection.Engine
	auditor  *audit.Logger
	resolver IdentityResolver
	config   SecurityConfig
	sampleN  uint64

	sampleMu sync.Mutex
}

// NewSecurity creates the security middleware. The resolver may be nil,
// in which case every request is treated as anonymous.
func NewSecurity(engine *detection.Engine, auditor *audit.Logger, resolver IdentityResolver, config SecurityConfig) *Security {
	if config.MaxBodySample <= 0 {
		config.MaxBodySample = DefaultSecurityConfig().MaxBodySample
	}
	if config.BlockSeverity == "" {
		config.BlockSeverity = detection.SeverityHigh
	}
	return &Security{
		engine:   engine,
		auditor:  auditor,
		resolver: resolver,
		config:   config,
	}
}

// blockedBody is intentionally generic. Attackers probing the platform
// learn nothing about which rule rejected them.
var blockedBody = []byte(`{"success":false,"error":"request blocked for security reasons"}`)

// Handler is the chi-compatible middleware entry point.
func (s *Security) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event := s.buildEvent(r)

		threats := s.engine.FastPath(r.Context(), event)
		if blocking := s.blockingThreat(threats); blocking != nil {
			metrics.RequestsBlocked.WithLabelValues(string(blocking.Type)).Inc()
			logging.Warn().
				Str("threat_type", string(blocking.Type)).
				Str("severity", string(blocking.Severity)).
				Str("ip", event.IPAddress).
				Str("path", r.URL.Path).
				Msg("request blocked")

			event.Success = false
			s.submit(r, event)
			s.recordAudit(r, event, http.StatusForbidden, false)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write(blockedBody)
			return
		}

		s.submit(r, event)

		wrapper := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		if s.shouldAudit(r, wrapper.statusCode) {
			s.recordAudit(r, event, wrapper.statusCode, wrapper.statusCode < http.StatusBadRequest)
		}
	})
}

func (s *Security) blockingThreat(threats []*detection.Threat) *detection.Threat {
	for _, threat := range threats {
		if threat.Severity.AtLeast(s.config.BlockSeverity) {
			return threat
		}
	}
	return nil
}

func (s *Security) submit(r *http.Request, event *detection.SecurityEvent) {
	if err := s.engine.Submit(r.Context(), event); err != nil {
		logging.Debug().Err(err).Msg("security event dropped")
	}
}

// buildEvent captures the request as a security event. The body is
// sampled up to the configured cap and restored for downstream handlers.
func (s *Security) buildEvent(r *http.Request) *detection.SecurityEvent {
	identity := Identity{}
	if s.resolver != nil {
		identity = s.resolver.Identify(r)
	}

	return &detection.SecurityEvent{
		EventType: detection.EventRequest,
		ActorID:   identity.ActorID,
		SessionID: identity.SessionID,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: detection.EventDetails{
			Kind: detection.DetailRequest,
			Request: &detection.RequestDetails{
				Method: r.Method,
				Path:   r.URL.Path,
				Query:  r.URL.RawQuery,
				Body:   s.sampleBody(r),
			},
		},
	}
}

func (s *Security) sampleBody(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	sample := make([]byte, s.config.MaxBodySample)
	n, _ := io.ReadFull(r.Body, sample)
	if n == 0 {
		return ""
	}
	// Rebuild the body so handlers still see the full stream.
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(sample[:n]), r.Body), r.Body}
	return string(sample[:n])
}

// shouldAudit decides whether a completed request belongs in the audit
// trail. Sensitive route categories and mutations always do; plain
// successful reads are sampled.
func (s *Security) shouldAudit(r *http.Request, status int) bool {
	category := classifyPath(r.URL.Path)
	switch category {
	case audit.CategoryAuthentication, audit.CategoryAuthorization, audit.CategoryDataModification:
		return true
	}
	if status >= http.StatusBadRequest {
		return true
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	if s.config.ReadSampleRate <= 0 {
		return false
	}
	s.sampleMu.Lock()
	s.sampleN++
	sampled := s.sampleN%uint64(s.config.ReadSampleRate) == 0
	s.sampleMu.Unlock()
	return sampled
}

func (s *Security) recordAudit(r *http.Request, event *detection.SecurityEvent, status int, success bool) {
	if s.auditor == nil {
		return
	}

	details, _ := json.Marshal(map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})

	entry := &audit.Entry{
		EventType: "http_request",
		Category:  classifyPath(r.URL.Path),
		Risk:      riskForStatus(status, success),
		ActorID:   event.ActorID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Resource:  r.URL.Path,
		Action:    r.Method,
		Success:   success,
		Details:   details,
		RequestID: GetRequestID(r.Context()),
	}
	if err := s.auditor.Append(r.Context(), entry); err != nil {
		logging.Warn().Err(err).Msg("audit append failed")
	}
}

func riskForStatus(status int, success bool) audit.RiskLevel {
	switch {
	case !success && status == http.StatusForbidden:
		return audit.RiskHigh
	case status >= http.StatusInternalServerError:
		return audit.RiskMedium
	case status >= http.StatusBadRequest:
		return audit.RiskMedium
	default:
		return audit.RiskLow
	}
}

// classifyPath maps request paths onto audit categories. Betting and
// wallet routes are treated as data modification regardless of method.
func classifyPath(path string) audit.Category {
	switch {
	case hasAnyPrefix(path, "/auth", "/login", "/logout", "/api/v1/tokens"):
		return audit.CategoryAuthentication
	case hasAnyPrefix(path, "/admin", "/api/v1/rules"):
		return audit.CategoryAuthorization
	case hasAnyPrefix(path, "/bets", "/wallet", "/payout", "/deposit", "/withdraw", "/account", "/profile"):
		return audit.CategoryDataModification
	case hasAnyPrefix(path, "/api/v1/audit"):
		return audit.CategorySecurityEvent
	default:
		return audit.CategoryDataAccess
	}
}

func hasAnyPrefix(path string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// clientIP extracts the caller address, preferring proxy headers set by
// the edge. The first X-Forwarded-For hop is the original client.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
