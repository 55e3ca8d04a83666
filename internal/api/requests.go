// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/validation"
)

// maxRequestBody caps JSON request bodies. Ingested security events are
// small; anything larger is malformed or hostile.
const maxRequestBody = 1 << 20

// SubmitEventRequest is the body for POST /api/v1/events.
type SubmitEventRequest struct {
	EventType string `json:"event_type" validate:"required,min=1,max=64"`
	ActorID   string `json:"actor_id" validate:"omitempty,max=128"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	IPAddress string `json:"ip_address" validate:"required,ip"`
	UserAgent string `json:"user_agent" validate:"omitempty,max=1024"`
	Success   bool   `json:"success"`

	Details json.RawMessage `json:"details,omitempty"`
}

// ThreatListRequest is the validated query for GET /api/v1/threats.
type ThreatListRequest struct {
	Type     string `validate:"omitempty,oneof=brute_force ddos sql_injection xss suspicious_activity impossible_travel account_takeover audit_log_tampering"`
	Severity string `validate:"omitempty,oneof=low medium high critical"`
	Status   string `validate:"omitempty,oneof=detected investigating contained resolved false_positive"`
	SourceIP string `validate:"omitempty,ip"`
	ActorID  string `validate:"omitempty,max=128"`
	Limit    int    `validate:"min=1,max=500"`
	Offset   int    `validate:"min=0"`
}

// UpdateThreatStatusRequest is the body for PATCH /api/v1/threats/{id}/status.
type UpdateThreatStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=detected investigating contained resolved false_positive"`
}

// IncidentListRequest is the validated query for GET /api/v1/incidents.
type IncidentListRequest struct {
	Type     string `validate:"omitempty,max=64"`
	Severity string `validate:"omitempty,oneof=low medium high critical"`
	Status   string `validate:"omitempty,oneof=new investigating contained resolved closed"`
	SourceIP string `validate:"omitempty,ip"`
	ActorID  string `validate:"omitempty,max=128"`
	Limit    int    `validate:"min=1,max=500"`
	Offset   int    `validate:"min=0"`
}

// UpdateIncidentStatusRequest is the body for PATCH /api/v1/incidents/{id}/status.
type UpdateIncidentStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=new investigating contained resolved closed"`
	PerformedBy string `json:"performed_by" validate:"required,min=1,max=128"`
}

// AddResponseActionRequest is the body for POST /api/v1/incidents/{id}/actions.
type AddResponseActionRequest struct {
	Action      string `json:"action" validate:"required,min=1,max=500"`
	PerformedBy string `json:"performed_by" validate:"required,min=1,max=128"`
	Result      string `json:"result" validate:"omitempty,max=500"`
}

// AuditSearchRequest is the validated query for GET /api/v1/audit/search.
type AuditSearchRequest struct {
	EventType string `validate:"omitempty,max=64"`
	Category  string `validate:"omitempty,oneof=data_access data_modification authentication authorization system_access security_event configuration"`
	Risk      string `validate:"omitempty,oneof=low medium high critical"`
	ActorID   string `validate:"omitempty,max=128"`
	IPAddress string `validate:"omitempty,ip"`
	StartTime string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime   string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit     int    `validate:"min=1,max=500"`
	Offset    int    `validate:"min=0"`
}

// AuditExportRequest is the validated query for GET /api/v1/audit/export.
type AuditExportRequest struct {
	Start        string `validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	End          string `validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Format       string `validate:"omitempty,oneof=json csv cef"`
	IncludeProof bool
}

// IssueTokenRequest is the body for POST /api/v1/tokens. The actor is
// optional: anonymous sessions get tokens bound to the session alone.
type IssueTokenRequest struct {
	SessionID string `json:"session_id" validate:"required,min=1,max=128"`
	ActorID   string `json:"actor_id" validate:"omitempty,min=1,max=128"`
}

// ValidateTokenRequest is the body for POST /api/v1/tokens/validate.
type ValidateTokenRequest struct {
	HeaderToken string `json:"header_token" validate:"required"`
	CookieToken string `json:"cookie_token" validate:"required"`
	SessionID   string `json:"session_id" validate:"required"`
	ActorID     string `json:"actor_id" validate:"omitempty,min=1,max=128"`
}

// IssueCapabilityRequest is the body for POST /api/v1/tokens/capability.
type IssueCapabilityRequest struct {
	Purpose    string            `json:"purpose" validate:"required,min=1,max=64"`
	Data       map[string]string `json:"data,omitempty"`
	TTLSeconds int               `json:"ttl_seconds" validate:"omitempty,min=1,max=86400"`
}

// ValidateCapabilityRequest is the body for
// POST /api/v1/tokens/capability/validate.
type ValidateCapabilityRequest struct {
	Token   string `json:"token" validate:"required"`
	Purpose string `json:"purpose" validate:"required"`
}

// decodeJSON reads and unmarshals a bounded request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxRequestBody {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// validateRequest runs struct validation and shapes the failure for the
// response writer. Returns nil when the request is valid.
func validateRequest(v interface{}) *validation.RequestValidationError {
	return validation.ValidateStruct(v)
}

// getIntParam reads an integer query parameter with a default.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseTimeParam parses an RFC3339 query value, nil when absent.
func parseTimeParam(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}
