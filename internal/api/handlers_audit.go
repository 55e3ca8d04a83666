// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/audit"
)

// AppendAuditEntryRequest is the body for POST /api/v1/audit/entries.
type AppendAuditEntryRequest struct {
	EventType     string          `json:"event_type" validate:"required,min=1,max=64"`
	Category      string          `json:"category" validate:"required,oneof=data_access data_modification authentication authorization system_access security_event configuration"`
	Risk          string          `json:"risk" validate:"omitempty,oneof=low medium high critical"`
	ActorID       string          `json:"actor_id" validate:"omitempty,max=128"`
	AdminID       string          `json:"admin_id" validate:"omitempty,max=128"`
	IPAddress     string          `json:"ip_address" validate:"omitempty,ip"`
	UserAgent     string          `json:"user_agent" validate:"omitempty,max=1024"`
	Resource      string          `json:"resource" validate:"omitempty,max=256"`
	Action        string          `json:"action" validate:"omitempty,max=64"`
	Success       bool            `json:"success"`
	Details       json.RawMessage `json:"details,omitempty"`
	SensitiveData string          `json:"sensitive_data,omitempty"`
}

// AppendAuditEntry records an entry synchronously. External writers get
// durability confirmation; Sentinel's own request auditing goes through
// the async queue instead.
func (h *Handler) AppendAuditEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req AppendAuditEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	entry := &audit.Entry{
		EventType:     req.EventType,
		Category:      audit.Category(req.Category),
		Risk:          audit.RiskLevel(req.Risk),
		ActorID:       req.ActorID,
		AdminID:       req.AdminID,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Resource:      req.Resource,
		Action:        req.Action,
		Success:       req.Success,
		Details:       req.Details,
		SensitiveData: req.SensitiveData,
	}

	if err := h.auditor.AppendSync(r.Context(), entry); err != nil {
		rw.StorageError(err)
		return
	}
	rw.Created(map[string]string{"id": entry.ID})
}

// GetAuditEntry returns one audit entry by ID.
func (h *Handler) GetAuditEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	entry, err := h.auditor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			rw.NotFound("audit entry not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(entry)
}

// SearchAuditEntries queries the trail with aggregations over the full
// match set.
func (h *Handler) SearchAuditEntries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := r.URL.Query()
	req := AuditSearchRequest{
		EventType: q.Get("event_type"),
		Category:  q.Get("category"),
		Risk:      q.Get("risk"),
		ActorID:   q.Get("actor_id"),
		IPAddress: q.Get("ip_address"),
		StartTime: q.Get("start_time"),
		EndTime:   q.Get("end_time"),
		Limit:     getIntParam(r, "limit", h.defaultPageSize),
		Offset:    getIntParam(r, "offset", 0),
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	filter := h.auditFilter(req)
	result, err := h.auditor.Search(r.Context(), filter)
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.SuccessWithPagination(result, &PaginationMeta{
		Total:   result.Total,
		Count:   len(result.Entries),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(result.Entries)) < result.Total,
	})
}

// VerifyAuditIntegrity re-checks integrity hashes over a filtered range
// and reports the IDs that fail. Tampered entries also raise a critical
// threat through the engine's tampering path.
func (h *Handler) VerifyAuditIntegrity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := r.URL.Query()
	req := AuditSearchRequest{
		Category:  q.Get("category"),
		ActorID:   q.Get("actor_id"),
		StartTime: q.Get("start_time"),
		EndTime:   q.Get("end_time"),
		Limit:     getIntParam(r, "limit", h.maxPageSize),
		Offset:    0,
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	failed, err := h.auditor.VerifyRange(r.Context(), h.auditFilter(req))
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"verified":   failed == nil,
		"failed_ids": failed,
	})
}

// ExportAuditLogs streams a serialized extract of the trail for a period.
func (h *Handler) ExportAuditLogs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := r.URL.Query()
	req := AuditExportRequest{
		Start:        q.Get("start"),
		End:          q.Get("end"),
		Format:       q.Get("format"),
		IncludeProof: q.Get("include_proof") == "true",
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}
	if req.Format == "" {
		req.Format = string(audit.FormatJSON)
	}

	start, _ := time.Parse(time.RFC3339, req.Start)
	end, _ := time.Parse(time.RFC3339, req.End)
	if !end.After(start) {
		rw.BadRequest("end must be after start")
		return
	}

	export, err := h.auditor.ExportAuditLogs(
		r.Context(),
		audit.Period{Start: start, End: end},
		categoriesParam(q.Get("categories")),
		audit.ExportFormat(req.Format),
		req.IncludeProof,
	)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.Success(export)
}

// GenerateComplianceReport builds an audit summary over a period.
func (h *Handler) GenerateComplianceReport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := r.URL.Query()
	req := AuditExportRequest{
		Start: q.Get("start"),
		End:   q.Get("end"),
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	start, _ := time.Parse(time.RFC3339, req.Start)
	end, _ := time.Parse(time.RFC3339, req.End)
	if !end.After(start) {
		rw.BadRequest("end must be after start")
		return
	}

	report, err := h.auditor.GenerateComplianceReport(
		r.Context(),
		audit.Period{Start: start, End: end},
		categoriesParam(q.Get("categories")),
	)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.Success(report)
}

func (h *Handler) auditFilter(req AuditSearchRequest) audit.QueryFilter {
	filter := audit.QueryFilter{
		ActorID:   req.ActorID,
		IPAddress: req.IPAddress,
		StartTime: parseTimeParam(req.StartTime),
		EndTime:   parseTimeParam(req.EndTime),
		Limit:     h.clampLimit(req.Limit),
		Offset:    req.Offset,
	}
	if req.EventType != "" {
		filter.EventTypes = []string{req.EventType}
	}
	if req.Category != "" {
		filter.Categories = []audit.Category{audit.Category(req.Category)}
	}
	if req.Risk != "" {
		filter.Risks = []audit.RiskLevel{audit.RiskLevel(req.Risk)}
	}
	return filter
}

// categoriesParam parses a comma-separated category list.
func categoriesParam(value string) []audit.Category {
	if value == "" {
		return nil
	}
	var out []audit.Category
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, audit.Category(part))
		}
	}
	return out
}
