// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/detection"
)

// ListThreats returns a filtered, paged threat list, most recent activity
// first.
func (h *Handler) ListThreats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := r.URL.Query()
	req := ThreatListRequest{
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
		Status:   q.Get("status"),
		SourceIP: q.Get("source_ip"),
		ActorID:  q.Get("actor_id"),
		Limit:    getIntParam(r, "limit", h.defaultPageSize),
		Offset:   getIntParam(r, "offset", 0),
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	filter := detection.ThreatFilter{
		SourceIP:  req.SourceIP,
		ActorID:   req.ActorID,
		StartTime: parseTimeParam(q.Get("start_time")),
		EndTime:   parseTimeParam(q.Get("end_time")),
		Limit:     h.clampLimit(req.Limit),
		Offset:    req.Offset,
	}
	if req.Type != "" {
		filter.Types = []detection.ThreatType{detection.ThreatType(req.Type)}
	}
	if req.Severity != "" {
		filter.Severities = []detection.Severity{detection.Severity(req.Severity)}
	}
	if req.Status != "" {
		filter.Statuses = []detection.ThreatStatus{detection.ThreatStatus(req.Status)}
	}

	threats, total, err := h.engine.ListThreats(r.Context(), filter)
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.SuccessWithPagination(threats, &PaginationMeta{
		Total:   total,
		Count:   len(threats),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(threats)) < total,
	})
}

// GetThreat returns one threat by ID.
func (h *Handler) GetThreat(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	threat, err := h.engine.GetThreat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, detection.ErrThreatNotFound) {
			rw.NotFound("threat not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(threat)
}

// UpdateThreatStatus moves a threat through its triage workflow. Illegal
// transitions are a conflict, not a validation failure: the status value
// is fine, the current state just does not allow it.
func (h *Handler) UpdateThreatStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req UpdateThreatStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	threat, err := h.engine.UpdateThreatStatus(r.Context(), chi.URLParam(r, "id"), detection.ThreatStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, detection.ErrThreatNotFound):
			rw.NotFound("threat not found")
		case errors.Is(err, detection.ErrInvalidTransition):
			rw.Conflict(err.Error())
		default:
			rw.StorageError(err)
		}
		return
	}
	rw.Success(threat)
}

// ConfigureRule replaces a detection rule's thresholds at runtime.
func (h *Handler) ConfigureRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	threatType := detection.ThreatType(chi.URLParam(r, "type"))

	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	if err := h.engine.ConfigureRule(threatType, raw); err != nil {
		if errors.Is(err, detection.ErrUnknownRule) {
			rw.NotFound("no rule for threat type")
			return
		}
		rw.BadRequest(err.Error())
		return
	}
	rw.Success(map[string]string{"configured": string(threatType)})
}

// SetRuleEnabled toggles a detection rule.
func (h *Handler) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	threatType := detection.ThreatType(chi.URLParam(r, "type"))
	if err := h.engine.SetRuleEnabled(threatType, req.Enabled); err != nil {
		rw.NotFound("no rule for threat type")
		return
	}
	rw.Success(map[string]interface{}{
		"type":    threatType,
		"enabled": req.Enabled,
	})
}
