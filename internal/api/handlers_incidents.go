// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wagerdeck/sentinel/internal/detection"
	"github.com/wagerdeck/sentinel/internal/incident"
)

// ListIncidents returns a filtered, paged incident list, most recently
// updated first.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := r.URL.Query()
	req := IncidentListRequest{
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

	filter := incident.Filter{
		SourceIP: req.SourceIP,
		ActorID:  req.ActorID,
		Limit:    h.clampLimit(req.Limit),
		Offset:   req.Offset,
	}
	if req.Type != "" {
		filter.Types = []detection.ThreatType{detection.ThreatType(req.Type)}
	}
	if req.Severity != "" {
		filter.Severities = []detection.Severity{detection.Severity(req.Severity)}
	}
	if req.Status != "" {
		filter.Statuses = []incident.Status{incident.Status(req.Status)}
	}

	incidents, total, err := h.incidents.ListIncidents(r.Context(), filter)
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.SuccessWithPagination(incidents, &PaginationMeta{
		Total:   total,
		Count:   len(incidents),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(incidents)) < total,
	})
}

// GetIncident returns one incident by ID.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	inc, err := h.incidents.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			rw.NotFound("incident not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(inc)
}

// UpdateIncidentStatus moves an incident through its lifecycle. The
// timeline stamps follow from the transition; callers never set
// timestamps directly.
func (h *Handler) UpdateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req UpdateIncidentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	inc, err := h.incidents.UpdateStatus(r.Context(), chi.URLParam(r, "id"), incident.Status(req.Status), req.PerformedBy)
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			rw.NotFound("incident not found")
		case errors.Is(err, incident.ErrInvalidTransition), errors.Is(err, incident.ErrTimelineViolation):
			rw.Conflict(err.Error())
		default:
			rw.StorageError(err)
		}
		return
	}
	rw.Success(inc)
}

// AddResponseAction appends an action to an incident's forensic log.
func (h *Handler) AddResponseAction(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req AddResponseActionRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	inc, err := h.incidents.AddResponseAction(r.Context(), chi.URLParam(r, "id"), incident.ResponseAction{
		Action:      req.Action,
		PerformedBy: req.PerformedBy,
		Result:      req.Result,
	})
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			rw.NotFound("incident not found")
		case errors.Is(err, incident.ErrClosed):
			rw.Conflict("incident is closed")
		default:
			rw.StorageError(err)
		}
		return
	}
	rw.Created(inc)
}
