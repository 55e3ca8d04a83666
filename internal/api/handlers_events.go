// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/detection"
)

// SubmitEvent ingests a security event from another platform service.
// Analysis is asynchronous: the response confirms queuing, not the
// verdict. Services that need a synchronous block decision sit behind
// the security middleware instead.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SubmitEventRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	event := &detection.SecurityEvent{
		EventType: req.EventType,
		ActorID:   req.ActorID,
		SessionID: req.SessionID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Success:   req.Success,
	}
	if len(req.Details) > 0 {
		if err := json.Unmarshal(req.Details, &event.Details); err != nil {
			rw.BadRequest("invalid details payload")
			return
		}
	}

	if err := h.engine.Submit(r.Context(), event); err != nil {
		rw.ServiceUnavailable("event queue full")
		return
	}

	rw.Accepted(map[string]interface{}{
		"queued":      true,
		"queue_depth": h.engine.QueueDepth(),
	})
}
