// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/wagerdeck/sentinel/internal/token"
)

// IssueToken issues a double-submit anti-forgery token pair for a
// session. Issuance is rate limited per identity by the token service.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req IssueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	pair, err := h.tokens.IssuePair(req.SessionID, req.ActorID)
	if err != nil {
		if errors.Is(err, token.ErrRateLimited) {
			rw.Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "token issuance rate exceeded")
			return
		}
		rw.InternalError("token issuance failed")
		return
	}
	rw.Created(pair)
}

// ValidateToken checks a token pair against its session and actor. The
// response says valid or not, never why; detail would help an attacker
// distinguish forgery from expiry.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ValidateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	valid := h.tokens.ValidatePair(req.HeaderToken, req.CookieToken, req.SessionID, req.ActorID)
	rw.Success(map[string]bool{"valid": valid})
}

// IssueCapability issues a short-lived single-purpose grant token.
func (h *Handler) IssueCapability(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req IssueCapabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	signed, err := h.tokens.IssueCapability(req.Purpose, req.Data, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		rw.InternalError("capability issuance failed")
		return
	}
	rw.Created(map[string]string{"token": signed})
}

// ValidateCapability checks a capability token against its purpose and
// returns the embedded data on success. Like the pair check, failures do
// not say why.
func (h *Handler) ValidateCapability(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ValidateCapabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validateRequest(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	data, err := h.tokens.ValidateCapability(req.Token, req.Purpose)
	if err != nil {
		rw.Success(map[string]interface{}{"valid": false})
		return
	}
	rw.Success(map[string]interface{}{"valid": true, "data": data})
}
