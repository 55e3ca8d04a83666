// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package validation wraps go-playground/validator v10 behind a shared,
// thread-safe instance and translates its errors into the API error
// shape.
//
// Request structs declare their constraints with `validate` tags:
//
//	type ThreatListRequest struct {
//	    Limit    int    `validate:"min=1,max=500"`
//	    Offset   int    `validate:"min=0"`
//	    SourceIP string `validate:"omitempty,ip"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
//	    return
//	}
package validation
