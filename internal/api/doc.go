// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package api exposes the Sentinel HTTP surface: event ingestion, threat
// and incident management, the audit trail, and anti-forgery tokens.
//
// Every response uses the APIResponse envelope so clients handle success
// and failure uniformly. Routing is chi with per-group rate limits; the
// security middleware wraps everything except health and metrics, so the
// platform's own management traffic is subject to the same detection
// rules as the traffic it reports on.
package api
