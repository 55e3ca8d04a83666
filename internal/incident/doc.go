// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package incident turns qualifying threats into trackable response cases.
//
// An incident carries a monotonic timeline (detected, reported, contained,
// resolved, closed; each stamped at most once and never out of order), an
// append-only response action log, and the evidence that justified opening
// it. The manager implements the detection engine's escalation hook: a
// critical threat either opens a new incident or merges into a recent open
// one of the same type and source, so one sustained attack never floods the
// incident queue. Incidents are never deleted, only closed.
package incident
