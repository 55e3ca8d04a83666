// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package audit provides the tamper-evident audit log store used for
// compliance and forensic analysis.
//
// # Overview
//
// The audit system provides:
//   - Append-time finalization: every entry gets an ID, UTC timestamp,
//     category-derived compliance flags, a retention horizon, and a
//     canonical integrity hash before it is persisted
//   - Asynchronous buffered writes through a circuit breaker so a slow or
//     failing store never blocks the request path; overflow drops entries
//     with a throttled warning
//   - Per-category retention enforcement; cleanup never removes an entry
//     still inside its policy window
//   - Integrity verification that raises a critical tampering event when a
//     stored entry no longer matches its hash
//   - Search with aggregations (category, risk, outcome, daily timeline)
//     computed over the full filtered set
//   - Compliance reports and exports (JSON, CSV, CEF) with a rolled-up
//     integrity proof over the included entries
//
// # Integrity
//
// The integrity hash covers a fixed canonical field set serialized in
// sorted key order. Verification of a tampering report itself is skipped via
// the IntegrityExempt flag, which is what terminates the report-about-a-report
// loop.
//
// # Stores
//
// Two Store implementations are provided: MemoryStore for tests and
// development, and BadgerStore for durable single-node production use.
package audit
