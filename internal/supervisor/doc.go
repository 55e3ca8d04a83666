// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package supervisor builds the suture v4 supervision tree for the Sentinel
// server process.
//
// The tree has three child supervisors under one root:
//
//	sentinel
//	├── storage-layer   BadgerDB value-log GC, audit retention cleanup
//	├── analysis-layer  detection engine worker pool
//	└── api-layer       HTTP server
//
// Long-running components are wrapped as suture.Service implementations in
// the services subpackage. A panic or returned error restarts only the
// failed service; repeated failures back off per the TreeConfig thresholds.
// Supervision events are routed through sutureslog into the application's
// zerolog stream via the logging package's slog adapter.
package supervisor
