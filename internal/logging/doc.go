// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package logging provides centralized zerolog-based structured logging.
//
// The package exposes a configured global logger behind package-level helpers
// (Info, Warn, Error, ...), context propagation for correlation and request
// IDs, and an slog adapter so supervision via sutureslog shares the same
// output stream.
//
// Initialize once from main:
//
//	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
//
// Request handlers should prefer logging.Ctx(ctx) so correlation IDs flow
// into every line emitted for a request.
package logging
