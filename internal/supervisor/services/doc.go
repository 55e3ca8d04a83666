// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package services wraps Sentinel's long-running components as
// suture.Service implementations.
//
// Each wrapper adapts a component's blocking run loop to suture's
// context-aware Serve contract and defines a narrow local interface for the
// component it supervises, so wrappers stay testable with in-package fakes
// and free of dependency cycles:
//
//   - DetectionService: the detection engine's worker pool and state janitor
//   - AuditCleanupService: retention-based audit entry purging
//   - BadgerGCService: periodic BadgerDB value-log garbage collection
//   - HTTPServerService: the API server with graceful shutdown
//
// Wrappers return ctx.Err() on orderly shutdown, which suture treats as a
// normal stop rather than a failure.
package services
