// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package services

import (
	"context"
)

// AuditJanitor matches the audit logger's retention loop. Satisfied by
// *audit.Logger.
type AuditJanitor interface {
	// RunCleanup purges expired entries on the configured interval until
	// the context is canceled.
	RunCleanup(ctx context.Context) error
}

// AuditCleanupService supervises retention-based audit purging. The async
// audit writer itself is owned by the logger and drained by Close; only
// the cleanup loop needs supervision.
type AuditCleanupService struct {
	janitor AuditJanitor
	name    string
}

// NewAuditCleanupService wraps the audit logger's cleanup loop.
func NewAuditCleanupService(janitor AuditJanitor) *AuditCleanupService {
	return &AuditCleanupService{
		janitor: janitor,
		name:    "audit-cleanup",
	}
}

// Serve implements suture.Service.
func (a *AuditCleanupService) Serve(ctx context.Context) error {
	return a.janitor.RunCleanup(ctx)
}

// String identifies the service in supervision logs.
func (a *AuditCleanupService) String() string {
	return a.name
}
