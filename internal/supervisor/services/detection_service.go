// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package services

import (
	"context"
)

// AnalysisEngine matches the detection engine's run loop. Satisfied by
// *detection.Engine.
type AnalysisEngine interface {
	// Run drains the analysis queue and prunes idle window state until the
	// context is canceled.
	Run(ctx context.Context) error
}

// DetectionService supervises the detection engine. A crash in a worker or
// the state janitor restarts the whole pool; queued events survive in the
// engine's channel across restarts.
type DetectionService struct {
	engine AnalysisEngine
	name   string
}

// NewDetectionService wraps the detection engine as a supervised service.
func NewDetectionService(engine AnalysisEngine) *DetectionService {
	return &DetectionService{
		engine: engine,
		name:   "detection-engine",
	}
}

// Serve implements suture.Service.
func (d *DetectionService) Serve(ctx context.Context) error {
	return d.engine.Run(ctx)
}

// String identifies the service in supervision logs.
func (d *DetectionService) String() string {
	return d.name
}
