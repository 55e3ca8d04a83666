// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"net/http"
	"time"

	"github.com/wagerdeck/sentinel/internal/audit"
	"github.com/wagerdeck/sentinel/internal/detection"
	"github.com/wagerdeck/sentinel/internal/incident"
	"github.com/wagerdeck/sentinel/internal/middleware"
	"github.com/wagerdeck/sentinel/internal/token"
)

// Handler holds the services behind the HTTP surface.
type Handler struct {
	engine    *detection.Engine
	incidents *incident.Manager
	auditor   *audit.Logger
	tokens    *token.Service
	perf      *middleware.PerformanceMonitor

	defaultPageSize int
	maxPageSize     int

	startedAt time.Time
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Engine    *detection.Engine
	Incidents *incident.Manager
	Auditor   *audit.Logger
	Tokens    *token.Service
	Perf      *middleware.PerformanceMonitor

	DefaultPageSize int
	MaxPageSize     int
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = 500
	}
	return &Handler{
		engine:          cfg.Engine,
		incidents:       cfg.Incidents,
		auditor:         cfg.Auditor,
		tokens:          cfg.Tokens,
		perf:            cfg.Perf,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
		startedAt:       time.Now(),
	}
}

// clampLimit bounds a requested page size.
func (h *Handler) clampLimit(limit int) int {
	if limit <= 0 {
		return h.defaultPageSize
	}
	if limit > h.maxPageSize {
		return h.maxPageSize
	}
	return limit
}

// SubserviceHealth reports one component.
type SubserviceHealth struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// HealthStatus is the full health report.
type HealthStatus struct {
	Status        string                      `json:"status"`
	UptimeSeconds int64                       `json:"uptime_seconds"`
	Subservices   map[string]SubserviceHealth `json:"subservices"`
}

// Health reports overall and per-subservice health. Degraded components
// turn the overall status degraded but never fail the probe outright;
// liveness is HealthLive's job.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sub := make(map[string]SubserviceHealth)

	detectionStatus := "healthy"
	if !h.engine.Enabled() {
		detectionStatus = "disabled"
	}
	sub["detection"] = SubserviceHealth{
		Status:     detectionStatus,
		QueueDepth: h.engine.QueueDepth(),
	}

	auditStatus := "healthy"
	if !h.auditor.Enabled() {
		auditStatus = "disabled"
	}
	sub["audit"] = SubserviceHealth{
		Status:     auditStatus,
		QueueDepth: h.auditor.QueueDepth(),
	}

	incidentStatus := "healthy"
	if _, _, err := h.incidents.ListIncidents(r.Context(), incident.Filter{Limit: 1}); err != nil {
		incidentStatus = "unhealthy"
		sub["incidents"] = SubserviceHealth{Status: incidentStatus, Detail: err.Error()}
	} else {
		sub["incidents"] = SubserviceHealth{Status: incidentStatus}
	}

	// The token service is stateless; present means healthy.
	tokenStatus := "healthy"
	if h.tokens == nil {
		tokenStatus = "disabled"
	}
	sub["tokens"] = SubserviceHealth{Status: tokenStatus}

	overall := "healthy"
	for _, s := range sub {
		if s.Status == "unhealthy" {
			overall = "degraded"
			break
		}
	}

	rw.Success(HealthStatus{
		Status:        overall,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Subservices:   sub,
	})
}

// HealthLive is the liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe. Not ready while incident storage is
// unreachable, since escalation would fail.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if _, _, err := h.incidents.ListIncidents(r.Context(), incident.Filter{Limit: 1}); err != nil {
		rw.ServiceUnavailable("incident storage unavailable")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// Stats reports request latency percentiles from the in-process monitor.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.perf == nil {
		rw.Success([]middleware.EndpointStats{})
		return
	}
	rw.Success(h.perf.Stats())
}
