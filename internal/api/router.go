// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wagerdeck/sentinel/internal/middleware"
)

// RouterConfig wires the HTTP router.
type RouterConfig struct {
	Handler  *Handler
	Security *middleware.Security

	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP, applied to
	// the API groups. Zero disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter assembles the full route tree. Health and metrics bypass the
// security middleware so monitoring keeps working during an attack; the
// API groups run through detection like any other traffic.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := cfg.Handler

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.Limit(1000, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)
		if h.perf != nil {
			r.Use(h.perf.Middleware)
		}
		if cfg.Security != nil {
			r.Use(cfg.Security.Handler)
		}

		r.Post("/events", h.SubmitEvent)

		r.Route("/threats", func(r chi.Router) {
			r.Get("/", h.ListThreats)
			r.Get("/{id}", h.GetThreat)
			r.Patch("/{id}/status", h.UpdateThreatStatus)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Put("/{type}/config", h.ConfigureRule)
			r.Put("/{type}/enabled", h.SetRuleEnabled)
		})

		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", h.ListIncidents)
			r.Get("/{id}", h.GetIncident)
			r.Patch("/{id}/status", h.UpdateIncidentStatus)
			r.Post("/{id}/actions", h.AddResponseAction)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Post("/entries", h.AppendAuditEntry)
			r.Get("/entries/{id}", h.GetAuditEntry)
			r.Get("/search", h.SearchAuditEntries)
			r.Get("/verify", h.VerifyAuditIntegrity)
			r.Get("/export", h.ExportAuditLogs)
			r.Get("/report", h.GenerateComplianceReport)
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", h.IssueToken)
			r.Post("/validate", h.ValidateToken)
			r.Post("/capability", h.IssueCapability)
			r.Post("/capability/validate", h.ValidateCapability)
		})

		r.Get("/stats", h.Stats)
	})

	return r
}
