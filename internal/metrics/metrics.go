// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection engine metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_events_processed_total",
			Help: "Total number of security events processed by the detection engine",
		},
		[]string{"path"}, // "fast", "full"
	)

	ThreatsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_threats_total",
			Help: "Total number of threats detected",
		},
		[]string{"type", "severity"},
	)

	ThreatsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_threats_deduplicated_total",
			Help: "Total number of detections folded into an existing threat",
		},
	)

	RuleEvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detection_rule_duration_seconds",
			Help:    "Duration of individual rule evaluations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"rule"},
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_rule_errors_total",
			Help: "Total number of rule evaluation errors (rule isolated, event continues)",
		},
		[]string{"rule"},
	)

	AnalysisQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detection_analysis_queue_depth",
			Help: "Current depth of the async full-analysis queue",
		},
	)

	AnalysisEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_analysis_events_dropped_total",
			Help: "Total number of events dropped from the full-analysis queue",
		},
	)

	// Incident metrics
	IncidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_created_total",
			Help: "Total number of incidents created",
		},
		[]string{"severity"},
	)

	IncidentsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incidents_merged_total",
			Help: "Total number of threats merged into open incidents",
		},
	)

	OpenIncidents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "incidents_open",
			Help: "Current number of open incidents",
		},
	)

	// Audit log metrics
	AuditEntriesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_entries_written_total",
			Help: "Total number of audit entries written",
		},
		[]string{"category"},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_queue_depth",
			Help: "Current depth of the async audit write queue",
		},
	)

	AuditEntriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_dropped_total",
			Help: "Total number of audit entries dropped due to a full queue",
		},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of failed audit store writes",
		},
	)

	AuditIntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_integrity_failures_total",
			Help: "Total number of audit entries that failed integrity verification",
		},
	)

	// Request security middleware metrics
	RequestsBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_requests_blocked_total",
			Help: "Total number of requests blocked by the security middleware",
		},
		[]string{"reason"},
	)

	// Token service metrics
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Total number of tokens issued",
		},
		[]string{"kind"}, // "antiforgery", "pair", "capability"
	)

	TokenValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validation_failures_total",
			Help: "Total number of token validation rejections",
		},
		[]string{"kind"},
	)

	TokenIssueRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_issue_rate_limited_total",
			Help: "Total number of token issuance requests rejected by the hourly cap",
		},
	)

	// HTTP API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// System metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRuleEvaluation records one rule evaluation and its outcome.
func RecordRuleEvaluation(rule string, duration time.Duration, err error) {
	RuleEvaluationDuration.WithLabelValues(rule).Observe(duration.Seconds())
	if err != nil {
		RuleErrors.WithLabelValues(rule).Inc()
	}
}

// RecordThreat records a detected threat.
func RecordThreat(threatType, severity string) {
	ThreatsDetected.WithLabelValues(threatType, severity).Inc()
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
