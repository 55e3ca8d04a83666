// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

/*
Package metrics provides Prometheus metrics collection and export.

The package declares all collectors as package-level promauto variables so
any component can record without plumbing a registry. Metrics cover:

  - Detection engine throughput, per-rule latency, and rule errors
  - Threat and incident counts by type and severity
  - Audit queue depth, drops, write failures, and integrity failures
  - Token issuance and validation failures
  - HTTP request latency and throughput

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8480/metrics
*/
package metrics
