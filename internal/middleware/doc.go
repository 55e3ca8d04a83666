// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

/*
Package middleware provides the HTTP middleware stack.

The Security middleware is the pipeline entry point: it derives a
SecurityEvent from each request, runs the detection engine's synchronous
fast path, and blocks with a deliberately generic 403 when a high severity
threat matches. The same event is always submitted for asynchronous full
analysis, and an audit entry is appended for every auditable call through
the audit logger's non-blocking queue, so neither detection nor auditing
adds latency to the request.

RequestID, PrometheusMetrics, Compression, and the performance monitor are
supporting infrastructure shared by every route.
*/
package middleware
