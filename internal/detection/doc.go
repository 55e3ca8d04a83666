// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package detection implements the threat detection engine: sliding-window
// state per actor and source IP, an independent rule set evaluated against a
// stream of security events, deduplication of repeat detections, and
// synchronous escalation of critical threats into incidents.
//
// Rules run in two modes. The fast path evaluates a cheap synchronous subset
// (injection patterns, rate counters) so the request middleware can block a
// call before it completes. The full path runs asynchronously off a bounded
// queue and covers the correlated and statistical rules as well.
//
// Detection state is process-local by default. When Sentinel runs as multiple
// instances the State implementation must be backed by shared storage, or an
// attacker spreading requests across instances dilutes every counter below
// its threshold.
package detection
