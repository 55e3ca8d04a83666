// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package cache provides the in-memory data structures behind detection
// state: a TTL cache for deduplication windows, sliding-window counters for
// per-key rate statistics, and an Aho-Corasick automaton for multi-pattern
// payload matching.
package cache
