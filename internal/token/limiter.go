// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package token

import (
	"sync"
	"time"
)

// issueLimiter applies a fixed-window hourly cap per identity. A fixed
// window is cheap and the counter resets on the hour; brief overshoot at the
// window boundary is acceptable for issuance limiting.
type issueLimiter struct {
	mu      sync.Mutex
	max     int
	windows map[string]*issueWindow
}

type issueWindow struct {
	start time.Time
	count int
}

func newIssueLimiter(maxPerHour int) *issueLimiter {
	return &issueLimiter{
		max:     maxPerHour,
		windows: make(map[string]*issueWindow),
	}
}

// allow records one issuance for identity and reports whether it is within
// the current hour's allowance.
func (l *issueLimiter) allow(identity string, now time.Time) bool {
	windowStart := now.Truncate(time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || w.start.Before(windowStart) {
		l.windows[identity] = &issueWindow{start: windowStart, count: 1}
		return true
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// cleanup drops windows older than the current hour. Called periodically by
// the janitor service.
func (l *issueLimiter) cleanup(now time.Time) int {
	windowStart := now.Truncate(time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		if w.start.Before(windowStart) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Cleanup removes expired issuance windows and returns how many were dropped.
func (s *Service) Cleanup() int {
	return s.limiter.cleanup(s.now())
}
