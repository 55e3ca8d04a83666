// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"time"
)

// fakeState returns canned window counts so rule tests can pin thresholds
// without replaying event streams.
type fakeState struct {
	ipFailures       map[string]int64
	actorFailures    map[string]int64
	actorFailureIPs  map[string]int
	ipRequests       map[string]int64
	ipMethods        map[string]int
	actorIPs         map[string]int
	actorTotal       map[string]int64
	actorFailed      map[string]int64
	sensitiveChanges map[string]int64
	lastLocation     map[string]GeoPoint
}

func newFakeState() *fakeState {
	return &fakeState{
		ipFailures:       make(map[string]int64),
		actorFailures:    make(map[string]int64),
		actorFailureIPs:  make(map[string]int),
		ipRequests:       make(map[string]int64),
		ipMethods:        make(map[string]int),
		actorIPs:         make(map[string]int),
		actorTotal:       make(map[string]int64),
		actorFailed:      make(map[string]int64),
		sensitiveChanges: make(map[string]int64),
		lastLocation:     make(map[string]GeoPoint),
	}
}

func (s *fakeState) Observe(_ *SecurityEvent) {}

func (s *fakeState) IPFailures(ip string) int64 {
	return s.ipFailures[ip]
}

func (s *fakeState) ActorFailures(actorID string) (int64, int) {
	return s.actorFailures[actorID], s.actorFailureIPs[actorID]
}

func (s *fakeState) IPRequests(ip string) (int64, int) {
	return s.ipRequests[ip], s.ipMethods[ip]
}

func (s *fakeState) ActorIPs(actorID string) int {
	return s.actorIPs[actorID]
}

func (s *fakeState) ActorOutcomes(actorID string) (int64, int64) {
	return s.actorTotal[actorID], s.actorFailed[actorID]
}

func (s *fakeState) LastLocation(actorID string) (GeoPoint, bool) {
	point, ok := s.lastLocation[actorID]
	return point, ok
}

func (s *fakeState) SensitiveChanges(actorID string) int64 {
	return s.sensitiveChanges[actorID]
}

func loginFailure(ip, actorID string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLoginFailure,
		ActorID:   actorID,
		IPAddress: ip,
		Details: EventDetails{
			Kind: DetailAuth,
			Auth: &AuthDetails{Method: "password", FailureReason: "bad_credentials"},
		},
	}
}

func requestEvent(ip, method, path, query, body string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventRequest,
		IPAddress: ip,
		Success:   true,
		Details: EventDetails{
			Kind: DetailRequest,
			Request: &RequestDetails{
				Method: method,
				Path:   path,
				Query:  query,
				Body:   body,
			},
		},
	}
}

func changeEvent(actorID, eventType string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ActorID:   actorID,
		IPAddress: "203.0.113.10",
		Success:   true,
		Details: EventDetails{
			Kind:   DetailChange,
			Change: &ChangeDetails{Field: eventType},
		},
	}
}
