// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrThreatNotFound is returned for lookups of unknown threat IDs.
var ErrThreatNotFound = errors.New("threat not found")

// MemoryThreatStore is an in-memory ThreatStore for tests and single-node
// development.
type MemoryThreatStore struct {
	mu      sync.RWMutex
	threats map[string]*Threat
}

// NewMemoryThreatStore creates an empty in-memory threat store.
func NewMemoryThreatStore() *MemoryThreatStore {
	return &MemoryThreatStore{threats: make(map[string]*Threat)}
}

// SaveThreat persists a threat.
func (s *MemoryThreatStore) SaveThreat(_ context.Context, threat *Threat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *threat
	s.threats[threat.ID] = &cp
	return nil
}

// GetThreat retrieves a threat by ID.
func (s *MemoryThreatStore) GetThreat(_ context.Context, id string) (*Threat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threats[id]
	if !ok {
		return nil, ErrThreatNotFound
	}
	cp := *t
	return &cp, nil
}

// ListThreats retrieves threats matching the filter, most recent first.
func (s *MemoryThreatStore) ListThreats(_ context.Context, filter ThreatFilter) ([]Threat, error) {
	s.mu.RLock()
	matched := make([]Threat, 0)
	for _, t := range s.threats {
		if filter.Matches(t) {
			matched = append(matched, *t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastActivity.After(matched[j].LastActivity)
	})

	return pageThreats(matched, filter.Offset, filter.Limit), nil
}

// CountThreats returns the number of threats matching the filter.
func (s *MemoryThreatStore) CountThreats(_ context.Context, filter ThreatFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.threats {
		if filter.Matches(t) {
			n++
		}
	}
	return n, nil
}

func pageThreats(matched []Threat, offset, limit int) []Threat {
	if offset > 0 {
		if offset >= len(matched) {
			return []Threat{}
		}
		matched = matched[offset:]
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// MemoryEventStore is an in-memory EventStore with a bounded ring so an
// event flood cannot grow memory without limit.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []SecurityEvent
	max    int
}

// NewMemoryEventStore creates an event store retaining up to max events.
func NewMemoryEventStore(max int) *MemoryEventStore {
	if max <= 0 {
		max = 100000
	}
	return &MemoryEventStore{max: max}
}

// SaveEvent appends an event, evicting the oldest past capacity.
func (s *MemoryEventStore) SaveEvent(_ context.Context, event *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

// RecentEvents returns an actor's events since the given time, newest
// first, up to limit.
func (s *MemoryEventStore) RecentEvents(_ context.Context, actorID string, since time.Time, limit int) ([]SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SecurityEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.Timestamp.Before(since) {
			continue
		}
		if actorID != "" && e.ActorID != actorID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of retained events.
func (s *MemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
