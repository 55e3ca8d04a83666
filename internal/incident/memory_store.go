// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package incident

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory incident store for tests and single-node
// development.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*Incident
}

// NewMemoryStore creates an empty in-memory incident store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{incidents: make(map[string]*Incident)}
}

// SaveIncident persists an incident.
func (s *MemoryStore) SaveIncident(_ context.Context, incident *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *incident
	s.incidents[incident.ID] = &cp
	return nil
}

// GetIncident retrieves an incident by ID.
func (s *MemoryStore) GetIncident(_ context.Context, id string) (*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

// ListIncidents retrieves incidents matching the filter, most recently
// updated first.
func (s *MemoryStore) ListIncidents(_ context.Context, filter Filter) ([]Incident, error) {
	s.mu.RLock()
	matched := make([]Incident, 0)
	for _, i := range s.incidents {
		if filter.Matches(i) {
			matched = append(matched, *i)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	return pageIncidents(matched, filter.Offset, filter.Limit), nil
}

// CountIncidents returns the number of incidents matching the filter.
func (s *MemoryStore) CountIncidents(_ context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, i := range s.incidents {
		if filter.Matches(i) {
			n++
		}
	}
	return n, nil
}

func pageIncidents(matched []Incident, offset, limit int) []Incident {
	if offset > 0 {
		if offset >= len(matched) {
			return []Incident{}
		}
		matched = matched[offset:]
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
