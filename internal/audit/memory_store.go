// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation for tests and
// single-node development. Entries live until their retention expires or the
// process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Save persists an entry.
func (s *MemoryStore) Save(_ context.Context, entry *Entry) error {
	if entry == nil || entry.ID == "" {
		return ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

// Get retrieves an entry by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Query retrieves entries matching the filter, ordered by timestamp.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Entry, error) {
	s.mu.RLock()
	matched := make([]Entry, 0)
	for _, e := range s.entries {
		if filter.Matches(e) {
			matched = append(matched, *e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if filter.OrderDesc {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []Entry{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of entries matching the filter.
func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes entries past their retention horizon.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, e := range s.entries {
		if e.RetainUntil.Before(now) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// tamperEntry overwrites a stored entry's field without recomputing its
// hash. Test hook only.
func (s *MemoryStore) tamperEntry(id string, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	mutate(e)
	return true
}
