// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	threatKeyPrefix = "threat:"
	eventKeyPrefix  = "event:"
)

// BadgerThreatStore implements ThreatStore on BadgerDB.
type BadgerThreatStore struct {
	db *badger.DB
}

// NewBadgerThreatStore creates a BadgerDB-backed threat store.
func NewBadgerThreatStore(db *badger.DB) *BadgerThreatStore {
	return &BadgerThreatStore{db: db}
}

// SaveThreat persists a threat.
func (s *BadgerThreatStore) SaveThreat(_ context.Context, threat *Threat) error {
	if threat == nil || threat.ID == "" {
		return errors.New("threat id is required")
	}
	data, err := json.Marshal(threat)
	if err != nil {
		return fmt.Errorf("marshal threat: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(threatKeyPrefix+threat.ID), data)
	})
}

// GetThreat retrieves a threat by ID.
func (s *BadgerThreatStore) GetThreat(_ context.Context, id string) (*Threat, error) {
	var threat Threat
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(threatKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrThreatNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &threat)
		})
	})
	if err != nil {
		return nil, err
	}
	return &threat, nil
}

// ListThreats scans threats matching the filter, most recent first.
func (s *BadgerThreatStore) ListThreats(_ context.Context, filter ThreatFilter) ([]Threat, error) {
	matched, err := s.scan(&filter)
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastActivity.After(matched[j].LastActivity)
	})
	return pageThreats(matched, filter.Offset, filter.Limit), nil
}

// CountThreats returns the number of threats matching the filter.
func (s *BadgerThreatStore) CountThreats(_ context.Context, filter ThreatFilter) (int64, error) {
	matched, err := s.scan(&filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *BadgerThreatStore) scan(filter *ThreatFilter) ([]Threat, error) {
	var matched []Threat
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(threatKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var threat Threat
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &threat)
			})
			if err != nil {
				continue
			}
			if filter.Matches(&threat) {
				matched = append(matched, threat)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

// BadgerEventStore implements EventStore on BadgerDB. Events carry a TTL so
// the collection stays append-mostly without its own cleanup job.
type BadgerEventStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerEventStore creates a BadgerDB-backed event store. Events expire
// after ttl (default 30 days).
func NewBadgerEventStore(db *badger.DB, ttl time.Duration) *BadgerEventStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &BadgerEventStore{db: db, ttl: ttl}
}

// SaveEvent persists an event keyed by timestamp so prefix scans walk
// chronologically.
func (s *BadgerEventStore) SaveEvent(_ context.Context, event *SecurityEvent) error {
	if event == nil || event.ID == "" {
		return errors.New("event id is required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := []byte(eventKeyPrefix + event.Timestamp.UTC().Format(time.RFC3339Nano) + ":" + event.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
}

// RecentEvents returns an actor's events since the given time, newest
// first, up to limit.
func (s *BadgerEventStore) RecentEvents(_ context.Context, actorID string, since time.Time, limit int) ([]SecurityEvent, error) {
	var out []SecurityEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse scan from the end of the event keyspace.
		seek := []byte(eventKeyPrefix + "\xff")
		prefix := []byte(eventKeyPrefix)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var event SecurityEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				continue
			}
			if event.Timestamp.Before(since) {
				return nil
			}
			if actorID != "" && event.ActorID != actorID {
				continue
			}
			out = append(out, event)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
