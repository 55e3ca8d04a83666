// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package incident

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const incidentKeyPrefix = "incident:"

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed incident store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// SaveIncident persists an incident.
func (s *BadgerStore) SaveIncident(_ context.Context, incident *Incident) error {
	if incident == nil || incident.ID == "" {
		return errors.New("incident id is required")
	}
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(incidentKeyPrefix+incident.ID), data)
	})
}

// GetIncident retrieves an incident by ID.
func (s *BadgerStore) GetIncident(_ context.Context, id string) (*Incident, error) {
	var incident Incident
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(incidentKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &incident)
		})
	})
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// ListIncidents scans incidents matching the filter, most recently updated
// first.
func (s *BadgerStore) ListIncidents(_ context.Context, filter Filter) ([]Incident, error) {
	matched, err := s.scan(&filter)
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return pageIncidents(matched, filter.Offset, filter.Limit), nil
}

// CountIncidents returns the number of incidents matching the filter.
func (s *BadgerStore) CountIncidents(_ context.Context, filter Filter) (int64, error) {
	matched, err := s.scan(&filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *BadgerStore) scan(filter *Filter) ([]Incident, error) {
	var matched []Incident
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(incidentKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var incident Incident
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &incident)
			})
			if err != nil {
				continue
			}
			if filter.Matches(&incident) {
				matched = append(matched, incident)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}
