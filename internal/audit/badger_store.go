// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key layout. The time-ordered key carries a fixed-width UTC timestamp so
// the keys sort chronologically; the value is the entry ID. Time-bounded
// queries seek into this index instead of walking every entry.
const (
	auditKeyPrefix     = "audit:"
	auditTimeKeyPrefix = "audit_time:"

	// auditTimeLayout pads nanoseconds to keep keys fixed width. RFC3339Nano
	// trims trailing zeros and would break lexicographic ordering.
	auditTimeLayout = "2006-01-02T15:04:05.000000000"
)

func auditTimeKey(ts time.Time, id string) []byte {
	return []byte(auditTimeKeyPrefix + ts.UTC().Format(auditTimeLayout) + ":" + id)
}

// BadgerStore implements Store on BadgerDB for durable single-node storage.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed audit store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Save persists an entry and its time index key.
func (s *BadgerStore) Save(_ context.Context, entry *Entry) error {
	if entry == nil || entry.ID == "" {
		return ErrInvalidEntry
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(auditKeyPrefix+entry.ID), data); err != nil {
			return fmt.Errorf("set entry: %w", err)
		}

		if err := txn.Set(auditTimeKey(entry.Timestamp, entry.ID), []byte(entry.ID)); err != nil {
			return fmt.Errorf("set time index: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *BadgerStore) Get(_ context.Context, id string) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(auditKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &entry, nil
}

// Query scans entries matching the filter, ordered by timestamp.
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	matched, err := s.scan(ctx, &filter)
	if err != nil {
		return nil, err
	}

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
func (s *BadgerStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	matched, err := s.scan(ctx, &filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// scan collects entries matching the filter. Time-bounded filters walk the
// time index between the bounds; unbounded filters walk the full entry
// prefix.
func (s *BadgerStore) scan(ctx context.Context, filter *QueryFilter) ([]Entry, error) {
	if filter.StartTime != nil || filter.EndTime != nil {
		return s.scanTimeRange(ctx, filter)
	}

	var matched []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(auditKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				continue
			}
			if filter.Matches(&entry) {
				matched = append(matched, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return matched, nil
}

// scanTimeRange seeks the time index to the start bound and stops past the
// end bound, loading only entries inside the window.
func (s *BadgerStore) scanTimeRange(_ context.Context, filter *QueryFilter) ([]Entry, error) {
	seek := []byte(auditTimeKeyPrefix)
	if filter.StartTime != nil {
		seek = []byte(auditTimeKeyPrefix + filter.StartTime.UTC().Format(auditTimeLayout))
	}
	var upper string
	if filter.EndTime != nil {
		upper = filter.EndTime.UTC().Format(auditTimeLayout)
	}

	var matched []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(auditTimeKeyPrefix)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if upper != "" {
				key := item.Key()
				ts := string(key[len(prefix):])
				if len(ts) > len(upper) {
					ts = ts[:len(upper)]
				}
				// Keys sort chronologically; the end bound is inclusive.
				if ts > upper {
					break
				}
			}

			var id []byte
			if err := item.Value(func(val []byte) error {
				id = append(id[:0], val...)
				return nil
			}); err != nil {
				continue
			}

			entryItem, err := txn.Get(append([]byte(auditKeyPrefix), id...))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get indexed entry: %w", err)
			}
			var entry Entry
			if err := entryItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if filter.Matches(&entry) {
				matched = append(matched, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return matched, nil
}

// DeleteExpired removes entries past their retention horizon, along with
// their time index keys. In-policy entries are never deleted.
func (s *BadgerStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	type expired struct {
		id string
		ts time.Time
	}
	var toDelete []expired

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(auditKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				continue
			}
			if entry.RetainUntil.Before(now) {
				toDelete = append(toDelete, expired{id: entry.ID, ts: entry.Timestamp})
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var deleted int64
	for _, e := range toDelete {
		err := s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete([]byte(auditKeyPrefix + e.id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete(auditTimeKey(e.ts, e.id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return nil
		})
		if err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}
