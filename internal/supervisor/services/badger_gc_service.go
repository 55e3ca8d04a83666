// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package services

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/wagerdeck/sentinel/internal/logging"
)

const (
	defaultGCInterval   = 10 * time.Minute
	defaultDiscardRatio = 0.5
)

// BadgerGCService runs BadgerDB value-log garbage collection on a timer.
// Without it, deleted threat and audit values accumulate in the value log
// and disk usage only grows.
type BadgerGCService struct {
	db           *badger.DB
	interval     time.Duration
	discardRatio float64
	name         string
}

// NewBadgerGCService creates a GC service for an open BadgerDB. A zero
// interval falls back to the default.
func NewBadgerGCService(db *badger.DB, interval time.Duration) *BadgerGCService {
	if interval <= 0 {
		interval = defaultGCInterval
	}
	return &BadgerGCService{
		db:           db,
		interval:     interval,
		discardRatio: defaultDiscardRatio,
		name:         "badger-gc",
	}
}

// Serve implements suture.Service. Each tick reclaims value-log files until
// badger reports nothing left to rewrite.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *BadgerGCService) collect() {
	for {
		err := s.db.RunValueLogGC(s.discardRatio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			logging.Warn().Err(err).Msg("badger value log gc failed")
		}
		return
	}
}

// String identifies the service in supervision logs.
func (s *BadgerGCService) String() string {
	return s.name
}
