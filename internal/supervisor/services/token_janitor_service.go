// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package services

import (
	"context"
	"time"

	"github.com/wagerdeck/sentinel/internal/logging"
)

const defaultTokenJanitorInterval = 15 * time.Minute

// TokenJanitor matches the token service's limiter sweep. Satisfied by
// *token.Service.
type TokenJanitor interface {
	// Cleanup drops expired per-identity issuance windows and returns how
	// many were removed.
	Cleanup() int
}

// TokenJanitorService sweeps the token issuance limiter on a timer. The
// limiter tracks a fixed window per identity and windows from past hours
// stay resident until swept.
type TokenJanitorService struct {
	janitor  TokenJanitor
	interval time.Duration
	name     string
}

// NewTokenJanitorService creates the sweep service. A zero interval falls
// back to the default.
func NewTokenJanitorService(janitor TokenJanitor, interval time.Duration) *TokenJanitorService {
	if interval <= 0 {
		interval = defaultTokenJanitorInterval
	}
	return &TokenJanitorService{
		janitor:  janitor,
		interval: interval,
		name:     "token-janitor",
	}
}

// Serve implements suture.Service.
func (s *TokenJanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.janitor.Cleanup(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("swept expired token issuance windows")
			}
		}
	}
}

// String identifies the service in supervision logs.
func (s *TokenJanitorService) String() string {
	return s.name
}
