// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const capabilitySecretInfo = "capability-token-v1"

// ErrInvalidCapability is returned for any capability token that fails
// validation: expired, tampered, malformed, or issued for another purpose.
var ErrInvalidCapability = errors.New("invalid capability token")

// capabilityClaims carries a purpose and an opaque data map alongside the
// registered claims.
type capabilityClaims struct {
	Purpose string            `json:"purpose"`
	Data    map[string]string `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// IssueCapability creates a short-lived signed token granting a single named
// capability, e.g. an OAuth state or a download grant. Pass ttl <= 0 to use
// the configured default.
func (s *Service) IssueCapability(purpose string, data map[string]string, ttl time.Duration) (string, error) {
	if purpose == "" {
		return "", errors.New("capability purpose is required")
	}
	if ttl <= 0 {
		ttl = s.cfg.CapabilityTTL
	}

	now := s.now()
	claims := &capabilityClaims{
		Purpose: purpose,
		Data:    data,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.capSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign capability token: %w", err)
	}
	return signed, nil
}

// ValidateCapability checks a capability token against the expected purpose
// and returns its data map. All failure modes collapse into
// ErrInvalidCapability.
func (s *Service) ValidateCapability(token, purpose string) (map[string]string, error) {
	parsed, err := jwt.ParseWithClaims(token, &capabilityClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.capSecret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrInvalidCapability
	}

	claims, ok := parsed.Claims.(*capabilityClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCapability
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidCapability
	}
	return claims.Data, nil
}
