// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the work factor used when callers do not specify
	// one. Higher than the library default to keep pace with hardware.
	DefaultBcryptCost = 12

	// maxPasswordLength guards against bcrypt's 72-byte truncation silently
	// accepting over-long input.
	maxPasswordLength = 72
)

var (
	// ErrEmptyPassword is returned when hashing or verifying an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when the password exceeds bcrypt's limit.
	ErrPasswordTooLong = fmt.Errorf("password exceeds %d bytes", maxPasswordLength)
)

// HashPassword hashes a password with bcrypt at the given cost. Pass cost <= 0
// to use DefaultBcryptCost. The work factor is embedded in the output, so the
// cost can be raised later without invalidating stored hashes.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}
	if cost <= 0 {
		cost = DefaultBcryptCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
// The comparison cost is dominated by bcrypt itself and does not leak match
// position.
func VerifyPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordNeedsRehash reports whether a stored hash was produced at a lower
// cost than desired and should be re-hashed on next successful login.
func PasswordNeedsRehash(hash string, desiredCost int) bool {
	if desiredCost <= 0 {
		desiredCost = DefaultBcryptCost
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < desiredCost
}
