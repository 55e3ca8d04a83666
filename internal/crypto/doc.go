// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package crypto provides the cryptographic primitives shared by the rest of
// the service: context-bound field encryption, keyed hashing, password
// hashing, and random token generation.
//
// All operations hang off a Service constructed from the master secret. The
// constructor rejects missing or weak key material so misconfiguration is
// caught at startup rather than at first use.
//
// Field encryption is AES-256-GCM with a per-context subkey derived via
// HKDF-SHA256. Binding the key to a caller-supplied context string means a
// ciphertext produced for "user.email" cannot be decrypted by code asking
// for "payment.iban"; the attempt fails authentication and surfaces as
// ErrDecryptionFailed with no partial output.
package crypto
