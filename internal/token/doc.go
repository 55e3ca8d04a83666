// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package token issues and validates the signed tokens used by the platform:
// session-bound anti-forgery tokens, their double-submit cookie variant, and
// short-lived capability tokens for one-shot flows like OAuth state.
//
// Validation is deliberately uniform. A malformed token, an expired token, a
// session mismatch, and a bad signature all produce the same rejection, so a
// caller probing the validator learns nothing about which check failed.
//
// Header and cookie tokens are signed with independent secrets derived from
// the master secret, so a value leaked from one channel cannot be replayed
// on the other.
package token
