// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// canonicalFieldCount is the size of the fixed field set covered by the
// integrity hash. Adding a field to the Entry struct does not change hashes
// of existing entries unless it joins this set, which would be a breaking
// format change.
const canonicalFieldCount = 10

// ComputeIntegrityHash returns the hex SHA-256 of the entry's canonical
// representation. The representation serializes a fixed set of fields in
// sorted key order, so two entries with identical canonical content always
// hash identically regardless of how the struct was populated.
func ComputeIntegrityHash(e *Entry) string {
	fields := map[string]string{
		"action":         e.Action,
		"actor_id":       e.ActorID,
		"admin_id":       e.AdminID,
		"category":       string(e.Category),
		"correlation_id": e.CorrelationID,
		"event_type":     e.EventType,
		"ip_address":     e.IPAddress,
		"resource":       e.Resource,
		"success":        strconv.FormatBool(e.Success),
		"timestamp":      e.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	keys := make([]string, 0, canonicalFieldCount)
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyEntry recomputes the canonical hash and compares it to the stored
// one. Exempt entries (tampering reports) always pass.
func VerifyEntry(e *Entry) bool {
	if e.IntegrityExempt {
		return true
	}
	return ComputeIntegrityHash(e) == e.IntegrityHash
}

// ComputeExportProof produces the rolled-up integrity proof for an export:
// the hex SHA-256 over the concatenation of the included entries' hashes in
// export order. Changing, removing, or reordering any entry changes the proof.
func ComputeExportProof(entries []Entry) string {
	h := sha256.New()
	for i := range entries {
		h.Write([]byte(entries[i].IntegrityHash))
	}
	return hex.EncodeToString(h.Sum(nil))
}
