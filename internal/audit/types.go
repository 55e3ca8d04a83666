// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package audit provides the tamper-evident audit log store.
// It records security-relevant events for compliance and forensic analysis.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Category classifies an audit entry and determines its retention period.
type Category string

const (
	CategoryDataAccess       Category = "data_access"
	CategoryDataModification Category = "data_modification"
	CategoryAuthentication   Category = "authentication"
	CategoryAuthorization    Category = "authorization"
	CategorySystemAccess     Category = "system_access"
	CategorySecurityEvent    Category = "security_event"
	CategoryConfiguration    Category = "configuration"
)

// retentionPeriods maps each category to its mandated retention.
// Financial-data trails keep the longest horizon; plain system access the
// shortest.
var retentionPeriods = map[Category]time.Duration{
	CategoryDataAccess:       7 * 365 * 24 * time.Hour,
	CategoryDataModification: 7 * 365 * 24 * time.Hour,
	CategoryAuthentication:   2 * 365 * 24 * time.Hour,
	CategoryAuthorization:    2 * 365 * 24 * time.Hour,
	CategorySystemAccess:     1 * 365 * 24 * time.Hour,
	CategorySecurityEvent:    5 * 365 * 24 * time.Hour,
	CategoryConfiguration:    3 * 365 * 24 * time.Hour,
}

// DefaultRetention is used for unknown categories, matching the longest
// period so a misclassified entry is never deleted early.
const DefaultRetention = 7 * 365 * 24 * time.Hour

// RetentionFor returns the retention period for a category.
func RetentionFor(category Category) time.Duration {
	if d, ok := retentionPeriods[category]; ok {
		return d
	}
	return DefaultRetention
}

// ValidCategory reports whether category is one of the known values.
func ValidCategory(category Category) bool {
	_, ok := retentionPeriods[category]
	return ok
}

// RiskLevel grades an entry for search aggregation and alerting.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// EventTypeTampering is the event type recorded when integrity verification
// detects a modified entry.
const EventTypeTampering = "audit_log_tampering"

// Entry is a single audit record. IntegrityHash covers a fixed canonical
// field set and is computed once at append time; any later change to those
// fields is detectable.
type Entry struct {
	// ID is a unique identifier for this entry.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// EventType names the specific event, e.g. "login_failure" or "bet_placed".
	EventType string `json:"event_type"`

	// Category determines retention and compliance handling.
	Category Category `json:"category"`

	// Risk grades the entry for aggregation.
	Risk RiskLevel `json:"risk"`

	// ActorID is the end user the entry concerns, if any.
	ActorID string `json:"actor_id,omitempty"`

	// AdminID is the operator who performed the action, if any.
	AdminID string `json:"admin_id,omitempty"`

	// IPAddress of the client.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent of the client.
	UserAgent string `json:"user_agent,omitempty"`

	// Resource is the object acted on, e.g. "wallet" or "bet:1234".
	Resource string `json:"resource,omitempty"`

	// Action describes what was done, e.g. "update" or "export".
	Action string `json:"action,omitempty"`

	// Success indicates whether the action succeeded.
	Success bool `json:"success"`

	// Details contains event-specific metadata.
	Details json.RawMessage `json:"details,omitempty"`

	// SensitiveData holds encrypted payload material. Callers pass plaintext
	// to the logger, which encrypts before persisting; it is never stored or
	// exported in the clear.
	SensitiveData string `json:"sensitive_data,omitempty"`

	// CorrelationID links related entries.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID from the originating HTTP request.
	RequestID string `json:"request_id,omitempty"`

	// ComplianceFlags are derived from the category at append time.
	ComplianceFlags []string `json:"compliance_flags,omitempty"`

	// RetainUntil is the earliest time this entry may be deleted.
	RetainUntil time.Time `json:"retain_until"`

	// IntegrityHash is the canonical hash computed at append time.
	IntegrityHash string `json:"integrity_hash"`

	// IntegrityExempt marks entries excluded from verification. Set only on
	// tampering reports themselves, so a report about a bad hash does not
	// trigger another report.
	IntegrityExempt bool `json:"integrity_exempt,omitempty"`
}

// complianceFlagsFor derives the regulatory flags attached to a category.
func complianceFlagsFor(category Category) []string {
	switch category {
	case CategoryDataAccess:
		return []string{"gdpr", "pci_dss"}
	case CategoryDataModification:
		return []string{"gdpr", "pci_dss", "sox"}
	case CategoryAuthentication, CategoryAuthorization, CategorySystemAccess:
		return []string{"iso27001"}
	case CategorySecurityEvent:
		return []string{"gdpr", "iso27001"}
	case CategoryConfiguration:
		return []string{"sox", "iso27001"}
	default:
		return nil
	}
}

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("audit entry not found")

	// ErrIntegrityViolation is returned when a stored entry's canonical hash
	// no longer matches its content.
	ErrIntegrityViolation = errors.New("audit entry integrity violation")

	// ErrStorageUnavailable is returned when the backing store cannot be
	// reached. Callers on the hot path treat this as degradable.
	ErrStorageUnavailable = errors.New("audit storage unavailable")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("invalid audit entry")
)

// Store defines the interface for audit entry persistence.
type Store interface {
	// Save persists an entry.
	Save(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by ID.
	Get(ctx context.Context, id string) (*Entry, error)

	// Query retrieves entries matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Entry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// DeleteExpired removes entries whose RetainUntil has passed.
	// Entries still inside their retention period are never touched.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	// EventTypes filters by event type.
	EventTypes []string `json:"event_types,omitempty"`

	// Categories filters by category.
	Categories []Category `json:"categories,omitempty"`

	// Risks filters by risk level.
	Risks []RiskLevel `json:"risks,omitempty"`

	// ActorID filters by actor.
	ActorID string `json:"actor_id,omitempty"`

	// AdminID filters by administrator.
	AdminID string `json:"admin_id,omitempty"`

	// IPAddress filters by source IP.
	IPAddress string `json:"ip_address,omitempty"`

	// Resource filters by resource.
	Resource string `json:"resource,omitempty"`

	// Success filters by outcome when non-nil.
	Success *bool `json:"success,omitempty"`

	// StartTime is the beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// CorrelationID filters by correlation ID.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`

	// OrderDesc sorts newest-first when true.
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:     100,
		OrderDesc: true,
	}
}

// Matches reports whether an entry passes the filter's predicates (ignoring
// Limit and Offset). Shared by the memory and badger stores.
func (f *QueryFilter) Matches(e *Entry) bool {
	if len(f.EventTypes) > 0 && !containsString(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if c == e.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Risks) > 0 {
		found := false
		for _, r := range f.Risks {
			if r == e.Risk {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ActorID != "" && f.ActorID != e.ActorID {
		return false
	}
	if f.AdminID != "" && f.AdminID != e.AdminID {
		return false
	}
	if f.IPAddress != "" && f.IPAddress != e.IPAddress {
		return false
	}
	if f.Resource != "" && f.Resource != e.Resource {
		return false
	}
	if f.Success != nil && *f.Success != e.Success {
		return false
	}
	if f.CorrelationID != "" && f.CorrelationID != e.CorrelationID {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
