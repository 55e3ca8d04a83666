// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"math"
	"time"

	"github.com/goccy/go-json"
)

// CoordinateEpsilon is the threshold for considering coordinates as
// effectively zero. The sentinel value (0, 0) means geolocation is
// unavailable; epsilon comparison avoids direct float equality.
const CoordinateEpsilon = 1e-7

// IsUnknownLocation returns true if the coordinates represent an unknown
// location.
func IsUnknownLocation(lat, lon float64) bool {
	return math.Abs(lat) < CoordinateEpsilon && math.Abs(lon) < CoordinateEpsilon
}

// ThreatType identifies the detection rule family that produced a threat.
type ThreatType string

const (
	ThreatBruteForce         ThreatType = "brute_force"
	ThreatDDoS               ThreatType = "ddos"
	ThreatSQLInjection       ThreatType = "sql_injection"
	ThreatXSS                ThreatType = "xss"
	ThreatSuspiciousActivity ThreatType = "suspicious_activity"
	ThreatImpossibleTravel   ThreatType = "impossible_travel"
	ThreatAccountTakeover    ThreatType = "account_takeover"
	ThreatAuditTampering     ThreatType = "audit_log_tampering"
)

// Severity indicates how serious a threat is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at or above the given severity.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// ThreatStatus tracks a threat through the response workflow.
type ThreatStatus string

const (
	StatusDetected      ThreatStatus = "detected"
	StatusInvestigating ThreatStatus = "investigating"
	StatusContained     ThreatStatus = "contained"
	StatusResolved      ThreatStatus = "resolved"
	StatusFalsePositive ThreatStatus = "false_positive"
)

// threatTransitions defines the allowed status changes.
var threatTransitions = map[ThreatStatus][]ThreatStatus{
	StatusDetected:      {StatusInvestigating, StatusContained, StatusResolved, StatusFalsePositive},
	StatusInvestigating: {StatusContained, StatusResolved, StatusFalsePositive},
	StatusContained:     {StatusResolved},
}

// CanTransition reports whether a threat may move from one status to another.
func CanTransition(from, to ThreatStatus) bool {
	for _, allowed := range threatTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DetailKind tags which detail payload a security event carries.
type DetailKind string

const (
	DetailNone    DetailKind = ""
	DetailRequest DetailKind = "request"
	DetailAuth    DetailKind = "auth"
	DetailChange  DetailKind = "change"
)

// RequestDetails describes the HTTP request behind an event.
type RequestDetails struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Query      string `json:"query,omitempty"`
	Body       string `json:"body,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// AuthDetails describes an authentication attempt.
type AuthDetails struct {
	Method        string `json:"method,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ChangeDetails describes a modification to a sensitive account field.
// Values are carried as hashes so the event stream never holds the data.
type ChangeDetails struct {
	Field        string `json:"field"`
	OldValueHash string `json:"old_value_hash,omitempty"`
	NewValueHash string `json:"new_value_hash,omitempty"`
}

// EventDetails is a tagged detail payload. Kind names the populated field;
// at most one of the pointers is non-nil.
type EventDetails struct {
	Kind    DetailKind      `json:"kind,omitempty"`
	Request *RequestDetails `json:"request,omitempty"`
	Auth    *AuthDetails    `json:"auth,omitempty"`
	Change  *ChangeDetails  `json:"change,omitempty"`
}

// Event types produced by the middleware and collaborators.
const (
	EventLoginFailure = "login_failure"
	EventLoginSuccess = "login_success"
	EventRequest      = "request"

	EventPasswordChange    = "password_change"
	EventEmailChange       = "email_change"
	EventPhoneChange       = "phone_change"
	EventMFADisabled       = "mfa_disabled"
	EventRecoveryEmailUse  = "recovery_email_use"
	EventPayoutMethodEdit  = "payout_method_change"
	EventSuspiciousLogin   = "suspicious_login"
	EventSecurityQuestions = "security_question_change"
)

// sensitiveChangeEvents are the account-takeover signals clustered by the
// takeover rule.
var sensitiveChangeEvents = map[string]struct{}{
	EventPasswordChange:    {},
	EventEmailChange:       {},
	EventPhoneChange:       {},
	EventMFADisabled:       {},
	EventRecoveryEmailUse:  {},
	EventPayoutMethodEdit:  {},
	EventSuspiciousLogin:   {},
	EventSecurityQuestions: {},
}

// IsSensitiveChange reports whether an event type is an account-takeover
// signal.
func IsSensitiveChange(eventType string) bool {
	_, ok := sensitiveChangeEvents[eventType]
	return ok
}

// SecurityEvent is the unit of analysis: one observed action, derived from a
// request or reported by a collaborator.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`

	ActorID   string `json:"actor_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent,omitempty"`
	Success   bool   `json:"success"`

	Details EventDetails `json:"details,omitempty"`

	// Geolocation, resolved from the source IP. Never trusted from the
	// client: the engine overwrites any caller-supplied coordinates with
	// the resolver's answer.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// Evidence is one observation folded into a threat.
type Evidence struct {
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// Threat is a detector's conclusion about malicious or anomalous activity.
type Threat struct {
	ID            string       `json:"id"`
	Type          ThreatType   `json:"type"`
	Severity      Severity     `json:"severity"`
	Status        ThreatStatus `json:"status"`
	SourceIP      string       `json:"source_ip,omitempty"`
	TargetActorID string       `json:"target_actor_id,omitempty"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`

	// Indicators carries rule-specific structured evidence.
	Indicators json.RawMessage `json:"indicators,omitempty"`

	Evidence      []Evidence `json:"evidence,omitempty"`
	Count         int64      `json:"count"`
	FirstDetected time.Time  `json:"first_detected"`
	LastActivity  time.Time  `json:"last_activity"`

	// IncidentID links the threat to its escalated incident, if any.
	IncidentID string `json:"incident_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DedupKey identifies the active deduplication window for a threat.
func (t *Threat) DedupKey() string {
	return dedupKey(t.Type, t.SourceIP, t.TargetActorID)
}

func dedupKey(threatType ThreatType, sourceIP, actorID string) string {
	return string(threatType) + "|" + sourceIP + "|" + actorID
}

// Active reports whether the threat still holds its dedup window. Resolved
// and false-positive threats give up the window early.
func (t *Threat) Active() bool {
	return t.Status != StatusResolved && t.Status != StatusFalsePositive
}

// newThreat builds a freshly detected threat from the triggering event.
func newThreat(event *SecurityEvent, threatType ThreatType, severity Severity, title, description string, indicators json.RawMessage) *Threat {
	now := event.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &Threat{
		Type:          threatType,
		Severity:      severity,
		Status:        StatusDetected,
		SourceIP:      event.IPAddress,
		TargetActorID: event.ActorID,
		Title:         title,
		Description:   description,
		Indicators:    indicators,
		Evidence: []Evidence{{
			Timestamp: now,
			EventID:   event.ID,
		}},
		Count:         1,
		FirstDetected: now,
		LastActivity:  now,
		UpdatedAt:     now,
	}
}

// Rule is a single detection rule. Rules are independent: one rule failing
// must not stop the others, and each guards its own configuration.
type Rule interface {
	// Type returns the threat type this rule produces.
	Type() ThreatType

	// Fast reports whether the rule is cheap enough for the synchronous
	// request path.
	Fast() bool

	// Evaluate checks the event against the rule. On the full analysis
	// path state already includes the event itself; on the fast path it
	// may not.
	Evaluate(ctx context.Context, event *SecurityEvent, state State) ([]*Threat, error)

	// Configure updates the rule's thresholds.
	Configure(config json.RawMessage) error

	Enabled() bool
	SetEnabled(enabled bool)
}

// State is the sliding-window store shared by all rules. Implementations
// must be safe for concurrent use; the default is process-local and sharded,
// a multi-instance deployment needs a shared backend.
type State interface {
	// Observe folds an event into the windows.
	Observe(event *SecurityEvent)

	// IPFailures returns authentication failures from an IP in the brute
	// force window.
	IPFailures(ip string) int64

	// ActorFailures returns authentication failures against an actor in
	// the brute force window, and the distinct source IPs involved.
	ActorFailures(actorID string) (count int64, distinctIPs int)

	// IPRequests returns the request count from an IP in the flood window,
	// and the distinct methods seen.
	IPRequests(ip string) (count int64, distinctMethods int)

	// ActorIPs returns the distinct source IPs for an actor in the
	// behavior window.
	ActorIPs(actorID string) int

	// ActorOutcomes returns total and failed events for an actor in the
	// behavior window.
	ActorOutcomes(actorID string) (total, failed int64)

	// LastLocation returns the actor's most recent geotagged observation
	// prior to the current event.
	LastLocation(actorID string) (GeoPoint, bool)

	// SensitiveChanges returns the actor's sensitive-change count in the
	// takeover window.
	SensitiveChanges(actorID string) int64
}

// GeoPoint is a geotagged observation.
type GeoPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	City      string    `json:"city,omitempty"`
	Country   string    `json:"country,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GeoResolver maps a source IP to a location. Client-supplied coordinates
// are untrusted; only resolver output feeds the travel rule.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (*GeoPoint, error)
}

// NoopGeoResolver resolves nothing. Travel detection is inert without a
// real resolver.
type NoopGeoResolver struct{}

func (NoopGeoResolver) Resolve(_ context.Context, _ string) (*GeoPoint, error) {
	return nil, nil
}

// Escalator opens or extends an incident for a threat. Implemented by the
// incident manager.
type Escalator interface {
	EscalateThreat(ctx context.Context, threat *Threat) (incidentID string, err error)
}

// ThreatFilter selects threats from a store.
type ThreatFilter struct {
	Types      []ThreatType   `json:"types,omitempty"`
	Severities []Severity     `json:"severities,omitempty"`
	Statuses   []ThreatStatus `json:"statuses,omitempty"`
	SourceIP   string         `json:"source_ip,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty"`
}

// Matches reports whether a threat passes the filter.
func (f *ThreatFilter) Matches(t *Threat) bool {
	if len(f.Types) > 0 && !containsThreatType(f.Types, t.Type) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, t.Severity) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if f.SourceIP != "" && t.SourceIP != f.SourceIP {
		return false
	}
	if f.ActorID != "" && t.TargetActorID != f.ActorID {
		return false
	}
	if f.StartTime != nil && t.LastActivity.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && t.FirstDetected.After(*f.EndTime) {
		return false
	}
	return true
}

func containsThreatType(list []ThreatType, v ThreatType) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, v Severity) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(list []ThreatStatus, v ThreatStatus) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// ThreatStore persists threats.
type ThreatStore interface {
	SaveThreat(ctx context.Context, threat *Threat) error
	GetThreat(ctx context.Context, id string) (*Threat, error)
	ListThreats(ctx context.Context, filter ThreatFilter) ([]Threat, error)
	CountThreats(ctx context.Context, filter ThreatFilter) (int64, error)
}

// EventStore persists analyzed security events.
type EventStore interface {
	SaveEvent(ctx context.Context, event *SecurityEvent) error
	RecentEvents(ctx context.Context, actorID string, since time.Time, limit int) ([]SecurityEvent, error)
}
