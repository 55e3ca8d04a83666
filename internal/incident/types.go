// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wagerdeck/sentinel/internal/detection"
)

// Status tracks an incident through the response workflow.
type Status string

const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusContained     Status = "contained"
	StatusResolved      Status = "resolved"
	StatusClosed        Status = "closed"
)

// statusTransitions defines the allowed moves. A closed incident never
// reopens.
var statusTransitions = map[Status][]Status{
	StatusNew:           {StatusInvestigating, StatusContained, StatusResolved},
	StatusInvestigating: {StatusContained, StatusResolved},
	StatusContained:     {StatusResolved},
	StatusResolved:      {StatusClosed},
}

// CanTransition reports whether an incident may move between two statuses.
func CanTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ErrTimelineViolation is returned when a timeline stamp would repeat or go
// backwards.
var ErrTimelineViolation = errors.New("timeline stamps must be set once, in order")

// Timeline records when each response stage was reached. Detected is always
// set; later stages are stamped as the workflow advances.
type Timeline struct {
	Detected  time.Time  `json:"detected"`
	Reported  *time.Time `json:"reported,omitempty"`
	Contained *time.Time `json:"contained,omitempty"`
	Resolved  *time.Time `json:"resolved,omitempty"`
	Closed    *time.Time `json:"closed,omitempty"`
}

// lastStamp returns the most recent stage timestamp.
func (tl *Timeline) lastStamp() time.Time {
	last := tl.Detected
	for _, ts := range []*time.Time{tl.Reported, tl.Contained, tl.Resolved, tl.Closed} {
		if ts != nil && ts.After(last) {
			last = *ts
		}
	}
	return last
}

func (tl *Timeline) stamp(slot **time.Time, ts time.Time) error {
	if *slot != nil {
		return ErrTimelineViolation
	}
	if ts.Before(tl.lastStamp()) {
		return ErrTimelineViolation
	}
	*slot = &ts
	return nil
}

// MarkReported stamps the reported stage.
func (tl *Timeline) MarkReported(ts time.Time) error { return tl.stamp(&tl.Reported, ts) }

// MarkContained stamps the contained stage.
func (tl *Timeline) MarkContained(ts time.Time) error { return tl.stamp(&tl.Contained, ts) }

// MarkResolved stamps the resolved stage.
func (tl *Timeline) MarkResolved(ts time.Time) error { return tl.stamp(&tl.Resolved, ts) }

// MarkClosed stamps the closed stage.
func (tl *Timeline) MarkClosed(ts time.Time) error { return tl.stamp(&tl.Closed, ts) }

// ResponseAction is one entry in the forensic action log. The log is append
// only; entries are never rewritten.
type ResponseAction struct {
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	PerformedBy string    `json:"performed_by"`
	Result      string    `json:"result,omitempty"`
}

// Evidence links an incident to the observations behind it.
type Evidence struct {
	Timestamp   time.Time `json:"timestamp"`
	ThreatID    string    `json:"threat_id,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Incident is an escalated response case.
type Incident struct {
	ID       string               `json:"id"`
	Title    string               `json:"title"`
	Type     detection.ThreatType `json:"type"`
	Severity detection.Severity   `json:"severity"`
	Status   Status               `json:"status"`

	// SourceIP anchors merging; actor-keyed threats leave it empty.
	SourceIP string `json:"source_ip,omitempty"`

	AffectedActors  []string         `json:"affected_actors,omitempty"`
	Timeline        Timeline         `json:"timeline"`
	ResponseActions []ResponseAction `json:"response_actions,omitempty"`
	Evidence        []Evidence       `json:"evidence,omitempty"`
	ThreatIDs       []string         `json:"threat_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Open reports whether the incident is still an active response case.
func (i *Incident) Open() bool {
	return i.Status != StatusResolved && i.Status != StatusClosed
}

// addAffectedActor records an actor once.
func (i *Incident) addAffectedActor(actorID string) {
	if actorID == "" {
		return
	}
	for _, a := range i.AffectedActors {
		if a == actorID {
			return
		}
	}
	i.AffectedActors = append(i.AffectedActors, actorID)
}

// addThreat records a contributing threat once.
func (i *Incident) addThreat(threatID string) {
	if threatID == "" {
		return
	}
	for _, id := range i.ThreatIDs {
		if id == threatID {
			return
		}
	}
	i.ThreatIDs = append(i.ThreatIDs, threatID)
}

// ErrNotFound is returned for lookups of unknown incident IDs.
var ErrNotFound = errors.New("incident not found")

// ErrInvalidTransition is returned for status changes the workflow does
// not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrClosed is returned for writes against a closed incident.
var ErrClosed = errors.New("incident is closed")

// Filter selects incidents from a store.
type Filter struct {
	Types      []detection.ThreatType `json:"types,omitempty"`
	Severities []detection.Severity   `json:"severities,omitempty"`
	Statuses   []Status               `json:"statuses,omitempty"`
	SourceIP   string                 `json:"source_ip,omitempty"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Offset     int                    `json:"offset,omitempty"`
}

// Matches reports whether an incident passes the filter.
func (f *Filter) Matches(i *Incident) bool {
	if len(f.Types) > 0 && !contains(f.Types, i.Type) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, i.Severity) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, i.Status) {
		return false
	}
	if f.SourceIP != "" && i.SourceIP != f.SourceIP {
		return false
	}
	if f.ActorID != "" {
		found := false
		for _, a := range i.AffectedActors {
			if a == f.ActorID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Store persists incidents.
type Store interface {
	SaveIncident(ctx context.Context, incident *Incident) error
	GetIncident(ctx context.Context, id string) (*Incident, error)
	ListIncidents(ctx context.Context, filter Filter) ([]Incident, error)
	CountIncidents(ctx context.Context, filter Filter) (int64, error)
}

// validateStatus rejects unknown status values before they enter the store.
func validateStatus(status Status) error {
	switch status {
	case StatusNew, StatusInvestigating, StatusContained, StatusResolved, StatusClosed:
		return nil
	}
	return fmt.Errorf("unknown incident status %q", status)
}
