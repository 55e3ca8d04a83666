// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wagerdeck/sentinel/internal/detection"
	"github.com/wagerdeck/sentinel/internal/logging"
	"github.com/wagerdeck/sentinel/internal/metrics"
)

// Config configures the incident manager.
type Config struct {
	// MergeWindow is how recent an open incident's last update must be for
	// a new threat of the same type and source to merge into it.
	MergeWindow time.Duration `json:"merge_window"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MergeWindow: time.Hour}
}

// Manager owns the incident workflow. It implements detection.Escalator so
// the engine can hand critical threats over synchronously.
type Manager struct {
	config Config
	store  Store
}

// NewManager creates an incident manager.
func NewManager(store Store, config Config) *Manager {
	if config.MergeWindow <= 0 {
		config.MergeWindow = time.Hour
	}
	return &Manager{config: config, store: store}
}

// EscalateThreat opens or extends an incident for a threat and returns the
// incident ID. Implements detection.Escalator.
func (m *Manager) EscalateThreat(ctx context.Context, threat *detection.Threat) (string, error) {
	incident, err := m.CreateFromThreat(ctx, threat)
	if err != nil {
		return "", err
	}
	return incident.ID, nil
}

// CreateFromThreat merges a threat into a recent open incident of the same
// type and source, or opens a new one.
func (m *Manager) CreateFromThreat(ctx context.Context, threat *detection.Threat) (*Incident, error) {
	if threat == nil {
		return nil, fmt.Errorf("threat is required")
	}

	if existing, err := m.findMergeable(ctx, threat); err == nil && existing != nil {
		return m.merge(ctx, existing, threat)
	}

	now := time.Now().UTC()
	incident := &Incident{
		ID:       uuid.New().String(),
		Title:    threat.Title,
		Type:     threat.Type,
		Severity: threat.Severity,
		Status:   StatusNew,
		SourceIP: threat.SourceIP,
		Timeline: Timeline{Detected: now},
		Evidence: []Evidence{{
			Timestamp:   now,
			ThreatID:    threat.ID,
			Description: threat.Description,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	incident.addAffectedActor(threat.TargetActorID)
	incident.addThreat(threat.ID)

	if err := m.store.SaveIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("save incident: %w", err)
	}

	metrics.IncidentsCreated.WithLabelValues(string(incident.Severity)).Inc()
	m.refreshOpenGauge(ctx)

	logging.Warn().
		Str("incident_id", incident.ID).
		Str("type", string(incident.Type)).
		Str("severity", string(incident.Severity)).
		Str("threat_id", threat.ID).
		Msg("incident opened")

	return incident, nil
}

// findMergeable returns a recent open incident matching the threat's type
// and source, or nil.
func (m *Manager) findMergeable(ctx context.Context, threat *detection.Threat) (*Incident, error) {
	candidates, err := m.store.ListIncidents(ctx, Filter{
		Types:    []detection.ThreatType{threat.Type},
		Statuses: []Status{StatusNew, StatusInvestigating, StatusContained},
		SourceIP: threat.SourceIP,
	})
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-m.config.MergeWindow)
	for i := range candidates {
		c := &candidates[i]
		// Actor-keyed threats have no source IP; require the actor to
		// overlap instead so unrelated campaigns stay separate.
		if threat.SourceIP == "" && threat.TargetActorID != "" {
			if !(&Filter{ActorID: threat.TargetActorID}).Matches(c) {
				continue
			}
		}
		if c.UpdatedAt.After(cutoff) {
			return c, nil
		}
	}
	return nil, nil
}

// merge appends a threat's evidence to an existing incident.
func (m *Manager) merge(ctx context.Context, incident *Incident, threat *detection.Threat) (*Incident, error) {
	now := time.Now().UTC()
	incident.Evidence = append(incident.Evidence, Evidence{
		Timestamp:   now,
		ThreatID:    threat.ID,
		Description: threat.Description,
	})
	incident.addAffectedActor(threat.TargetActorID)
	incident.addThreat(threat.ID)
	if threat.Severity.AtLeast(incident.Severity) {
		incident.Severity = threat.Severity
	}
	incident.UpdatedAt = now

	if err := m.store.SaveIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	metrics.IncidentsMerged.Inc()

	logging.Info().
		Str("incident_id", incident.ID).
		Str("threat_id", threat.ID).
		Msg("threat merged into open incident")

	return incident, nil
}

// UpdateStatus applies a responder's status transition, stamping the
// timeline stage it reaches.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status Status, performedBy string) (*Incident, error) {
	if err := validateStatus(status); err != nil {
		return nil, err
	}

	incident, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(incident.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, incident.Status, status)
	}

	now := time.Now().UTC()
	switch status {
	case StatusInvestigating:
		err = incident.Timeline.MarkReported(now)
	case StatusContained:
		err = incident.Timeline.MarkContained(now)
	case StatusResolved:
		err = incident.Timeline.MarkResolved(now)
	case StatusClosed:
		err = incident.Timeline.MarkClosed(now)
	}
	if err != nil {
		return nil, err
	}

	incident.Status = status
	incident.UpdatedAt = now
	incident.ResponseActions = append(incident.ResponseActions, ResponseAction{
		Action:      "status_change",
		Timestamp:   now,
		PerformedBy: performedBy,
		Result:      string(status),
	})

	if err := m.store.SaveIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("save incident: %w", err)
	}
	m.refreshOpenGauge(ctx)
	return incident, nil
}

// AddResponseAction appends to the forensic action log.
func (m *Manager) AddResponseAction(ctx context.Context, id string, action ResponseAction) (*Incident, error) {
	if action.Action == "" {
		return nil, fmt.Errorf("action is required")
	}

	incident, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.Status == StatusClosed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, id)
	}

	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}
	incident.ResponseActions = append(incident.ResponseActions, action)
	incident.UpdatedAt = time.Now().UTC()

	if err := m.store.SaveIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("save incident: %w", err)
	}
	return incident, nil
}

// GetIncident retrieves an incident by ID.
func (m *Manager) GetIncident(ctx context.Context, id string) (*Incident, error) {
	return m.store.GetIncident(ctx, id)
}

// ListIncidents exposes incident search to the API layer.
func (m *Manager) ListIncidents(ctx context.Context, filter Filter) ([]Incident, int64, error) {
	incidents, err := m.store.ListIncidents(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.store.CountIncidents(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

func (m *Manager) refreshOpenGauge(ctx context.Context) {
	open, err := m.store.CountIncidents(ctx, Filter{
		Statuses: []Status{StatusNew, StatusInvestigating, StatusContained},
	})
	if err != nil {
		return
	}
	metrics.OpenIncidents.Set(float64(open))
}
