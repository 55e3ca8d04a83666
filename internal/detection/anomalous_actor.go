// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// AnomalousActorConfig configures the actor behavior rule.
type AnomalousActorConfig struct {
	// DistinctIPThreshold is the distinct source IP count in the behavior
	// window that flags an actor.
	DistinctIPThreshold int `json:"distinct_ip_threshold"`

	// FailureRatio is the failed-to-total ratio that flags an actor.
	FailureRatio float64 `json:"failure_ratio"`

	// MinEvents is the minimum event count before the ratio signal fires,
	// so a handful of typos never trips it.
	MinEvents int64 `json:"min_events"`
}

// DefaultAnomalousActorConfig returns sensible defaults.
func DefaultAnomalousActorConfig() AnomalousActorConfig {
	return AnomalousActorConfig{
		DistinctIPThreshold: 5,
		FailureRatio:        0.30,
		MinEvents:           10,
	}
}

// AnomalousActorIndicators carries the evidence for a behavior threat.
type AnomalousActorIndicators struct {
	DistinctIPs  int     `json:"distinct_ips,omitempty"`
	TotalEvents  int64   `json:"total_events"`
	FailedEvents int64   `json:"failed_events"`
	FailureRatio float64 `json:"failure_ratio,omitempty"`
}

// AnomalousActorRule flags accounts whose rolling behavior looks like
// automation or credential probing: too many source IPs, or too high a
// failure ratio.
type AnomalousActorRule struct {
	config  AnomalousActorConfig
	enabled bool
	mu      sync.RWMutex
}

// NewAnomalousActorRule creates the rule with default thresholds.
func NewAnomalousActorRule() *AnomalousActorRule {
	return &AnomalousActorRule{
		config:  DefaultAnomalousActorConfig(),
		enabled: true,
	}
}

// Type returns the threat type.
func (r *AnomalousActorRule) Type() ThreatType {
	return ThreatSuspiciousActivity
}

// Fast reports that this rule needs the full path.
func (r *AnomalousActorRule) Fast() bool {
	return false
}

// Evaluate checks the actor's rolling behavior windows.
func (r *AnomalousActorRule) Evaluate(_ context.Context, event *SecurityEvent, state State) ([]*Threat, error) {
	r.mu.RLock()
	config := r.config
	enabled := r.enabled
	r.mu.RUnlock()

	if !enabled || event.ActorID == "" {
		return nil, nil
	}

	distinctIPs := state.ActorIPs(event.ActorID)
	total, failed := state.ActorOutcomes(event.ActorID)

	tooManyIPs := distinctIPs >= config.DistinctIPThreshold
	var ratio float64
	if total > 0 {
		ratio = float64(failed) / float64(total)
	}
	highFailureRatio := total >= config.MinEvents && ratio >= config.FailureRatio

	if !tooManyIPs && !highFailureRatio {
		return nil, nil
	}

	indicators, _ := json.Marshal(AnomalousActorIndicators{
		DistinctIPs:  distinctIPs,
		TotalEvents:  total,
		FailedEvents: failed,
		FailureRatio: ratio,
	})

	var description string
	switch {
	case tooManyIPs && highFailureRatio:
		description = fmt.Sprintf("actor %s used %d distinct IPs with a %.0f%% failure ratio", event.ActorID, distinctIPs, ratio*100)
	case tooManyIPs:
		description = fmt.Sprintf("actor %s used %d distinct IPs within the window", event.ActorID, distinctIPs)
	default:
		description = fmt.Sprintf("actor %s failed %d of %d recent events", event.ActorID, failed, total)
	}

	t := newThreat(event, ThreatSuspiciousActivity, SeverityMedium,
		"Anomalous Actor Behavior", description, indicators)
	// Keyed on the actor; the signal spans source IPs.
	t.SourceIP = ""
	return []*Threat{t}, nil
}

// Configure updates the rule thresholds.
func (r *AnomalousActorRule) Configure(config json.RawMessage) error {
	var newConfig AnomalousActorConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if newConfig.DistinctIPThreshold <= 0 {
		return fmt.Errorf("distinct_ip_threshold must be positive")
	}
	if newConfig.FailureRatio <= 0 || newConfig.FailureRatio > 1 {
		return fmt.Errorf("failure_ratio must be in (0, 1]")
	}
	if newConfig.MinEvents <= 0 {
		return fmt.Errorf("min_events must be positive")
	}

	r.mu.Lock()
	r.config = newConfig
	r.mu.Unlock()
	return nil
}

// Enabled returns whether this rule is enabled.
func (r *AnomalousActorRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *AnomalousActorRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}
