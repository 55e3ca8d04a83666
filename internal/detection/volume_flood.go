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

// VolumeFloodConfig configures the request flood rule.
type VolumeFloodConfig struct {
	// HighThreshold is the request count from one IP in the window that
	// raises a high severity threat.
	HighThreshold int64 `json:"high_threshold"`

	// CriticalThreshold raises a critical threat.
	CriticalThreshold int64 `json:"critical_threshold"`
}

// DefaultVolumeFloodConfig returns sensible defaults.
func DefaultVolumeFloodConfig() VolumeFloodConfig {
	return VolumeFloodConfig{
		HighThreshold:     1000,
		CriticalThreshold: 2000,
	}
}

// VolumeFloodIndicators carries the evidence for a flood threat.
type VolumeFloodIndicators struct {
	RequestCount    int64 `json:"request_count"`
	DistinctMethods int   `json:"distinct_methods,omitempty"`
}

// VolumeFloodRule flags request floods from a single source IP.
type VolumeFloodRule struct {
	config  VolumeFloodConfig
	enabled bool
	mu      sync.RWMutex
}

// NewVolumeFloodRule creates the rule with default thresholds.
func NewVolumeFloodRule() *VolumeFloodRule {
	return &VolumeFloodRule{
		config:  DefaultVolumeFloodConfig(),
		enabled: true,
	}
}

// Type returns the threat type.
func (r *VolumeFloodRule) Type() ThreatType {
	return ThreatDDoS
}

// Fast reports that this rule runs on the synchronous path.
func (r *VolumeFloodRule) Fast() bool {
	return true
}

// Evaluate checks the request window for the event's source IP.
func (r *VolumeFloodRule) Evaluate(_ context.Context, event *SecurityEvent, state State) ([]*Threat, error) {
	r.mu.RLock()
	config := r.config
	enabled := r.enabled
	r.mu.RUnlock()

	if !enabled || event.IPAddress == "" {
		return nil, nil
	}

	count, methods := state.IPRequests(event.IPAddress)

	var severity Severity
	switch {
	case count >= config.CriticalThreshold:
		severity = SeverityCritical
	case count >= config.HighThreshold:
		severity = SeverityHigh
	default:
		return nil, nil
	}

	indicators, _ := json.Marshal(VolumeFloodIndicators{
		RequestCount:    count,
		DistinctMethods: methods,
	})

	t := newThreat(event, ThreatDDoS, severity,
		"Request Flood",
		fmt.Sprintf("%d requests from %s within the window", count, event.IPAddress),
		indicators)
	// Keyed on the source alone; a flood is not about one account.
	t.TargetActorID = ""
	return []*Threat{t}, nil
}

// Configure updates the rule thresholds.
func (r *VolumeFloodRule) Configure(config json.RawMessage) error {
	var newConfig VolumeFloodConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if newConfig.HighThreshold <= 0 || newConfig.CriticalThreshold <= 0 {
		return fmt.Errorf("thresholds must be positive")
	}
	if newConfig.CriticalThreshold < newConfig.HighThreshold {
		return fmt.Errorf("critical_threshold must be >= high_threshold")
	}

	r.mu.Lock()
	r.config = newConfig
	r.mu.Unlock()
	return nil
}

// Enabled returns whether this rule is enabled.
func (r *VolumeFloodRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *VolumeFloodRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}
