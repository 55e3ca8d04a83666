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

// BruteForceConfig configures the brute force rule.
type BruteForceConfig struct {
	// IPHighThreshold is the failure count from one IP that raises a high
	// severity threat.
	IPHighThreshold int64 `json:"ip_high_threshold"`

	// IPCriticalThreshold is the failure count from one IP that raises a
	// critical threat.
	IPCriticalThreshold int64 `json:"ip_critical_threshold"`

	// ActorFailureThreshold is the total failure count against one actor
	// for the distributed variant.
	ActorFailureThreshold int64 `json:"actor_failure_threshold"`

	// ActorDistinctIPs is the minimum distinct source IPs for the
	// distributed variant.
	ActorDistinctIPs int `json:"actor_distinct_ips"`
}

// DefaultBruteForceConfig returns sensible defaults.
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		IPHighThreshold:       20,
		IPCriticalThreshold:   50,
		ActorFailureThreshold: 10,
		ActorDistinctIPs:      3,
	}
}

// BruteForceIndicators carries the evidence for a brute force threat.
type BruteForceIndicators struct {
	FailureCount int64 `json:"failure_count"`
	DistinctIPs  int   `json:"distinct_ips,omitempty"`
	Distributed  bool  `json:"distributed,omitempty"`
}

// BruteForceRule flags repeated authentication failures, both from a single
// source IP and distributed across many IPs against one account. The
// distributed variant catches credential stuffing that per-IP counting
// misses.
type BruteForceRule struct {
	config  BruteForceConfig
	enabled bool
	mu      sync.RWMutex
}

// NewBruteForceRule creates the rule with default thresholds.
func NewBruteForceRule() *BruteForceRule {
	return &BruteForceRule{
		config:  DefaultBruteForceConfig(),
		enabled: true,
	}
}

// Type returns the threat type.
func (r *BruteForceRule) Type() ThreatType {
	return ThreatBruteForce
}

// Fast reports that this rule runs on the synchronous path.
func (r *BruteForceRule) Fast() bool {
	return true
}

// Evaluate checks the failure windows after an authentication failure.
func (r *BruteForceRule) Evaluate(_ context.Context, event *SecurityEvent, state State) ([]*Threat, error) {
	r.mu.RLock()
	config := r.config
	enabled := r.enabled
	r.mu.RUnlock()

	if !enabled || event.EventType != EventLoginFailure {
		return nil, nil
	}

	var threats []*Threat

	if event.IPAddress != "" {
		if t := r.checkIP(config, event, state); t != nil {
			threats = append(threats, t)
		}
	}
	if event.ActorID != "" {
		if t := r.checkDistributed(config, event, state); t != nil {
			threats = append(threats, t)
		}
	}

	return threats, nil
}

func (r *BruteForceRule) checkIP(config BruteForceConfig, event *SecurityEvent, state State) *Threat {
	failures := state.IPFailures(event.IPAddress)

	var severity Severity
	switch {
	case failures >= config.IPCriticalThreshold:
		severity = SeverityCritical
	case failures >= config.IPHighThreshold:
		severity = SeverityHigh
	default:
		return nil
	}

	indicators, _ := json.Marshal(BruteForceIndicators{FailureCount: failures})

	return newThreat(event, ThreatBruteForce, severity,
		"Brute Force Attack",
		fmt.Sprintf("%d authentication failures from %s within the window", failures, event.IPAddress),
		indicators)
}

func (r *BruteForceRule) checkDistributed(config BruteForceConfig, event *SecurityEvent, state State) *Threat {
	failures, distinctIPs := state.ActorFailures(event.ActorID)
	if failures < config.ActorFailureThreshold || distinctIPs < config.ActorDistinctIPs {
		return nil
	}

	indicators, _ := json.Marshal(BruteForceIndicators{
		FailureCount: failures,
		DistinctIPs:  distinctIPs,
		Distributed:  true,
	})

	t := newThreat(event, ThreatBruteForce, SeverityHigh,
		"Distributed Brute Force Attack",
		fmt.Sprintf("%d authentication failures against actor %s from %d distinct IPs", failures, event.ActorID, distinctIPs),
		indicators)
	// Keyed on the actor alone; the attack spans source IPs.
	t.SourceIP = ""
	return t
}

// Configure updates the rule thresholds.
func (r *BruteForceRule) Configure(config json.RawMessage) error {
	var newConfig BruteForceConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if newConfig.IPHighThreshold <= 0 || newConfig.IPCriticalThreshold <= 0 {
		return fmt.Errorf("ip thresholds must be positive")
	}
	if newConfig.IPCriticalThreshold < newConfig.IPHighThreshold {
		return fmt.Errorf("ip_critical_threshold must be >= ip_high_threshold")
	}
	if newConfig.ActorFailureThreshold <= 0 || newConfig.ActorDistinctIPs <= 0 {
		return fmt.Errorf("actor thresholds must be positive")
	}

	r.mu.Lock()
	r.config = newConfig
	r.mu.Unlock()
	return nil
}

// Enabled returns whether this rule is enabled.
func (r *BruteForceRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *BruteForceRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}
