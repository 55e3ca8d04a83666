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

// AccountTakeoverConfig configures the takeover clustering rule.
type AccountTakeoverConfig struct {
	// ChangeThreshold is the sensitive-change count in the takeover
	// window that raises a critical threat.
	ChangeThreshold int64 `json:"change_threshold"`
}

// DefaultAccountTakeoverConfig returns sensible defaults.
func DefaultAccountTakeoverConfig() AccountTakeoverConfig {
	return AccountTakeoverConfig{
		ChangeThreshold: 3,
	}
}

// TakeoverIndicators carries the evidence for a takeover threat.
type TakeoverIndicators struct {
	ChangeCount int64  `json:"change_count"`
	LastChange  string `json:"last_change"`
	SourceIP    string `json:"source_ip,omitempty"`
}

// AccountTakeoverRule clusters sensitive account changes. An attacker who
// gets in rewrites credentials and payout routes within minutes; a
// legitimate user almost never does all of that at once.
type AccountTakeoverRule struct {
	config  AccountTakeoverConfig
	enabled bool
	mu      sync.RWMutex
}

// NewAccountTakeoverRule creates the rule with default thresholds.
func NewAccountTakeoverRule() *AccountTakeoverRule {
	return &AccountTakeoverRule{
		config:  DefaultAccountTakeoverConfig(),
		enabled: true,
	}
}

// Type returns the threat type.
func (r *AccountTakeoverRule) Type() ThreatType {
	return ThreatAccountTakeover
}

// Fast reports that this rule needs the full path.
func (r *AccountTakeoverRule) Fast() bool {
	return false
}

// Evaluate checks the actor's sensitive-change window after each signal.
func (r *AccountTakeoverRule) Evaluate(_ context.Context, event *SecurityEvent, state State) ([]*Threat, error) {
	r.mu.RLock()
	config := r.config
	enabled := r.enabled
	r.mu.RUnlock()

	if !enabled || event.ActorID == "" || !IsSensitiveChange(event.EventType) {
		return nil, nil
	}

	changes := state.SensitiveChanges(event.ActorID)
	if changes < config.ChangeThreshold {
		return nil, nil
	}

	indicators, _ := json.Marshal(TakeoverIndicators{
		ChangeCount: changes,
		LastChange:  event.EventType,
		SourceIP:    event.IPAddress,
	})

	t := newThreat(event, ThreatAccountTakeover, SeverityCritical,
		"Account Takeover Signals",
		fmt.Sprintf("%d sensitive account changes for actor %s within the window", changes, event.ActorID),
		indicators)
	// Keyed on the actor; the changes may come from rotating IPs.
	t.SourceIP = ""
	return []*Threat{t}, nil
}

// Configure updates the rule thresholds.
func (r *AccountTakeoverRule) Configure(config json.RawMessage) error {
	var newConfig AccountTakeoverConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if newConfig.ChangeThreshold <= 0 {
		return fmt.Errorf("change_threshold must be positive")
	}

	r.mu.Lock()
	r.config = newConfig
	r.mu.Unlock()
	return nil
}

// Enabled returns whether this rule is enabled.
func (r *AccountTakeoverRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *AccountTakeoverRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}
