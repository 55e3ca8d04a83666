// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
)

func TestVolumeFloodThresholds(t *testing.T) {
	tests := []struct {
		name         string
		requests     int64
		wantThreat   bool
		wantSeverity Severity
	}{
		{"below threshold", 999, false, ""},
		{"at high threshold", 1000, true, SeverityHigh},
		{"between thresholds", 1999, true, SeverityHigh},
		{"at critical threshold", 2000, true, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := NewVolumeFloodRule()
			state := newFakeState()
			state.ipRequests["203.0.113.5"] = tt.requests
			state.ipMethods["203.0.113.5"] = 2

			threats, err := rule.Evaluate(context.Background(), requestEvent("203.0.113.5", "GET", "/odds", "", ""), state)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !tt.wantThreat {
				if len(threats) != 0 {
					t.Fatalf("got %d threats, want none", len(threats))
				}
				return
			}
			if len(threats) != 1 {
				t.Fatalf("got %d threats, want 1", len(threats))
			}
			threat := threats[0]
			if threat.Type != ThreatDDoS {
				t.Errorf("type = %s, want %s", threat.Type, ThreatDDoS)
			}
			if threat.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", threat.Severity, tt.wantSeverity)
			}
			if threat.TargetActorID != "" {
				t.Errorf("flood threat must be keyed on the IP alone, got actor %q", threat.TargetActorID)
			}
		})
	}
}

func TestVolumeFloodIndicatorsCarryMethodSpread(t *testing.T) {
	rule := NewVolumeFloodRule()
	state := newFakeState()
	state.ipRequests["203.0.113.5"] = 1500
	state.ipMethods["203.0.113.5"] = 4

	threats, err := rule.Evaluate(context.Background(), requestEvent("203.0.113.5", "GET", "/odds", "", ""), state)
	if err != nil || len(threats) != 1 {
		t.Fatalf("threats = %d, err = %v", len(threats), err)
	}

	var indicators VolumeFloodIndicators
	if err := json.Unmarshal(threats[0].Indicators, &indicators); err != nil {
		t.Fatalf("unmarshal indicators: %v", err)
	}
	if indicators.RequestCount != 1500 {
		t.Errorf("request count = %d, want 1500", indicators.RequestCount)
	}
	if indicators.DistinctMethods != 4 {
		t.Errorf("distinct methods = %d, want 4", indicators.DistinctMethods)
	}
}

func TestVolumeFloodSkipsEventsWithoutIP(t *testing.T) {
	rule := NewVolumeFloodRule()
	state := newFakeState()

	threats, _ := rule.Evaluate(context.Background(), requestEvent("", "GET", "/", "", ""), state)
	if len(threats) != 0 {
		t.Errorf("got %d threats for an event without a source IP", len(threats))
	}
}

func TestVolumeFloodConfigure(t *testing.T) {
	rule := NewVolumeFloodRule()

	if err := rule.Configure([]byte(`{"high_threshold":10,"critical_threshold":20}`)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	state := newFakeState()
	state.ipRequests["203.0.113.5"] = 20

	threats, _ := rule.Evaluate(context.Background(), requestEvent("203.0.113.5", "GET", "/", "", ""), state)
	if len(threats) != 1 || threats[0].Severity != SeverityCritical {
		t.Fatalf("expected a critical threat with lowered thresholds, got %v", threats)
	}

	if err := rule.Configure([]byte(`{"high_threshold":20,"critical_threshold":10}`)); err == nil {
		t.Error("configure accepted critical below high")
	}
}
