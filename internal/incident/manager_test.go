// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package incident

import (
	"context"
	"testing"
	"time"

	"github.com/wagerdeck/sentinel/internal/detection"
)

func criticalThreat(id, ip, actorID string) *detection.Threat {
	now := time.Now().UTC()
	return &detection.Threat{
		ID:            id,
		Type:          detection.ThreatBruteForce,
		Severity:      detection.SeverityCritical,
		Status:        detection.StatusDetected,
		SourceIP:      ip,
		TargetActorID: actorID,
		Title:         "Brute Force Attack",
		Description:   "authentication failures over threshold",
		Count:         1,
		FirstDetected: now,
		LastActivity:  now,
		UpdatedAt:     now,
	}
}

func TestCreateFromThreatOpensIncident(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	incident, err := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", "actor-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if incident.Status != StatusNew {
		t.Errorf("status = %s, want %s", incident.Status, StatusNew)
	}
	if incident.Timeline.Detected.IsZero() {
		t.Error("timeline.detected not stamped")
	}
	if incident.Timeline.Resolved != nil {
		t.Error("later stages must start unset")
	}
	if incident.Type != detection.ThreatBruteForce || incident.Severity != detection.SeverityCritical {
		t.Errorf("got %s/%s", incident.Type, incident.Severity)
	}
	if len(incident.AffectedActors) != 1 || incident.AffectedActors[0] != "actor-1" {
		t.Errorf("affected actors = %v", incident.AffectedActors)
	}
	if len(incident.Evidence) != 1 || incident.Evidence[0].ThreatID != "t-1" {
		t.Errorf("evidence = %+v", incident.Evidence)
	}
}

func TestEscalateThreatReturnsIncidentID(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())

	id, err := manager.EscalateThreat(context.Background(), criticalThreat("t-1", "203.0.113.5", ""))
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if id == "" {
		t.Fatal("empty incident ID")
	}
	if _, err := manager.GetIncident(context.Background(), id); err != nil {
		t.Errorf("get escalated incident: %v", err)
	}
}

func TestCreateFromThreatMergesSameTypeAndSource(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	first, err := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", "actor-1"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := manager.CreateFromThreat(ctx, criticalThreat("t-2", "203.0.113.5", "actor-2"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if second.ID != first.ID {
		t.Fatal("repeat threat opened a duplicate incident")
	}
	if len(second.Evidence) != 2 {
		t.Errorf("evidence = %d entries, want 2", len(second.Evidence))
	}
	if len(second.AffectedActors) != 2 {
		t.Errorf("affected actors = %v, want both", second.AffectedActors)
	}
	if len(second.ThreatIDs) != 2 {
		t.Errorf("threat IDs = %v, want both", second.ThreatIDs)
	}
}

func TestCreateFromThreatDoesNotMergeAcrossSources(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	first, _ := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", ""))
	second, _ := manager.CreateFromThreat(ctx, criticalThreat("t-2", "198.51.100.9", ""))

	if first.ID == second.ID {
		t.Error("threats from different sources merged into one incident")
	}
}

func TestCreateFromThreatDoesNotMergeAcrossTypes(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	first, _ := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", ""))

	flood := criticalThreat("t-2", "203.0.113.5", "")
	flood.Type = detection.ThreatDDoS
	second, _ := manager.CreateFromThreat(ctx, flood)

	if first.ID == second.ID {
		t.Error("threats of different types merged into one incident")
	}
}

func TestCreateFromThreatDoesNotMergeIntoResolvedIncident(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	first, _ := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", ""))
	if _, err := manager.UpdateStatus(ctx, first.ID, StatusResolved, "responder-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	second, _ := manager.CreateFromThreat(ctx, criticalThreat("t-2", "203.0.113.5", ""))
	if first.ID == second.ID {
		t.Error("threat merged into a resolved incident")
	}
}

func TestActorKeyedThreatsMergeByActor(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	takeover := func(id, actorID string) *detection.Threat {
		t := criticalThreat(id, "", actorID)
		t.Type = detection.ThreatAccountTakeover
		return t
	}

	first, _ := manager.CreateFromThreat(ctx, takeover("t-1", "victim"))
	same, _ := manager.CreateFromThreat(ctx, takeover("t-2", "victim"))
	other, _ := manager.CreateFromThreat(ctx, takeover("t-3", "bystander"))

	if same.ID != first.ID {
		t.Error("same actor takeover did not merge")
	}
	if other.ID == first.ID {
		t.Error("different actors merged into one incident")
	}
}

func TestMergeUpgradesSeverity(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	high := criticalThreat("t-1", "203.0.113.5", "")
	high.Severity = detection.SeverityHigh
	first, _ := manager.CreateFromThreat(ctx, high)
	if first.Severity != detection.SeverityHigh {
		t.Fatalf("severity = %s", first.Severity)
	}

	merged, _ := manager.CreateFromThreat(ctx, criticalThreat("t-2", "203.0.113.5", ""))
	if merged.Severity != detection.SeverityCritical {
		t.Errorf("severity = %s, want upgrade to critical", merged.Severity)
	}
}

func TestUpdateStatusWorkflow(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	created, _ := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", ""))

	investigating, err := manager.UpdateStatus(ctx, created.ID, StatusInvestigating, "responder-1")
	if err != nil {
		t.Fatalf("new -> investigating: %v", err)
	}
	if investigating.Timeline.Reported == nil {
		t.Error("timeline.reported not stamped")
	}

	contained, err := manager.UpdateStatus(ctx, created.ID, StatusContained, "responder-1")
	if err != nil {
		t.Fatalf("investigating -> contained: %v", err)
	}
	if contained.Timeline.Contained == nil {
		t.Error("timeline.contained not stamped")
	}

	resolved, err := manager.UpdateStatus(ctx, created.ID, StatusResolved, "responder-1")
	if err != nil {
		t.Fatalf("contained -> resolved: %v", err)
	}
	if resolved.Timeline.Resolved == nil {
		t.Error("timeline.resolved not stamped")
	}

	closed, err := manager.UpdateStatus(ctx, created.ID, StatusClosed, "responder-1")
	if err != nil {
		t.Fatalf("resolved -> closed: %v", err)
	}
	if closed.Timeline.Closed == nil {
		t.Error("timeline.closed not stamped")
	}

	// The timeline is monotonic across the workflow.
	tl := closed.Timeline
	if tl.Reported.Before(tl.Detected) || tl.Contained.Before(*tl.Reported) ||
		tl.Resolved.Before(*tl.Contained) || tl.Closed.Before(*tl.Resolved) {
		t.Errorf("timeline out of order: %+v", tl)
	}

	// Every transition left a response action behind.
	if len(closed.ResponseActions) != 4 {
		t.Errorf("response actions = %d, want 4", len(closed.ResponseActions))
	}

	// No reopening after close.
	if _, err := manager.UpdateStatus(ctx, created.ID, StatusInvestigating, "responder-1"); err == nil {
		t.Error("closed incident accepted a transition")
	}
}

func TestUpdateStatusRejectsInvalidTransitions(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	created, _ := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", ""))

	if _, err := manager.UpdateStatus(ctx, created.ID, StatusClosed, "responder-1"); err == nil {
		t.Error("new -> closed must be rejected")
	}
	if _, err := manager.UpdateStatus(ctx, created.ID, Status("bogus"), "responder-1"); err == nil {
		t.Error("unknown status accepted")
	}
	if _, err := manager.UpdateStatus(ctx, "missing", StatusInvestigating, "responder-1"); err == nil {
		t.Error("unknown incident accepted")
	}
}

func TestAddResponseActionAppendOnly(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	created, _ := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", ""))

	first, err := manager.AddResponseAction(ctx, created.ID, ResponseAction{
		Action:      "blocked source ip",
		PerformedBy: "responder-1",
		Result:      "203.0.113.5 added to denylist",
	})
	if err != nil {
		t.Fatalf("add action: %v", err)
	}
	if len(first.ResponseActions) != 1 {
		t.Fatalf("actions = %d, want 1", len(first.ResponseActions))
	}
	if first.ResponseActions[0].Timestamp.IsZero() {
		t.Error("action timestamp not defaulted")
	}

	second, err := manager.AddResponseAction(ctx, created.ID, ResponseAction{
		Action:      "forced password reset",
		PerformedBy: "responder-2",
	})
	if err != nil {
		t.Fatalf("second action: %v", err)
	}
	if len(second.ResponseActions) != 2 {
		t.Errorf("actions = %d, want 2", len(second.ResponseActions))
	}
	if second.ResponseActions[0].Action != "blocked source ip" {
		t.Error("earlier action rewritten")
	}

	if _, err := manager.AddResponseAction(ctx, created.ID, ResponseAction{}); err == nil {
		t.Error("empty action accepted")
	}
}

func TestTimelineStampValidation(t *testing.T) {
	now := time.Now().UTC()
	tl := Timeline{Detected: now}

	if err := tl.MarkContained(now.Add(time.Minute)); err != nil {
		t.Fatalf("first stamp: %v", err)
	}
	if err := tl.MarkContained(now.Add(2 * time.Minute)); err == nil {
		t.Error("second contained stamp accepted")
	}
	if err := tl.MarkResolved(now.Add(30 * time.Second)); err == nil {
		t.Error("resolved before contained accepted")
	}
	if err := tl.MarkResolved(now.Add(2 * time.Minute)); err != nil {
		t.Errorf("valid resolved stamp rejected: %v", err)
	}
}

func TestListIncidentsFilter(t *testing.T) {
	manager := NewManager(NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	brute, _ := manager.CreateFromThreat(ctx, criticalThreat("t-1", "203.0.113.5", "actor-1"))

	flood := criticalThreat("t-2", "198.51.100.9", "")
	flood.Type = detection.ThreatDDoS
	if _, err := manager.CreateFromThreat(ctx, flood); err != nil {
		t.Fatalf("flood incident: %v", err)
	}

	all, total, err := manager.ListIncidents(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || total != 2 {
		t.Fatalf("got %d/%d incidents, want 2", len(all), total)
	}

	bruteOnly, total, err := manager.ListIncidents(ctx, Filter{Types: []detection.ThreatType{detection.ThreatBruteForce}})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(bruteOnly) != 1 || total != 1 || bruteOnly[0].ID != brute.ID {
		t.Errorf("got %v, want only the brute force incident", bruteOnly)
	}

	byActor, _, err := manager.ListIncidents(ctx, Filter{ActorID: "actor-1"})
	if err != nil {
		t.Fatalf("actor list: %v", err)
	}
	if len(byActor) != 1 || byActor[0].ID != brute.ID {
		t.Errorf("actor filter returned %v", byActor)
	}
}
