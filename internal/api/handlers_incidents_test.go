// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/detection"
	"github.com/wagerdeck/sentinel/internal/incident"
)

// seedIncident escalates a critical threat so the incident follows the
// real creation path.
func seedIncident(t *testing.T, f *fixture, ip string) *incident.Incident {
	t.Helper()
	inc, err := f.incidents.CreateFromThreat(context.Background(), &detection.Threat{
		ID:            "threat-" + ip,
		Type:          detection.ThreatBruteForce,
		Severity:      detection.SeverityCritical,
		Status:        detection.StatusDetected,
		SourceIP:      ip,
		Title:         "brute force from " + ip,
		Count:         50,
		FirstDetected: time.Now().UTC(),
		LastActivity:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	return inc
}

func decodeIncident(t *testing.T, envelope *APIResponse) incident.Incident {
	t.Helper()
	data, _ := json.Marshal(envelope.Data)
	var inc incident.Incident
	if err := json.Unmarshal(data, &inc); err != nil {
		t.Fatalf("decode incident: %v", err)
	}
	return inc
}

func TestListIncidents(t *testing.T) {
	f := newFixture(t)
	seedIncident(t, f, "203.0.113.5")
	seedIncident(t, f, "203.0.113.6")

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/incidents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if envelope.Meta == nil || envelope.Meta.Pagination == nil {
		t.Fatal("missing pagination meta")
	}
	if envelope.Meta.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", envelope.Meta.Pagination.Total)
	}
}

func TestListIncidentsByStatus(t *testing.T) {
	f := newFixture(t)
	inc := seedIncident(t, f, "203.0.113.5")
	seedIncident(t, f, "203.0.113.6")

	if _, err := f.incidents.UpdateStatus(context.Background(), inc.ID, incident.StatusInvestigating, "analyst-1"); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/incidents?status=investigating", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if envelope.Meta == nil || envelope.Meta.Pagination == nil {
		t.Fatal("missing pagination meta")
	}
	if envelope.Meta.Pagination.Total != 1 {
		t.Errorf("total = %d, want 1", envelope.Meta.Pagination.Total)
	}
}

func TestGetIncident(t *testing.T) {
	f := newFixture(t)
	seeded := seedIncident(t, f, "203.0.113.5")

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/incidents/"+seeded.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	inc := decodeIncident(t, envelope)
	if inc.ID != seeded.ID {
		t.Errorf("id = %q, want %q", inc.ID, seeded.ID)
	}
	if inc.Status != incident.StatusNew {
		t.Errorf("status = %q, want new", inc.Status)
	}
	if inc.Timeline.Detected.IsZero() {
		t.Error("detected timestamp not stamped")
	}
}

func TestGetIncidentNotFound(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/incidents/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateIncidentStatusWorkflow(t *testing.T) {
	f := newFixture(t)
	seeded := seedIncident(t, f, "203.0.113.5")

	rec, envelope := f.do(t, http.MethodPatch, "/api/v1/incidents/"+seeded.ID+"/status",
		`{"status":"investigating","performed_by":"analyst-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	inc := decodeIncident(t, envelope)
	if inc.Status != incident.StatusInvestigating {
		t.Errorf("status = %q, want investigating", inc.Status)
	}
	if inc.Timeline.Reported == nil {
		t.Error("reported timestamp not stamped")
	}
	if len(inc.ResponseActions) != 1 || inc.ResponseActions[0].PerformedBy != "analyst-1" {
		t.Errorf("response actions = %+v", inc.ResponseActions)
	}
}

func TestUpdateIncidentStatusIllegalTransition(t *testing.T) {
	f := newFixture(t)
	seeded := seedIncident(t, f, "203.0.113.5")

	// new -> closed skips the workflow.
	rec, _ := f.do(t, http.MethodPatch, "/api/v1/incidents/"+seeded.ID+"/status",
		`{"status":"closed","performed_by":"analyst-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestUpdateIncidentStatusRequiresPerformedBy(t *testing.T) {
	f := newFixture(t)
	seeded := seedIncident(t, f, "203.0.113.5")

	rec, _ := f.do(t, http.MethodPatch, "/api/v1/incidents/"+seeded.ID+"/status", `{"status":"investigating"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAddResponseAction(t *testing.T) {
	f := newFixture(t)
	seeded := seedIncident(t, f, "203.0.113.5")

	rec, envelope := f.do(t, http.MethodPost, "/api/v1/incidents/"+seeded.ID+"/actions",
		`{"action":"blocked source ip at edge","performed_by":"analyst-2","result":"applied"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	inc := decodeIncident(t, envelope)
	if len(inc.ResponseActions) != 1 {
		t.Fatalf("actions = %d, want 1", len(inc.ResponseActions))
	}
	action := inc.ResponseActions[0]
	if action.Action != "blocked source ip at edge" || action.Result != "applied" {
		t.Errorf("action = %+v", action)
	}
	if action.Timestamp.IsZero() {
		t.Error("action timestamp not defaulted")
	}
}

func TestAddResponseActionClosedIncident(t *testing.T) {
	f := newFixture(t)
	seeded := seedIncident(t, f, "203.0.113.5")

	ctx := context.Background()
	for _, status := range []incident.Status{
		incident.StatusInvestigating,
		incident.StatusContained,
		incident.StatusResolved,
		incident.StatusClosed,
	} {
		if _, err := f.incidents.UpdateStatus(ctx, seeded.ID, status, "analyst-1"); err != nil {
			t.Fatalf("walk to %s: %v", status, err)
		}
	}

	rec, _ := f.do(t, http.MethodPost, "/api/v1/incidents/"+seeded.ID+"/actions",
		`{"action":"late note","performed_by":"analyst-2"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
