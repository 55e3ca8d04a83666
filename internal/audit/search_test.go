// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"context"
	"testing"
	"time"
)

func seedSearchEntries(t *testing.T, l *Logger) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seed := []*Entry{
		{EventType: "login_failure", Category: CategoryAuthentication, Risk: RiskMedium, ActorID: "user-1", Timestamp: base},
		{EventType: "login_failure", Category: CategoryAuthentication, Risk: RiskMedium, ActorID: "user-1", Timestamp: base.Add(time.Hour)},
		{EventType: "login_success", Category: CategoryAuthentication, Risk: RiskLow, ActorID: "user-1", Success: true, Timestamp: base.Add(2 * time.Hour)},
		{EventType: "bet_placed", Category: CategoryDataModification, Risk: RiskLow, ActorID: "user-2", Success: true, Timestamp: base.AddDate(0, 0, 1)},
		{EventType: "injection_attempt", Category: CategorySecurityEvent, Risk: RiskCritical, IPAddress: "203.0.113.9", Timestamp: base.AddDate(0, 0, 1).Add(time.Hour)},
	}
	for _, e := range seed {
		if err := l.AppendSync(ctx, e); err != nil {
			t.Fatalf("AppendSync() error = %v", err)
		}
	}
}

func TestSearchAggregations(t *testing.T) {
	t.Parallel()

	l := newTestLogger(t, NewMemoryStore())
	seedSearchEntries(t, l)

	result, err := l.Search(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if got := result.Aggregations.ByCategory[CategoryAuthentication]; got != 3 {
		t.Errorf("ByCategory[authentication] = %d, want 3", got)
	}
	if got := result.Aggregations.ByRisk[RiskCritical]; got != 1 {
		t.Errorf("ByRisk[critical] = %d, want 1", got)
	}
	if got := result.Aggregations.BySuccess["failure"]; got != 3 {
		t.Errorf("BySuccess[failure] = %d, want 3", got)
	}
	if got := result.Aggregations.BySuccess["success"]; got != 2 {
		t.Errorf("BySuccess[success] = %d, want 2", got)
	}

	timeline := result.Aggregations.DailyTimeline
	if len(timeline) != 2 {
		t.Fatalf("timeline buckets = %d, want 2", len(timeline))
	}
	if timeline[0].Date != "2026-08-01" || timeline[0].Count != 3 {
		t.Errorf("bucket[0] = %+v", timeline[0])
	}
	if timeline[1].Date != "2026-08-02" || timeline[1].Count != 2 {
		t.Errorf("bucket[1] = %+v", timeline[1])
	}
}

func TestSearchAggregatesFullSetWhilePaging(t *testing.T) {
	t.Parallel()

	l := newTestLogger(t, NewMemoryStore())
	seedSearchEntries(t, l)

	result, err := l.Search(context.Background(), QueryFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(result.Entries) != 2 {
		t.Errorf("page size = %d, want 2", len(result.Entries))
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want full set 5", result.Total)
	}
	// Aggregations must not shrink to the page.
	var sum int64
	for _, n := range result.Aggregations.ByCategory {
		sum += n
	}
	if sum != 5 {
		t.Errorf("aggregation sum = %d, want 5", sum)
	}
}

func TestSearchFilterRestrictsAggregations(t *testing.T) {
	t.Parallel()

	l := newTestLogger(t, NewMemoryStore())
	seedSearchEntries(t, l)

	result, err := l.Search(context.Background(), QueryFilter{ActorID: "user-1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 3 {
		t.Errorf("Total = %d, want 3", result.Total)
	}
	if got := result.Aggregations.ByCategory[CategorySecurityEvent]; got != 0 {
		t.Errorf("expected filtered-out category absent, got %d", got)
	}
}

func TestSearchOffsetBeyondEnd(t *testing.T) {
	t.Parallel()

	l := newTestLogger(t, NewMemoryStore())
	seedSearchEntries(t, l)

	result, err := l.Search(context.Background(), QueryFilter{Offset: 100})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected empty page, got %d entries", len(result.Entries))
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
}
