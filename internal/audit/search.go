// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"context"
	"sort"
)

// SearchResult is a page of entries plus aggregations computed over the
// entire filtered set, not just the returned page.
type SearchResult struct {
	Entries      []Entry      `json:"entries"`
	Total        int64        `json:"total"`
	Aggregations Aggregations `json:"aggregations"`
}

// Aggregations summarizes a filtered entry set.
type Aggregations struct {
	ByCategory map[Category]int64  `json:"by_category"`
	ByRisk     map[RiskLevel]int64 `json:"by_risk"`
	BySuccess  map[string]int64    `json:"by_success"`

	// DailyTimeline counts entries per UTC day, oldest first.
	DailyTimeline []TimelineBucket `json:"daily_timeline"`
}

// TimelineBucket is one day of the timeline.
type TimelineBucket struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Search queries entries and computes aggregations. The page honors the
// filter's Limit and Offset; the aggregations always cover the full match
// set so the summary does not shift as the caller pages.
func (l *Logger) Search(ctx context.Context, filter QueryFilter) (*SearchResult, error) {
	full := filter
	full.Limit = 0
	full.Offset = 0

	all, err := l.store.Query(ctx, full)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Total:        int64(len(all)),
		Aggregations: aggregate(all),
	}

	// Page from the already-ordered full set.
	page := all
	if filter.Offset > 0 {
		if filter.Offset >= len(page) {
			page = nil
		} else {
			page = page[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(page) > filter.Limit {
		page = page[:filter.Limit]
	}
	result.Entries = page
	if result.Entries == nil {
		result.Entries = []Entry{}
	}

	return result, nil
}

func aggregate(entries []Entry) Aggregations {
	agg := Aggregations{
		ByCategory: make(map[Category]int64),
		ByRisk:     make(map[RiskLevel]int64),
		BySuccess:  make(map[string]int64),
	}

	daily := make(map[string]int64)
	for i := range entries {
		e := &entries[i]
		agg.ByCategory[e.Category]++
		agg.ByRisk[e.Risk]++
		if e.Success {
			agg.BySuccess["success"]++
		} else {
			agg.BySuccess["failure"]++
		}
		daily[e.Timestamp.UTC().Format("2006-01-02")]++
	}

	days := make([]string, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Strings(days)

	agg.DailyTimeline = make([]TimelineBucket, 0, len(days))
	for _, d := range days {
		agg.DailyTimeline = append(agg.DailyTimeline, TimelineBucket{Date: d, Count: daily[d]})
	}

	return agg
}
