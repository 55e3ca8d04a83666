// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/cache"
)

// Pattern categories used as automaton match data.
const (
	patternSQL = "sql"
	patternXSS = "xss"
)

// sqlPatterns are SQL fragments that rarely appear together in legitimate
// bet-slip or account payloads.
var sqlPatterns = []string{
	"union select",
	"' or '1'='1",
	"or 1=1",
	"'; drop table",
	"drop table",
	"insert into",
	"delete from",
	"xp_cmdshell",
	"information_schema",
	"load_file(",
	"sleep(",
	"benchmark(",
	"waitfor delay",
}

// xssPatterns are script injection markers. A single match is already
// suspicious; these strings have no place in form fields.
var xssPatterns = []string{
	"<script",
	"</script",
	"javascript:",
	"onerror=",
	"onload=",
	"onclick=",
	"onmouseover=",
	"<iframe",
	"document.cookie",
	"eval(",
	"srcdoc=",
}

// InjectionConfig configures the injection pattern rule.
type InjectionConfig struct {
	// HighMatchCount is the distinct pattern match count that raises a
	// high severity threat.
	HighMatchCount int `json:"high_match_count"`

	// CriticalMatchCount raises a critical threat.
	CriticalMatchCount int `json:"critical_match_count"`
}

// DefaultInjectionConfig returns sensible defaults.
func DefaultInjectionConfig() InjectionConfig {
	return InjectionConfig{
		HighMatchCount:     2,
		CriticalMatchCount: 4,
	}
}

// InjectionIndicators carries the evidence for an injection threat.
type InjectionIndicators struct {
	Patterns   []string `json:"patterns"`
	SQLMatches int      `json:"sql_matches"`
	XSSMatches int      `json:"xss_matches"`
	Path       string   `json:"path,omitempty"`
}

// InjectionRule matches serialized request content against a fixed set of
// SQL and XSS payload fragments using an Aho-Corasick automaton, so one
// pass covers every pattern regardless of how many are registered.
type InjectionRule struct {
	config  InjectionConfig
	matcher *cache.AhoCorasick
	enabled bool
	mu      sync.RWMutex
}

// NewInjectionRule creates the rule and builds the pattern automaton.
func NewInjectionRule() *InjectionRule {
	matcher := cache.NewAhoCorasick()
	matcher.AddPatterns(sqlPatterns, patternSQL)
	matcher.AddPatterns(xssPatterns, patternXSS)
	matcher.Build()

	return &InjectionRule{
		config:  DefaultInjectionConfig(),
		matcher: matcher,
		enabled: true,
	}
}

// Type returns the threat type. The concrete threat may instead carry
// ThreatXSS when only script patterns matched.
func (r *InjectionRule) Type() ThreatType {
	return ThreatSQLInjection
}

// Fast reports that this rule runs on the synchronous path.
func (r *InjectionRule) Fast() bool {
	return true
}

// Evaluate scans the event's request content for injection patterns.
func (r *InjectionRule) Evaluate(_ context.Context, event *SecurityEvent, _ State) ([]*Threat, error) {
	r.mu.RLock()
	config := r.config
	enabled := r.enabled
	r.mu.RUnlock()

	if !enabled {
		return nil, nil
	}

	content := serializeRequestContent(event)
	if content == "" {
		return nil, nil
	}

	matched := make(map[string]string)
	for _, m := range r.matcher.Search(content) {
		category, _ := m.Data.(string)
		matched[m.Pattern] = category
	}
	if len(matched) == 0 {
		return nil, nil
	}

	patterns := make([]string, 0, len(matched))
	sqlCount, xssCount := 0, 0
	for pattern, category := range matched {
		patterns = append(patterns, pattern)
		if category == patternXSS {
			xssCount++
		} else {
			sqlCount++
		}
	}

	// Two independent matches make intent unambiguous. A lone XSS marker
	// is still suspicious on its own; a lone SQL keyword is not.
	var severity Severity
	switch {
	case len(matched) >= config.CriticalMatchCount:
		severity = SeverityCritical
	case len(matched) >= config.HighMatchCount:
		severity = SeverityHigh
	case xssCount > 0:
		severity = SeverityMedium
	default:
		return nil, nil
	}

	threatType := ThreatSQLInjection
	title := "SQL Injection Attempt"
	if xssCount > 0 && sqlCount == 0 {
		threatType = ThreatXSS
		title = "Cross-Site Scripting Attempt"
	}

	var path string
	if event.Details.Request != nil {
		path = event.Details.Request.Path
	}
	indicators, _ := json.Marshal(InjectionIndicators{
		Patterns:   patterns,
		SQLMatches: sqlCount,
		XSSMatches: xssCount,
		Path:       path,
	})

	t := newThreat(event, threatType, severity,
		title,
		fmt.Sprintf("%d injection patterns matched in request content from %s", len(matched), event.IPAddress),
		indicators)
	return []*Threat{t}, nil
}

// serializeRequestContent flattens the parts of an event an attacker
// controls into one searchable string.
func serializeRequestContent(event *SecurityEvent) string {
	req := event.Details.Request
	if req == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(req.Path)
	if req.Query != "" {
		b.WriteByte('?')
		b.WriteString(req.Query)
	}
	if req.Body != "" {
		b.WriteByte('\n')
		b.WriteString(req.Body)
	}
	if event.UserAgent != "" {
		b.WriteByte('\n')
		b.WriteString(event.UserAgent)
	}
	return b.String()
}

// Configure updates the rule thresholds. The pattern set is fixed.
func (r *InjectionRule) Configure(config json.RawMessage) error {
	var newConfig InjectionConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if newConfig.HighMatchCount <= 0 || newConfig.CriticalMatchCount <= 0 {
		return fmt.Errorf("match counts must be positive")
	}
	if newConfig.CriticalMatchCount < newConfig.HighMatchCount {
		return fmt.Errorf("critical_match_count must be >= high_match_count")
	}

	r.mu.Lock()
	r.config = newConfig
	r.mu.Unlock()
	return nil
}

// Enabled returns whether this rule is enabled.
func (r *InjectionRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *InjectionRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}
