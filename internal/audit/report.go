// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ExportFormat selects the export serialization.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatCEF  ExportFormat = "cef"
)

// Period is a closed time range.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ComplianceReport summarizes audit activity over a period for regulators
// and internal compliance review.
type ComplianceReport struct {
	ID          string       `json:"id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Period      Period       `json:"period"`
	Categories  []Category   `json:"categories"`
	TotalError  int64        `json:"integrity_failures"`
	Total       int64        `json:"total_entries"`
	Summary     Aggregations `json:"summary"`

	// ComplianceFlagCounts counts entries per regulatory flag.
	ComplianceFlagCounts map[string]int64 `json:"compliance_flag_counts"`
}

// Export is a serialized audit extract with an optional rolled-up integrity
// proof over the included entries.
type Export struct {
	ID             string       `json:"id"`
	GeneratedAt    time.Time    `json:"generated_at"`
	Period         Period       `json:"period"`
	Format         ExportFormat `json:"format"`
	EntryCount     int          `json:"entry_count"`
	IntegrityProof string       `json:"integrity_proof,omitempty"`
	Data           []byte       `json:"data"`
}

// GenerateComplianceReport builds a report over the period, restricted to
// categories when non-empty. Integrity of every included entry is checked;
// failures are counted and raised through the usual tampering path.
func (l *Logger) GenerateComplianceReport(ctx context.Context, period Period, categories []Category) (*ComplianceReport, error) {
	entries, err := l.entriesForPeriod(ctx, period, categories)
	if err != nil {
		return nil, err
	}

	report := &ComplianceReport{
		ID:                   uuid.New().String(),
		GeneratedAt:          time.Now().UTC(),
		Period:               period,
		Categories:           categories,
		Total:                int64(len(entries)),
		Summary:              aggregate(entries),
		ComplianceFlagCounts: make(map[string]int64),
	}

	for i := range entries {
		for _, flag := range entries[i].ComplianceFlags {
			report.ComplianceFlagCounts[flag]++
		}
		if !VerifyEntry(&entries[i]) {
			report.TotalError++
			// Route through VerifyIntegrity so the tampering report and
			// escalation fire exactly as they would for a direct check.
			_ = l.VerifyIntegrity(ctx, entries[i].ID) //nolint:errcheck // violation already counted
		}
	}

	return report, nil
}

// ExportAuditLogs serializes entries for the period in the requested format.
// When includeProof is set the export carries a hash over the concatenated
// entry hashes, so any post-export modification of the extract is detectable
// against the live store.
func (l *Logger) ExportAuditLogs(ctx context.Context, period Period, categories []Category, format ExportFormat, includeProof bool) (*Export, error) {
	entries, err := l.entriesForPeriod(ctx, period, categories)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(entries, "", "  ")
	case FormatCSV:
		data, err = exportCSV(entries)
	case FormatCEF:
		data, err = NewCEFExporter().Export(entries)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("serialize export: %w", err)
	}

	export := &Export{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Period:      period,
		Format:      format,
		EntryCount:  len(entries),
		Data:        data,
	}
	if includeProof {
		export.IntegrityProof = ComputeExportProof(entries)
	}
	return export, nil
}

// entriesForPeriod queries the full ordered set for a period and optional
// category restriction. Ascending order keeps export proofs stable.
func (l *Logger) entriesForPeriod(ctx context.Context, period Period, categories []Category) ([]Entry, error) {
	filter := QueryFilter{
		Categories: categories,
		StartTime:  &period.Start,
		EndTime:    &period.End,
		OrderDesc:  false,
	}
	return l.store.Query(ctx, filter)
}

// exportCSV writes the tabular form. The sensitive-data column is omitted;
// encrypted payloads stay in the store.
func exportCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "timestamp", "event_type", "category", "risk", "actor_id",
		"admin_id", "ip_address", "resource", "action", "success",
		"correlation_id", "compliance_flags", "integrity_hash",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i := range entries {
		e := &entries[i]
		record := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.EventType,
			string(e.Category),
			string(e.Risk),
			e.ActorID,
			e.AdminID,
			e.IPAddress,
			e.Resource,
			e.Action,
			strconv.FormatBool(e.Success),
			e.CorrelationID,
			strings.Join(e.ComplianceFlags, ";"),
			e.IntegrityHash,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// CEFExporter exports entries in Common Event Format for SIEM ingestion.
type CEFExporter struct {
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
}

// NewCEFExporter creates a CEF exporter with defaults.
func NewCEFExporter() *CEFExporter {
	return &CEFExporter{
		DeviceVendor:  "WagerDeck",
		DeviceProduct: "Sentinel",
		DeviceVersion: "1.0",
	}
}

// Export serializes entries to CEF lines.
// CEF Format: CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
func (e *CEFExporter) Export(entries []Entry) ([]byte, error) {
	var lines []string

	for idx := range entries {
		entry := &entries[idx]
		line := fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
			e.escape(e.DeviceVendor),
			e.escape(e.DeviceProduct),
			e.escape(e.DeviceVersion),
			e.escape(entry.EventType),
			e.escape(entry.Action),
			cefSeverity(entry.Risk),
			e.buildExtension(entry),
		)
		lines = append(lines, line)
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// cefSeverity maps risk to the CEF 0-10 scale.
func cefSeverity(risk RiskLevel) int {
	switch risk {
	case RiskLow:
		return 3
	case RiskMedium:
		return 5
	case RiskHigh:
		return 7
	case RiskCritical:
		return 10
	default:
		return 0
	}
}

func (e *CEFExporter) buildExtension(entry *Entry) string {
	parts := []string{fmt.Sprintf("rt=%d", entry.Timestamp.UnixMilli())}

	if entry.ActorID != "" {
		parts = append(parts, "suid="+e.escape(entry.ActorID))
	}
	if entry.AdminID != "" {
		parts = append(parts, "duid="+e.escape(entry.AdminID))
	}
	if entry.IPAddress != "" {
		parts = append(parts, "src="+e.escape(entry.IPAddress))
	}
	if entry.Resource != "" {
		parts = append(parts, "cs1="+e.escape(entry.Resource), "cs1Label=resource")
	}

	outcome := "failure"
	if entry.Success {
		outcome = "success"
	}
	parts = append(parts, "outcome="+outcome, "cat="+e.escape(string(entry.Category)))

	if entry.CorrelationID != "" {
		parts = append(parts, "externalId="+e.escape(entry.CorrelationID))
	}

	return strings.Join(parts, " ")
}

// escape escapes special characters for CEF format.
func (e *CEFExporter) escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "=", "\\=")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
