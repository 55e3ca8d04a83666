// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wagerdeck/sentinel/internal/crypto"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCrypto(t *testing.T) *crypto.Service {
	t.Helper()
	svc, err := crypto.NewService(testSecret)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func newTestLogger(t *testing.T, store Store) *Logger {
	t.Helper()
	l := NewLogger(store, newTestCrypto(t), DefaultConfig())
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendSyncFinalizesEntry(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLogger(t, store)

	entry := &Entry{
		EventType: "wallet_withdrawal",
		Category:  CategoryDataModification,
		ActorID:   "user-7",
		Resource:  "wallet",
		Action:    "withdraw",
		Success:   true,
	}
	if err := l.AppendSync(context.Background(), entry); err != nil {
		t.Fatalf("AppendSync() error = %v", err)
	}

	saved, err := store.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if saved.ID == "" {
		t.Error("expected generated ID")
	}
	if saved.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if saved.Risk != RiskLow {
		t.Errorf("expected default risk low, got %s", saved.Risk)
	}
	if saved.IntegrityHash == "" {
		t.Error("expected integrity hash")
	}
	if !VerifyEntry(saved) {
		t.Error("expected saved entry to verify")
	}

	wantRetain := saved.Timestamp.Add(RetentionFor(CategoryDataModification))
	if !saved.RetainUntil.Equal(wantRetain) {
		t.Errorf("RetainUntil = %v, want %v", saved.RetainUntil, wantRetain)
	}

	wantFlags := map[string]bool{"gdpr": true, "pci_dss": true, "sox": true}
	if len(saved.ComplianceFlags) != len(wantFlags) {
		t.Fatalf("ComplianceFlags = %v", saved.ComplianceFlags)
	}
	for _, f := range saved.ComplianceFlags {
		if !wantFlags[f] {
			t.Errorf("unexpected compliance flag %q", f)
		}
	}
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()

	l := newTestLogger(t, NewMemoryStore())

	tests := []struct {
		name  string
		entry *Entry
	}{
		{"nil entry", nil},
		{"missing event type", &Entry{Category: CategoryAuthentication}},
		{"unknown category", &Entry{EventType: "login", Category: Category("bogus")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := l.Append(context.Background(), tt.entry); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Append() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestAppendAsyncFlushOnClose(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := NewLogger(store, newTestCrypto(t), DefaultConfig())

	for i := 0; i < 10; i++ {
		entry := &Entry{
			EventType: "record_view",
			Category:  CategoryDataAccess,
			ActorID:   "user-1",
		}
		if err := l.Append(context.Background(), entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if store.Len() != 10 {
		t.Errorf("expected 10 persisted entries, got %d", store.Len())
	}
}

func TestAppendDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	inSave := make(chan struct{}, 1)
	store := &blockingStore{MemoryStore: NewMemoryStore(), gate: gate, inSave: inSave}

	cfg := DefaultConfig()
	cfg.BufferSize = 1
	l := NewLogger(store, newTestCrypto(t), cfg)
	defer func() {
		close(gate)
		_ = l.Close()
	}()

	ctx := context.Background()
	mk := func() *Entry {
		return &Entry{EventType: "record_view", Category: CategoryDataAccess}
	}

	// First entry occupies the writer inside Save.
	if err := l.Append(ctx, mk()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	<-inSave

	// Second entry fills the queue.
	if err := l.Append(ctx, mk()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if l.QueueDepth() != 1 {
		t.Fatalf("expected queue depth 1, got %d", l.QueueDepth())
	}

	// Further entries are dropped, never blocked.
	done := make(chan error, 1)
	go func() { done <- l.Append(ctx, mk()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Append() error = %v, want nil drop", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Append blocked on a full queue")
	}
	if l.QueueDepth() != 1 {
		t.Errorf("expected queue depth to stay 1, got %d", l.QueueDepth())
	}
}

// blockingStore holds Save until the gate closes. The queue-overflow test
// uses it to pin the async writer.
type blockingStore struct {
	*MemoryStore
	gate   chan struct{}
	inSave chan struct{}
}

func (s *blockingStore) Save(ctx context.Context, entry *Entry) error {
	select {
	case s.inSave <- struct{}{}:
	default:
	}
	<-s.gate
	return s.MemoryStore.Save(ctx, entry)
}

// flakyStore fails the first failUntil Save calls, then succeeds.
type flakyStore struct {
	*MemoryStore
	failUntil int32
	attempts  atomic.Int32
}

func (s *flakyStore) Save(ctx context.Context, entry *Entry) error {
	if s.attempts.Add(1) <= s.failUntil {
		return errors.New("disk offline")
	}
	return s.MemoryStore.Save(ctx, entry)
}

func TestAsyncWriteRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: NewMemoryStore(), failUntil: 2}
	cfg := DefaultConfig()
	cfg.WriteRetries = 2
	cfg.RetryBackoff = time.Millisecond
	l := NewLogger(store, newTestCrypto(t), cfg)

	entry := &Entry{EventType: "record_view", Category: CategoryDataAccess}
	if err := l.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("expected entry persisted after retries, store has %d", store.Len())
	}
	if n := store.attempts.Load(); n != 3 {
		t.Errorf("save attempts = %d, want 3", n)
	}
}

func TestAsyncWriteDropsAfterRetriesExhausted(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: NewMemoryStore(), failUntil: 100}
	cfg := DefaultConfig()
	cfg.WriteRetries = 2
	cfg.RetryBackoff = time.Millisecond
	l := NewLogger(store, newTestCrypto(t), cfg)

	entry := &Entry{EventType: "record_view", Category: CategoryDataAccess}
	if err := l.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if store.Len() != 0 {
		t.Errorf("expected entry dropped, store has %d", store.Len())
	}
	if n := store.attempts.Load(); n != 3 {
		t.Errorf("save attempts = %d, want 3", n)
	}
}

func TestAsyncWriterFlushesOnInterval(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.FlushInterval = 20 * time.Millisecond
	l := NewLogger(store, newTestCrypto(t), cfg)
	defer func() { _ = l.Close() }()

	for i := 0; i < 3; i++ {
		entry := &Entry{EventType: "record_view", Category: CategoryDataAccess}
		if err := l.Append(context.Background(), entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("entries not flushed without Close, store has %d", store.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAsyncWriterFlushesWhenBatchFills(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	cfg.MaxBatchSize = 2
	l := NewLogger(store, newTestCrypto(t), cfg)
	defer func() { _ = l.Close() }()

	for i := 0; i < 4; i++ {
		entry := &Entry{EventType: "record_view", Category: CategoryDataAccess}
		if err := l.Append(context.Background(), entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	// The interval never fires; only full batches can have persisted these.
	deadline := time.Now().Add(2 * time.Second)
	for store.Len() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("batch did not flush on size, store has %d", store.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSensitiveDataEncrypted(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLogger(t, store)

	entry := &Entry{
		EventType:     "kyc_document_view",
		Category:      CategoryDataAccess,
		ActorID:       "admin-3",
		SensitiveData: "passport MX1234567",
	}
	if err := l.AppendSync(context.Background(), entry); err != nil {
		t.Fatalf("AppendSync() error = %v", err)
	}

	saved, err := store.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if saved.SensitiveData == "passport MX1234567" {
		t.Fatal("sensitive data stored in plaintext")
	}
	if strings.Contains(saved.SensitiveData, "passport") {
		t.Fatal("sensitive data leaked into ciphertext")
	}

	plain, err := l.DecryptSensitiveData(saved)
	if err != nil {
		t.Fatalf("DecryptSensitiveData() error = %v", err)
	}
	if plain != "passport MX1234567" {
		t.Errorf("decrypted = %q", plain)
	}
}

type recordingReporter struct {
	reported []*Entry
}

func (r *recordingReporter) ReportTampering(_ context.Context, entry *Entry) {
	r.reported = append(r.reported, entry)
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLogger(t, store)
	reporter := &recordingReporter{}
	l.SetTamperReporter(reporter)

	ctx := context.Background()
	entry := &Entry{
		EventType: "payout_approval",
		Category:  CategoryDataModification,
		ActorID:   "admin-9",
		Success:   true,
	}
	if err := l.AppendSync(ctx, entry); err != nil {
		t.Fatalf("AppendSync() error = %v", err)
	}

	if err := l.VerifyIntegrity(ctx, entry.ID); err != nil {
		t.Fatalf("VerifyIntegrity() on clean entry = %v", err)
	}

	if !store.tamperEntry(entry.ID, func(e *Entry) { e.ActorID = "admin-1" }) {
		t.Fatal("tamperEntry failed")
	}

	err := l.VerifyIntegrity(ctx, entry.ID)
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("VerifyIntegrity() error = %v, want ErrIntegrityViolation", err)
	}
	if len(reporter.reported) != 1 {
		t.Fatalf("expected 1 tamper report, got %d", len(reporter.reported))
	}
	if reporter.reported[0].ID != entry.ID {
		t.Errorf("reported entry ID = %s, want %s", reporter.reported[0].ID, entry.ID)
	}

	// A critical, verification-exempt tampering entry is recorded.
	reports, err := store.Query(ctx, QueryFilter{EventTypes: []string{EventTypeTampering}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 tampering entry, got %d", len(reports))
	}
	r := reports[0]
	if r.Risk != RiskCritical {
		t.Errorf("tampering risk = %s, want critical", r.Risk)
	}
	if r.Resource != "audit:"+entry.ID {
		t.Errorf("tampering resource = %s", r.Resource)
	}
	if !r.IntegrityExempt {
		t.Error("tampering entry must be verification exempt")
	}

	// Verifying the report itself must not recurse into another report.
	if err := l.VerifyIntegrity(ctx, r.ID); err != nil {
		t.Errorf("VerifyIntegrity(report) error = %v", err)
	}
	reports, _ = store.Query(ctx, QueryFilter{EventTypes: []string{EventTypeTampering}})
	if len(reports) != 1 {
		t.Errorf("expected tampering entry count to stay 1, got %d", len(reports))
	}
}

func TestVerifyRange(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLogger(t, store)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		entry := &Entry{EventType: "config_change", Category: CategoryConfiguration}
		if err := l.AppendSync(ctx, entry); err != nil {
			t.Fatalf("AppendSync() error = %v", err)
		}
		ids = append(ids, entry.ID)
	}
	store.tamperEntry(ids[1], func(e *Entry) { e.Success = true })

	failed, err := l.VerifyRange(ctx, QueryFilter{Categories: []Category{CategoryConfiguration}})
	if err != nil {
		t.Fatalf("VerifyRange() error = %v", err)
	}
	if len(failed) != 1 || failed[0] != ids[1] {
		t.Errorf("failed = %v, want [%s]", failed, ids[1])
	}
}

func TestCleanupExpiredKeepsInPolicyEntries(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLogger(t, store)
	ctx := context.Background()

	// system_access retains for one year; an entry two years old is expired,
	// a fresh one is not.
	old := &Entry{
		EventType: "ssh_login",
		Category:  CategorySystemAccess,
		Timestamp: time.Now().UTC().Add(-2 * 365 * 24 * time.Hour),
	}
	fresh := &Entry{
		EventType: "ssh_login",
		Category:  CategorySystemAccess,
	}
	longLived := &Entry{
		EventType: "wallet_withdrawal",
		Category:  CategoryDataModification,
		Timestamp: time.Now().UTC().Add(-2 * 365 * 24 * time.Hour),
	}
	for _, e := range []*Entry{old, fresh, longLived} {
		if err := l.AppendSync(ctx, e); err != nil {
			t.Fatalf("AppendSync() error = %v", err)
		}
	}

	deleted, err := l.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := store.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expected expired entry to be removed")
	}
	if _, err := store.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh entry removed: %v", err)
	}
	if _, err := store.Get(ctx, longLived.ID); err != nil {
		t.Errorf("in-policy data_modification entry removed: %v", err)
	}
}

func TestDisabledLoggerDiscards(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLogger(t, store)
	l.SetEnabled(false)

	entry := &Entry{EventType: "record_view", Category: CategoryDataAccess}
	if err := l.AppendSync(context.Background(), entry); err != nil {
		t.Fatalf("AppendSync() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected no writes while disabled, got %d", store.Len())
	}
}
