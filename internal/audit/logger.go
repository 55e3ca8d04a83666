// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/wagerdeck/sentinel/internal/crypto"
	"github.com/wagerdeck/sentinel/internal/logging"
	"github.com/wagerdeck/sentinel/internal/metrics"
)

// sensitiveDataContext binds encrypted audit payloads to this use.
const sensitiveDataContext = "audit.sensitive_data"

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// BufferSize is the size of the async write queue. When the queue is
	// full new entries are dropped with a warning rather than blocking the
	// request path.
	BufferSize int `json:"buffer_size"`

	// CleanupInterval is how often retention cleanup runs.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// WriteTimeout bounds a single store write.
	WriteTimeout time.Duration `json:"write_timeout"`

	// FlushInterval is how often the writer drains its pending batch even
	// when the batch is not full.
	FlushInterval time.Duration `json:"flush_interval"`

	// MaxBatchSize flushes the pending batch early once it reaches this many
	// entries.
	MaxBatchSize int `json:"max_batch_size"`

	// WriteRetries is how many times a failed store write is retried before
	// the entry is dropped with an alert. Retries stop early when the
	// circuit breaker opens.
	WriteRetries int `json:"write_retries"`

	// RetryBackoff is the delay before the first retry; it doubles on each
	// subsequent attempt.
	RetryBackoff time.Duration `json:"retry_backoff"`

	// MinRetention is a floor on entry retention. Per-category compliance
	// mandates are never shortened by it, only extended.
	MinRetention time.Duration `json:"min_retention"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		BufferSize:      1000,
		CleanupInterval: 24 * time.Hour,
		WriteTimeout:    5 * time.Second,
		FlushInterval:   time.Second,
		MaxBatchSize:    100,
		WriteRetries:    2,
		RetryBackoff:    100 * time.Millisecond,
	}
}

// TamperReporter receives notification when integrity verification finds a
// modified entry. The detection engine implements this to raise a critical
// security event.
type TamperReporter interface {
	ReportTampering(ctx context.Context, entry *Entry)
}

// Logger is the audit logging service. Append is non-blocking; a background
// writer drains the queue through a circuit breaker so a failing store slows
// nothing down on the request path.
type Logger struct {
	config    *Config
	store     Store
	cryptoSvc *crypto.Service
	reporter  TamperReporter

	entryChan chan *Entry
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	breaker *gobreaker.CircuitBreaker[any]

	// dropWarnLimiter throttles "queue full" warnings during floods.
	dropWarnLimiter *rate.Limiter

	mu sync.RWMutex
}

// NewLogger creates an audit logger and starts its async writer.
func NewLogger(store Store, cryptoSvc *crypto.Service, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 100
	}
	if config.WriteRetries < 0 {
		config.WriteRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 100 * time.Millisecond
	}

	l := &Logger{
		config:          config,
		store:           store,
		cryptoSvc:       cryptoSvc,
		entryChan:       make(chan *Entry, config.BufferSize),
		stopChan:        make(chan struct{}),
		dropWarnLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}

	l.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("audit store circuit breaker state change")
		},
	})

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// SetTamperReporter wires the escalation hook for integrity violations.
func (l *Logger) SetTamperReporter(r TamperReporter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reporter = r
}

// Append records an entry asynchronously. The entry is finalized (ID,
// timestamp, retention, compliance flags, sensitive-data encryption,
// integrity hash) before it is queued, then handed to the background writer.
// A full queue drops the entry with a warning and a metric bump.
func (l *Logger) Append(ctx context.Context, entry *Entry) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.finalize(ctx, entry); err != nil {
		return err
	}

	select {
	case l.entryChan <- entry:
		metrics.AuditQueueDepth.Set(float64(len(l.entryChan)))
		return nil
	default:
		metrics.AuditEntriesDropped.Inc()
		if l.dropWarnLimiter.Allow() {
			logging.Warn().
				Str("entry_id", entry.ID).
				Str("event_type", entry.EventType).
				Msg("audit queue full, dropping entries")
		}
		return nil
	}
}

// AppendSync records an entry synchronously, bypassing the queue. Used for
// entries that must not be lost, like tampering reports.
func (l *Logger) AppendSync(ctx context.Context, entry *Entry) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.finalize(ctx, entry); err != nil {
		return err
	}
	return l.write(entry)
}

// finalize validates and completes an entry prior to persistence. The
// integrity hash is computed last so it covers the final canonical content.
func (l *Logger) finalize(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	if entry.EventType == "" {
		return fmt.Errorf("%w: event type is required", ErrInvalidEntry)
	}
	if !ValidCategory(entry.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, entry.Category)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Risk == "" {
		entry.Risk = RiskLow
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = logging.RequestIDFromContext(ctx)
	}

	entry.ComplianceFlags = complianceFlagsFor(entry.Category)
	retention := RetentionFor(entry.Category)
	if l.config.MinRetention > retention {
		retention = l.config.MinRetention
	}
	entry.RetainUntil = entry.Timestamp.Add(retention)

	if entry.SensitiveData != "" && l.cryptoSvc != nil {
		encrypted, err := l.cryptoSvc.EncryptField(entry.SensitiveData, sensitiveDataContext)
		if err != nil {
			// Fail closed: an entry whose payload cannot be protected is
			// not persisted with plaintext.
			return fmt.Errorf("encrypt sensitive data: %w", err)
		}
		entry.SensitiveData = encrypted
	}

	entry.IntegrityHash = ComputeIntegrityHash(entry)
	return nil
}

// asyncWriter accumulates entries and flushes them in batches, either when
// the batch fills or on the flush interval. On stop it drains the queue and
// flushes everything left.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, l.config.MaxBatchSize)
	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case entry := <-l.entryChan:
					batch = append(batch, entry)
				default:
					l.flush(batch)
					return
				}
			}
		case entry := <-l.entryChan:
			batch = append(batch, entry)
			metrics.AuditQueueDepth.Set(float64(len(l.entryChan)))
			if len(batch) >= l.config.MaxBatchSize {
				batch = l.flush(batch)
			}
		case <-ticker.C:
			batch = l.flush(batch)
		}
	}
}

// flush persists every batched entry and returns the emptied batch slice.
func (l *Logger) flush(batch []*Entry) []*Entry {
	for _, entry := range batch {
		l.writeLogged(entry)
	}
	return batch[:0]
}

// writeLogged retries a failed write with doubling backoff before giving up.
// An open circuit breaker ends the retries immediately; once the attempts
// are spent the entry is dropped with an alert.
func (l *Logger) writeLogged(entry *Entry) {
	backoff := l.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := l.write(entry)
		if err == nil {
			return
		}
		if attempt >= l.config.WriteRetries || errors.Is(err, ErrStorageUnavailable) {
			metrics.AuditEntriesDropped.Inc()
			logging.Error().
				Err(err).
				Str("entry_id", entry.ID).
				Int("attempts", attempt+1).
				Msg("dropping audit entry after failed writes")
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

// write persists through the circuit breaker.
func (l *Logger) write(entry *Entry) error {
	_, err := l.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), l.config.WriteTimeout)
		defer cancel()
		return nil, l.store.Save(ctx, entry)
	})
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open", ErrStorageUnavailable)
		}
		return err
	}
	return nil
}

// VerifyIntegrity recomputes an entry's canonical hash and compares it to
// the stored value. A mismatch records a critical tampering entry (itself
// exempt from verification) and notifies the tamper reporter.
func (l *Logger) VerifyIntegrity(ctx context.Context, id string) error {
	entry, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if VerifyEntry(entry) {
		return nil
	}

	metrics.AuditIntegrityFailures.Inc()
	logging.Error().
		Str("entry_id", entry.ID).
		Str("event_type", entry.EventType).
		Msg("audit entry integrity violation detected")

	report := &Entry{
		EventType: EventTypeTampering,
		Category:  CategorySecurityEvent,
		Risk:      RiskCritical,
		ActorID:   entry.ActorID,
		AdminID:   entry.AdminID,
		Resource:  "audit:" + entry.ID,
		Action:    "verify",
		Success:   false,
		// Exempt so verifying the report itself cannot recurse.
		IntegrityExempt: true,
	}
	if err := l.AppendSync(ctx, report); err != nil {
		logging.Error().Err(err).Msg("failed to record tampering report")
	}

	l.mu.RLock()
	reporter := l.reporter
	l.mu.RUnlock()
	if reporter != nil {
		reporter.ReportTampering(ctx, entry)
	}

	return fmt.Errorf("%w: entry %s", ErrIntegrityViolation, id)
}

// VerifyRange verifies every entry matching the filter and returns the IDs
// that failed.
func (l *Logger) VerifyRange(ctx context.Context, filter QueryFilter) ([]string, error) {
	entries, err := l.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	var failed []string
	for i := range entries {
		if !VerifyEntry(&entries[i]) {
			failed = append(failed, entries[i].ID)
			if err := l.VerifyIntegrity(ctx, entries[i].ID); err != nil && !errors.Is(err, ErrIntegrityViolation) {
				return failed, err
			}
		}
	}
	return failed, nil
}

// CleanupExpired removes entries past their retention horizon.
func (l *Logger) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := l.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logging.Info().Int64("count", count).Msg("removed expired audit entries")
	}
	return count, nil
}

// RunCleanup runs retention cleanup on the configured interval until the
// context is canceled. Intended to run under the supervision tree.
func (l *Logger) RunCleanup(ctx context.Context) error {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := l.CleanupExpired(ctx); err != nil {
				logging.Error().Err(err).Msg("audit retention cleanup failed")
			}
		}
	}
}

// Query retrieves entries matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of entries matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Get retrieves a single entry by ID.
func (l *Logger) Get(ctx context.Context, id string) (*Entry, error) {
	return l.store.Get(ctx, id)
}

// DecryptSensitiveData returns the plaintext of an entry's encrypted payload.
// Only export and investigation paths call this.
func (l *Logger) DecryptSensitiveData(entry *Entry) (string, error) {
	if entry.SensitiveData == "" {
		return "", nil
	}
	if l.cryptoSvc == nil {
		return "", errors.New("crypto service not configured")
	}
	return l.cryptoSvc.DecryptField(entry.SensitiveData, sensitiveDataContext)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// QueueDepth returns the current async queue length.
func (l *Logger) QueueDepth() int {
	return len(l.entryChan)
}

// Close shuts down the logger, flushing queued entries.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
	return nil
}
