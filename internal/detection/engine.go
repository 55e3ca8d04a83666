// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wagerdeck/sentinel/internal/audit"
	"github.com/wagerdeck/sentinel/internal/cache"
	"github.com/wagerdeck/sentinel/internal/logging"
	"github.com/wagerdeck/sentinel/internal/metrics"
)

// AuditRecorder receives audit entries for detections. Satisfied by
// audit.Logger.
type AuditRecorder interface {
	Append(ctx context.Context, entry *audit.Entry) error
}

var (
	// ErrInvalidTransition is returned for status changes the workflow
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownRule is returned when no registered rule matches the
	// requested threat type.
	ErrUnknownRule = errors.New("rule not found")
)

// Config configures the detection engine.
type Config struct {
	// Enabled controls whether events are analyzed at all.
	Enabled bool `json:"enabled"`

	// QueueSize bounds the async full-analysis queue. A full queue drops
	// events with a warning instead of blocking the request path.
	QueueSize int `json:"queue_size"`

	// Workers is the number of goroutines draining the queue.
	Workers int `json:"workers"`

	// DedupTTL is how long a threat key holds its deduplication window.
	DedupTTL time.Duration `json:"dedup_ttl"`

	// CleanupInterval is how often idle window state is pruned.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// EvidenceLimit caps evidence entries folded into one threat.
	EvidenceLimit int `json:"evidence_limit"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		QueueSize:       4096,
		Workers:         2,
		DedupTTL:        time.Hour,
		CleanupInterval: 5 * time.Minute,
		EvidenceLimit:   50,
	}
}

// stateCleaner is implemented by state backends that prune their own idle
// keys.
type stateCleaner interface {
	Cleanup() int
}

// Engine runs the detection rules over the event stream. Rules evaluate
// independently; a failing rule is logged and skipped, never aborting the
// event. Critical threats are handed to the escalator synchronously.
type Engine struct {
	config  Config
	threats ThreatStore
	events  EventStore
	state   State

	resolver  GeoResolver
	escalator Escalator
	recorder  AuditRecorder

	mu      sync.RWMutex
	rules   []Rule
	enabled bool

	// dedupMu serializes the create-or-fold decision so one ongoing
	// attack never produces two active threats for the same key.
	dedupMu sync.Mutex
	dedup   *cache.Cache

	queue    chan *SecurityEvent
	dropWarn *rate.Limiter
}

// NewEngine creates a detection engine. Register rules and collaborators
// before calling Run.
func NewEngine(threats ThreatStore, events EventStore, state State, config Config) *Engine {
	if config.QueueSize <= 0 {
		config.QueueSize = 4096
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.DedupTTL <= 0 {
		config.DedupTTL = time.Hour
	}
	if config.EvidenceLimit <= 0 {
		config.EvidenceLimit = 50
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	return &Engine{
		config:   config,
		threats:  threats,
		events:   events,
		state:    state,
		resolver: NoopGeoResolver{},
		enabled:  config.Enabled,
		dedup:    cache.New(config.DedupTTL),
		queue:    make(chan *SecurityEvent, config.QueueSize),
		dropWarn: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// RegisterRule adds a rule to the engine.
func (e *Engine) RegisterRule(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	logging.Info().Str("rule", string(rule.Type())).Msg("registered detection rule")
}

// RegisterDefaultRules wires the standard rule set.
func (e *Engine) RegisterDefaultRules() {
	e.RegisterRule(NewBruteForceRule())
	e.RegisterRule(NewVolumeFloodRule())
	e.RegisterRule(NewInjectionRule())
	e.RegisterRule(NewAnomalousActorRule())
	e.RegisterRule(NewImpossibleTravelRule())
	e.RegisterRule(NewAccountTakeoverRule())
}

// SetEscalator wires the incident escalation hook.
func (e *Engine) SetEscalator(escalator Escalator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.escalator = escalator
}

// SetGeoResolver wires the IP geolocation collaborator.
func (e *Engine) SetGeoResolver(resolver GeoResolver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if resolver != nil {
		e.resolver = resolver
	}
}

// SetAuditRecorder wires the audit log hook for detections.
func (e *Engine) SetAuditRecorder(recorder AuditRecorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = recorder
}

// Submit queues an event for asynchronous full analysis. A saturated queue
// drops the event with a warning and a metric bump; the caller is never
// blocked.
func (e *Engine) Submit(_ context.Context, event *SecurityEvent) error {
	if !e.Enabled() {
		return nil
	}
	finalizeEvent(event)

	select {
	case e.queue <- event:
		metrics.AnalysisQueueDepth.Set(float64(len(e.queue)))
		return nil
	default:
		metrics.AnalysisEventsDropped.Inc()
		if e.dropWarn.Allow() {
			logging.Warn().
				Str("event_type", event.EventType).
				Msg("analysis queue full, dropping events")
		}
		return nil
	}
}

// Analyze runs the full rule set against an event: geolocation enrichment,
// window state update, event persistence, then every enabled rule.
func (e *Engine) Analyze(ctx context.Context, event *SecurityEvent) []*Threat {
	if !e.Enabled() {
		return nil
	}
	finalizeEvent(event)
	metrics.EventsProcessed.WithLabelValues("full").Inc()

	e.enrich(ctx, event)
	e.state.Observe(event)

	if e.events != nil {
		if err := e.events.SaveEvent(ctx, event); err != nil {
			logging.Error().Err(err).Str("event_id", event.ID).Msg("failed to persist security event")
		}
	}

	return e.evaluate(ctx, event, false)
}

// FastPath runs only the synchronous rule subset, without touching storage
// or window state, so the middleware can block a request before it
// completes. The same event should still be submitted for full analysis.
func (e *Engine) FastPath(ctx context.Context, event *SecurityEvent) []*Threat {
	if !e.Enabled() {
		return nil
	}
	finalizeEvent(event)
	metrics.EventsProcessed.WithLabelValues("fast").Inc()

	return e.evaluate(ctx, event, true)
}

func finalizeEvent(event *SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// enrich overwrites event coordinates with the resolver's answer for the
// source IP. Caller-supplied coordinates are untrusted and never kept.
func (e *Engine) enrich(ctx context.Context, event *SecurityEvent) {
	e.mu.RLock()
	resolver := e.resolver
	e.mu.RUnlock()

	event.Latitude, event.Longitude = 0, 0
	event.City, event.Country = "", ""

	if event.IPAddress == "" {
		return
	}
	geo, err := resolver.Resolve(ctx, event.IPAddress)
	if err != nil {
		logging.Debug().Err(err).Str("ip", event.IPAddress).Msg("geolocation lookup failed")
		return
	}
	if geo == nil {
		return
	}
	event.Latitude = geo.Latitude
	event.Longitude = geo.Longitude
	event.City = geo.City
	event.Country = geo.Country
}

// evaluate runs the rules with per-rule error isolation and routes every
// produced threat through deduplication.
func (e *Engine) evaluate(ctx context.Context, event *SecurityEvent, fastOnly bool) []*Threat {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var out []*Threat
	for _, rule := range rules {
		if !rule.Enabled() || (fastOnly && !rule.Fast()) {
			continue
		}

		start := time.Now()
		threats, err := rule.Evaluate(ctx, event, e.state)
		metrics.RecordRuleEvaluation(string(rule.Type()), time.Since(start), err)
		if err != nil {
			logging.Error().Err(err).Str("rule", string(rule.Type())).Msg("rule evaluation failed")
			continue
		}

		for _, threat := range threats {
			if handled := e.handleThreat(ctx, threat); handled != nil {
				out = append(out, handled)
			}
		}
	}
	return out
}

// handleThreat creates a threat or folds it into the active one for the
// same (type, source IP, target actor) key.
func (e *Engine) handleThreat(ctx context.Context, threat *Threat) *Threat {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()

	key := threat.DedupKey()
	if existingID, ok := e.dedup.Get(key); ok {
		id, _ := existingID.(string)
		if folded := e.fold(ctx, id, threat); folded != nil {
			return folded
		}
		// The active threat vanished or was resolved; fall through and
		// open a fresh window.
	}

	threat.ID = uuid.New().String()
	if err := e.threats.SaveThreat(ctx, threat); err != nil {
		logging.Error().Err(err).Str("threat_id", threat.ID).Msg("failed to persist threat")
		return threat
	}
	e.dedup.SetWithTTL(key, threat.ID, e.config.DedupTTL)
	metrics.RecordThreat(string(threat.Type), string(threat.Severity))

	logging.Warn().
		Str("threat_id", threat.ID).
		Str("type", string(threat.Type)).
		Str("severity", string(threat.Severity)).
		Str("source_ip", threat.SourceIP).
		Str("actor_id", threat.TargetActorID).
		Msg("threat detected")

	e.recordDetection(ctx, threat)

	if threat.Severity == SeverityCritical {
		e.escalate(ctx, threat)
	}
	return threat
}

// fold merges a repeat detection into the existing active threat. Returns
// nil when the stored threat no longer holds the window.
func (e *Engine) fold(ctx context.Context, id string, repeat *Threat) *Threat {
	existing, err := e.threats.GetThreat(ctx, id)
	if err != nil || existing == nil || !existing.Active() {
		e.dedup.Delete(repeat.DedupKey())
		return nil
	}

	existing.Count++
	existing.LastActivity = repeat.LastActivity
	existing.UpdatedAt = time.Now().UTC()
	existing.Indicators = repeat.Indicators
	if len(existing.Evidence) < e.config.EvidenceLimit {
		existing.Evidence = append(existing.Evidence, repeat.Evidence...)
	}

	upgraded := repeat.Severity.AtLeast(existing.Severity) && repeat.Severity != existing.Severity
	if upgraded {
		existing.Severity = repeat.Severity
	}

	if err := e.threats.SaveThreat(ctx, existing); err != nil {
		logging.Error().Err(err).Str("threat_id", existing.ID).Msg("failed to update threat")
	}
	metrics.ThreatsDeduplicated.Inc()

	// A window that grew into critical still escalates once.
	if upgraded && existing.Severity == SeverityCritical && existing.IncidentID == "" {
		e.escalate(ctx, existing)
	}
	return existing
}

// escalate hands a critical threat to incident escalation synchronously.
func (e *Engine) escalate(ctx context.Context, threat *Threat) {
	e.mu.RLock()
	escalator := e.escalator
	e.mu.RUnlock()
	if escalator == nil {
		return
	}

	incidentID, err := escalator.EscalateThreat(ctx, threat)
	if err != nil {
		logging.Error().Err(err).Str("threat_id", threat.ID).Msg("incident escalation failed")
		return
	}

	threat.IncidentID = incidentID
	threat.UpdatedAt = time.Now().UTC()
	if err := e.threats.SaveThreat(ctx, threat); err != nil {
		logging.Error().Err(err).Str("threat_id", threat.ID).Msg("failed to link threat to incident")
	}
}

// recordDetection writes the audit entry for a newly created threat.
func (e *Engine) recordDetection(ctx context.Context, threat *Threat) {
	e.mu.RLock()
	recorder := e.recorder
	e.mu.RUnlock()
	if recorder == nil {
		return
	}

	details, _ := json.Marshal(map[string]string{
		"threat_id": threat.ID,
		"type":      string(threat.Type),
		"severity":  string(threat.Severity),
	})

	entry := &audit.Entry{
		EventType: "threat_detected",
		Category:  audit.CategorySecurityEvent,
		Risk:      audit.RiskLevel(threat.Severity),
		ActorID:   threat.TargetActorID,
		IPAddress: threat.SourceIP,
		Resource:  "threat:" + threat.ID,
		Action:    "detect",
		Success:   false,
		Details:   details,
	}
	if err := recorder.Append(ctx, entry); err != nil {
		logging.Error().Err(err).Str("threat_id", threat.ID).Msg("failed to audit threat detection")
	}
}

// ReportTampering raises a critical threat for a tampered audit entry. It
// implements audit.TamperReporter; the resulting detection is itself
// audited through an integrity-exempt entry, which terminates the loop.
func (e *Engine) ReportTampering(ctx context.Context, entry *audit.Entry) {
	indicators, _ := json.Marshal(map[string]string{
		"entry_id":   entry.ID,
		"event_type": entry.EventType,
		"category":   string(entry.Category),
	})

	threat := &Threat{
		Type:          ThreatAuditTampering,
		Severity:      SeverityCritical,
		Status:        StatusDetected,
		TargetActorID: entry.ActorID,
		Title:         "Audit Log Tampering",
		Description:   fmt.Sprintf("audit entry %s failed integrity verification", entry.ID),
		Indicators:    indicators,
		Evidence: []Evidence{{
			Timestamp: time.Now().UTC(),
			Note:      "integrity hash mismatch on entry " + entry.ID,
		}},
		Count:         1,
		FirstDetected: time.Now().UTC(),
		LastActivity:  time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	e.handleThreat(ctx, threat)
}

// UpdateThreatStatus applies a responder's status transition.
func (e *Engine) UpdateThreatStatus(ctx context.Context, id string, status ThreatStatus) (*Threat, error) {
	threat, err := e.threats.GetThreat(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(threat.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, threat.Status, status)
	}

	threat.Status = status
	threat.UpdatedAt = time.Now().UTC()
	if err := e.threats.SaveThreat(ctx, threat); err != nil {
		return nil, err
	}

	// Resolving a threat releases its dedup window immediately.
	if !threat.Active() {
		e.dedupMu.Lock()
		e.dedup.Delete(threat.DedupKey())
		e.dedupMu.Unlock()
	}
	return threat, nil
}

// ListThreats exposes threat search to the API layer.
func (e *Engine) ListThreats(ctx context.Context, filter ThreatFilter) ([]Threat, int64, error) {
	threats, err := e.threats.ListThreats(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := e.threats.CountThreats(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return threats, total, nil
}

// GetThreat retrieves a single threat.
func (e *Engine) GetThreat(ctx context.Context, id string) (*Threat, error) {
	return e.threats.GetThreat(ctx, id)
}

// ConfigureRule updates a rule's thresholds by threat type.
func (e *Engine) ConfigureRule(threatType ThreatType, config json.RawMessage) error {
	rule, ok := e.ruleByType(threatType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, threatType)
	}
	return rule.Configure(config)
}

// SetRuleEnabled enables or disables a rule by threat type.
func (e *Engine) SetRuleEnabled(threatType ThreatType, enabled bool) error {
	rule, ok := e.ruleByType(threatType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, threatType)
	}
	rule.SetEnabled(enabled)
	return nil
}

func (e *Engine) ruleByType(threatType ThreatType) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, rule := range e.rules {
		if rule.Type() == threatType {
			return rule, true
		}
	}
	return nil, false
}

// Rules returns the registered rules.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// SetEnabled enables or disables the engine.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled returns whether the engine is enabled.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// QueueDepth returns the current async queue length.
func (e *Engine) QueueDepth() int {
	return len(e.queue)
}

// Run drains the analysis queue and prunes idle window state until the
// context is canceled. Intended to run under the supervision tree.
func (e *Engine) Run(ctx context.Context) error {
	logging.Info().Int("workers", e.config.Workers).Msg("detection engine started")

	var wg sync.WaitGroup
	for i := 0; i < e.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}

	ticker := time.NewTicker(e.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			logging.Info().Msg("detection engine stopped")
			return ctx.Err()
		case <-ticker.C:
			if cleaner, ok := e.state.(stateCleaner); ok {
				if removed := cleaner.Cleanup(); removed > 0 {
					logging.Debug().Int("removed", removed).Msg("pruned idle detection state")
				}
			}
		}
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.queue:
			metrics.AnalysisQueueDepth.Set(float64(len(e.queue)))
			e.Analyze(ctx, event)
		}
	}
}
