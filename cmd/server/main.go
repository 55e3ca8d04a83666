// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package main is the entry point for the Sentinel server.
//
// Sentinel is the security core of the WagerDeck betting platform: it
// ingests security events from the platform's services, runs threat
// detection over them, escalates critical findings into incidents, and
// keeps a tamper-evident audit trail.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file,
//     SENTINEL_* environment variables). Startup fails fast when
//     SENTINEL_MASTER_SECRET is missing or weak.
//  2. Logging: zerolog, JSON by default.
//  3. Storage: BadgerDB holding threats, events, incidents, and audit
//     entries under per-collection key prefixes.
//  4. Services: crypto, tokens, audit logger, incident manager, detection
//     engine with the standard rule set.
//  5. HTTP: chi router wrapped in the request security middleware.
//  6. Supervision: suture tree running the engine, janitors, and server.
//
// # Signal handling
//
// SIGINT and SIGTERM trigger a graceful stop: the HTTP server drains
// in-flight requests, the engine's workers finish their queue slots, and
// the audit logger flushes its async queue before the process exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/api"
	"github.com/wagerdeck/sentinel/internal/audit"
	"github.com/wagerdeck/sentinel/internal/config"
	"github.com/wagerdeck/sentinel/internal/crypto"
	"github.com/wagerdeck/sentinel/internal/detection"
	"github.com/wagerdeck/sentinel/internal/incident"
	"github.com/wagerdeck/sentinel/internal/logging"
	"github.com/wagerdeck/sentinel/internal/middleware"
	"github.com/wagerdeck/sentinel/internal/supervisor"
	"github.com/wagerdeck/sentinel/internal/supervisor/services"
	"github.com/wagerdeck/sentinel/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Bool("db_in_memory", cfg.Database.InMemory).
		Msg("starting sentinel")

	db, err := openBadger(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open storage")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing storage")
		}
	}()

	cryptoSvc, err := crypto.NewService(cfg.Security.MasterSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize crypto service")
	}

	tokens := token.NewService(cryptoSvc, token.Config{
		TTL:             cfg.Security.TokenTTL,
		MaxIssuePerHour: cfg.Security.MaxTokensPerHour,
		CapabilityTTL:   cfg.Security.CapabilityTokenTTL,
	})

	auditCfg := audit.DefaultConfig()
	auditCfg.Enabled = cfg.Audit.Enabled
	auditCfg.BufferSize = cfg.Audit.BufferSize
	auditCfg.CleanupInterval = cfg.Audit.CleanupInterval
	auditCfg.MinRetention = time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	auditor := audit.NewLogger(audit.NewBadgerStore(db), cryptoSvc, auditCfg)
	defer func() {
		if err := auditor.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing audit logger")
		}
	}()

	incidents := incident.NewManager(incident.NewBadgerStore(db), incident.Config{
		MergeWindow: cfg.Incident.MergeWindow,
	})

	engine := detection.NewEngine(
		detection.NewBadgerThreatStore(db),
		detection.NewBadgerEventStore(db, 0),
		detection.NewMemoryState(),
		cfg.Detection.Engine,
	)
	engine.RegisterDefaultRules()
	if err := configureRules(engine, &cfg.Detection); err != nil {
		logging.Fatal().Err(err).Msg("failed to apply detection rule configuration")
	}
	engine.SetEscalator(incidents)
	engine.SetAuditRecorder(auditor)
	auditor.SetTamperReporter(engine)

	securityMw := middleware.NewSecurity(engine, auditor, gatewayIdentity(), middleware.SecurityConfig{
		MaxBodySample:  cfg.Security.MaxBodySample,
		ReadSampleRate: cfg.Security.ReadSampleRate,
	})

	perf := middleware.NewPerformanceMonitor(0)

	handler := api.NewHandler(api.HandlerConfig{
		Engine:          engine,
		Incidents:       incidents,
		Auditor:         auditor,
		Tokens:          tokens,
		Perf:            perf,
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
	})

	router := api.NewRouter(api.RouterConfig{
		Handler:           handler,
		Security:          securityMw,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(treeCfg)

	if !cfg.Database.InMemory {
		tree.AddStorageService(services.NewBadgerGCService(db, cfg.Database.GCInterval))
	}
	if cfg.Audit.Enabled {
		tree.AddStorageService(services.NewAuditCleanupService(auditor))
	}
	tree.AddStorageService(services.NewTokenJanitorService(tokens, 0))
	tree.AddAnalysisService(services.NewDetectionService(engine))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("waiting for supervisor tree to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("sentinel stopped")
}

// openBadger opens the shared BadgerDB instance. Badger's own chatty logger
// is disabled; operational signals come from the GC service and metrics.
func openBadger(cfg *config.DatabaseConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return db, nil
}

// configureRules pushes the configured thresholds into the registered rule
// set. Rules keep their built-in defaults for sections the operator left
// untouched, since config defaults mirror them.
func configureRules(engine *detection.Engine, cfg *config.DetectionConfig) error {
	sections := []struct {
		threatType detection.ThreatType
		config     interface{}
	}{
		{detection.ThreatBruteForce, cfg.BruteForce},
		{detection.ThreatDDoS, cfg.VolumeFlood},
		{detection.ThreatSQLInjection, cfg.Injection},
		{detection.ThreatSuspiciousActivity, cfg.AnomalousActor},
		{detection.ThreatImpossibleTravel, cfg.ImpossibleTravel},
		{detection.ThreatAccountTakeover, cfg.AccountTakeover},
	}

	for _, section := range sections {
		raw, err := json.Marshal(section.config)
		if err != nil {
			return fmt.Errorf("marshal %s rule config: %w", section.threatType, err)
		}
		if err := engine.ConfigureRule(section.threatType, raw); err != nil {
			return fmt.Errorf("configure %s rule: %w", section.threatType, err)
		}
	}
	return nil
}

// gatewayIdentity resolves the acting identity from the headers WagerDeck's
// edge gateway stamps on authenticated requests. Unauthenticated traffic
// yields an empty identity; detection then keys on source IP alone.
func gatewayIdentity() middleware.IdentityResolver {
	return middleware.IdentityResolverFunc(func(r *http.Request) middleware.Identity {
		return middleware.Identity{
			ActorID:   r.Header.Get("X-Wagerdeck-Actor"),
			SessionID: r.Header.Get("X-Wagerdeck-Session"),
		}
	})
}
