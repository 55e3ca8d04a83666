// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package config

import (
	"fmt"
	"time"

	"github.com/wagerdeck/sentinel/internal/crypto"
	"github.com/wagerdeck/sentinel/internal/detection"
)

// Config is the complete Sentinel configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Security  SecurityConfig  `json:"security"`
	Detection DetectionConfig `json:"detection"`
	Audit     AuditConfig     `json:"audit"`
	Incident  IncidentConfig  `json:"incident"`
	API       APIConfig       `json:"api"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host        string        `json:"host"`
	Port        int           `json:"port"`
	ReadTimeout time.Duration `json:"read_timeout"`
	// WriteTimeout bounds response writes, including audit exports.
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Environment is "production" or "development". Production tightens
	// validation: CORS wildcards and missing secrets are fatal.
	Environment string `json:"environment"`

	CORSOrigins    []string `json:"cors_origins"`
	TrustedProxies []string `json:"trusted_proxies"`

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables
	// rate limiting.
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
}

// DatabaseConfig configures the Badger store.
type DatabaseConfig struct {
	Path string `json:"path"`

	// InMemory runs without persistence. Threats and audit history are
	// lost on restart; only suitable for evaluation.
	InMemory bool `json:"in_memory"`

	// GCInterval is how often value log garbage collection runs.
	GCInterval time.Duration `json:"gc_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Caller bool   `json:"caller"`
}

// SecurityConfig carries secrets and token settings.
type SecurityConfig struct {
	// MasterSecret seeds every derived key. Minimum length is enforced
	// by the crypto service.
	MasterSecret string `json:"master_secret"`

	TokenTTL           time.Duration `json:"token_ttl"`
	CapabilityTokenTTL time.Duration `json:"capability_token_ttl"`
	MaxTokensPerHour   int           `json:"max_tokens_per_hour"`

	// MaxBodySample caps request body bytes inspected by the security
	// middleware.
	MaxBodySample int `json:"max_body_sample"`

	// ReadSampleRate audits one in N otherwise-unaudited reads.
	ReadSampleRate int `json:"read_sample_rate"`
}

// DetectionConfig wires the engine and its rules.
type DetectionConfig struct {
	Engine           detection.Config                 `json:"engine"`
	BruteForce       detection.BruteForceConfig       `json:"brute_force"`
	VolumeFlood      detection.VolumeFloodConfig      `json:"volume_flood"`
	Injection        detection.InjectionConfig        `json:"injection"`
	AnomalousActor   detection.AnomalousActorConfig   `json:"anomalous_actor"`
	ImpossibleTravel detection.ImpossibleTravelConfig `json:"impossible_travel"`
	AccountTakeover  detection.AccountTakeoverConfig  `json:"account_takeover"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled         bool          `json:"enabled"`
	BufferSize      int           `json:"buffer_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// RetentionDays is a floor on entry retention. Per-category compliance
	// mandates are never shortened by it, only extended.
	RetentionDays int `json:"retention_days"`
}

// IncidentConfig configures incident escalation.
type IncidentConfig struct {
	// MergeWindow is how recently an open incident must have been
	// updated for a new threat of the same origin to fold into it.
	MergeWindow time.Duration `json:"merge_window"`
}

// APIConfig configures response paging.
type APIConfig struct {
	DefaultPageSize int `json:"default_page_size"`
	MaxPageSize     int `json:"max_page_size"`
}

// Default returns the built-in configuration. The master secret has no
// default on purpose.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8085,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			Environment:       "production",
			CORSOrigins:       nil,
			TrustedProxies:    nil,
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Path:       "/data/sentinel",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			MasterSecret:       "",
			TokenTTL:           time.Hour,
			CapabilityTokenTTL: 10 * time.Minute,
			MaxTokensPerHour:   120,
			MaxBodySample:      8 * 1024,
			ReadSampleRate:     100,
		},
		Detection: DetectionConfig{
			Engine:           detection.DefaultConfig(),
			BruteForce:       detection.DefaultBruteForceConfig(),
			VolumeFlood:      detection.DefaultVolumeFloodConfig(),
			Injection:        detection.DefaultInjectionConfig(),
			AnomalousActor:   detection.DefaultAnomalousActorConfig(),
			ImpossibleTravel: detection.DefaultImpossibleTravelConfig(),
			AccountTakeover:  detection.DefaultAccountTakeoverConfig(),
		},
		Audit: AuditConfig{
			Enabled:         true,
			BufferSize:      1000,
			CleanupInterval: 24 * time.Hour,
			RetentionDays:   365,
		},
		Incident: IncidentConfig{
			MergeWindow: time.Hour,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
	}
}

// Validate checks the configuration for values that would make the
// service start in an unsafe or broken state.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Environment != "production" && c.Server.Environment != "development" {
		return fmt.Errorf("server.environment must be production or development, got %q", c.Server.Environment)
	}

	if len(c.Security.MasterSecret) < crypto.MinSecretLength {
		return fmt.Errorf("security.master_secret must be at least %d characters, set SENTINEL_MASTER_SECRET", crypto.MinSecretLength)
	}

	if c.Server.Environment == "production" {
		for _, origin := range c.Server.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("server.cors_origins wildcard is not allowed in production")
			}
		}
	}

	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database.path required unless database.in_memory is set")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q not recognized", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Detection.Engine.QueueSize <= 0 {
		return fmt.Errorf("detection.engine.queue_size must be positive")
	}
	if c.Detection.Engine.Workers <= 0 {
		return fmt.Errorf("detection.engine.workers must be positive")
	}
	if c.Detection.Engine.DedupTTL <= 0 {
		return fmt.Errorf("detection.engine.dedup_ttl must be positive")
	}

	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit.retention_days must be at least 1")
	}
	if c.Incident.MergeWindow <= 0 {
		return fmt.Errorf("incident.merge_window must be positive")
	}

	if c.API.DefaultPageSize < 1 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api paging invalid: default %d, max %d", c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	return nil
}
