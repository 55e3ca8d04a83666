// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-master-secret-0123456789abcdef"

func TestDefaultValidatesWithSecret(t *testing.T) {
	cfg := Default()
	cfg.Security.MasterSecret = testSecret

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadRequiresMasterSecret(t *testing.T) {
	t.Setenv("SENTINEL_MASTER_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without a master secret")
	}
	if !strings.Contains(err.Error(), "master_secret") {
		t.Errorf("error %q does not mention the master secret", err)
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("SENTINEL_MASTER_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a secret under the minimum length")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SENTINEL_MASTER_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8085 {
		t.Errorf("port = %d, want 8085", cfg.Server.Port)
	}
	if cfg.Detection.BruteForce.IPHighThreshold != 20 {
		t.Errorf("brute force high = %d, want 20", cfg.Detection.BruteForce.IPHighThreshold)
	}
	if cfg.Detection.Engine.DedupTTL != time.Hour {
		t.Errorf("dedup ttl = %v, want 1h", cfg.Detection.Engine.DedupTTL)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit disabled by default")
	}
	if cfg.Incident.MergeWindow != time.Hour {
		t.Errorf("merge window = %v, want 1h", cfg.Incident.MergeWindow)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SENTINEL_MASTER_SECRET", testSecret)
	t.Setenv("SENTINEL_PORT", "9090")
	t.Setenv("SENTINEL_LOG_LEVEL", "debug")
	t.Setenv("SENTINEL_BRUTE_FORCE_IP_HIGH", "30")
	t.Setenv("SENTINEL_TOKEN_TTL", "30m")
	t.Setenv("SENTINEL_DB_IN_MEMORY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Detection.BruteForce.IPHighThreshold != 30 {
		t.Errorf("brute force high = %d, want 30", cfg.Detection.BruteForce.IPHighThreshold)
	}
	if cfg.Security.TokenTTL != 30*time.Minute {
		t.Errorf("token ttl = %v, want 30m", cfg.Security.TokenTTL)
	}
	if !cfg.Database.InMemory {
		t.Error("in_memory override not applied")
	}
}

func TestLoadIgnoresUnknownEnvVars(t *testing.T) {
	t.Setenv("SENTINEL_MASTER_SECRET", testSecret)
	t.Setenv("SENTINEL_SOMETHING_UNRELATED", "value")

	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("SENTINEL_MASTER_SECRET", testSecret)
	t.Setenv("SENTINEL_CORS_ORIGINS", "https://app.wagerdeck.example, https://admin.wagerdeck.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"https://app.wagerdeck.example", "https://admin.wagerdeck.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("origin[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9191
  environment: development
detection:
  volume_flood:
    high_threshold: 500
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SENTINEL_CONFIG_PATH", path)
	t.Setenv("SENTINEL_MASTER_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, want 9191 from file", cfg.Server.Port)
	}
	if cfg.Detection.VolumeFlood.HighThreshold != 500 {
		t.Errorf("flood high = %d, want 500 from file", cfg.Detection.VolumeFlood.HighThreshold)
	}
	// Untouched sections keep defaults.
	if cfg.Detection.VolumeFlood.CriticalThreshold != 2000 {
		t.Errorf("flood critical = %d, want default 2000", cfg.Detection.VolumeFlood.CriticalThreshold)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SENTINEL_CONFIG_PATH", path)
	t.Setenv("SENTINEL_MASTER_SECRET", testSecret)
	t.Setenv("SENTINEL_PORT", "9292")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9292 {
		t.Errorf("port = %d, env should beat file", cfg.Server.Port)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"bad environment", func(c *Config) { c.Server.Environment = "staging" }},
		{"cors wildcard in production", func(c *Config) { c.Server.CORSOrigins = []string{"*"} }},
		{"no database path", func(c *Config) { c.Database.Path = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero queue", func(c *Config) { c.Detection.Engine.QueueSize = 0 }},
		{"zero workers", func(c *Config) { c.Detection.Engine.Workers = 0 }},
		{"zero dedup ttl", func(c *Config) { c.Detection.Engine.DedupTTL = 0 }},
		{"zero retention", func(c *Config) { c.Audit.RetentionDays = 0 }},
		{"zero merge window", func(c *Config) { c.Incident.MergeWindow = 0 }},
		{"max page below default", func(c *Config) { c.API.MaxPageSize = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Security.MasterSecret = testSecret
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestValidateAllowsWildcardInDevelopment(t *testing.T) {
	cfg := Default()
	cfg.Security.MasterSecret = testSecret
	cfg.Server.Environment = "development"
	cfg.Server.CORSOrigins = []string{"*"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
