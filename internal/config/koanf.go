// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentinel/config.yaml",
	"/etc/sentinel/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "SENTINEL_CONFIG_PATH"

// envPrefix namespaces every Sentinel environment variable.
const envPrefix = "SENTINEL_"

// Load builds the configuration from defaults, an optional YAML file, and
// SENTINEL_* environment variables, highest layer last. The result is
// validated; an unusable configuration is an error, never a warning.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "json"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names, minus the SENTINEL_ prefix
// and lowercased, to config paths. Unmapped variables are ignored so
// unrelated environment noise never leaks into the configuration.
var envMappings = map[string]string{
	"host":                "server.host",
	"port":                "server.port",
	"read_timeout":        "server.read_timeout",
	"write_timeout":       "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"environment":         "server.environment",
	"cors_origins":        "server.cors_origins",
	"trusted_proxies":     "server.trusted_proxies",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	"db_path":        "database.path",
	"db_in_memory":   "database.in_memory",
	"db_gc_interval": "database.gc_interval",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"master_secret":        "security.master_secret",
	"token_ttl":            "security.token_ttl",
	"capability_token_ttl": "security.capability_token_ttl",
	"max_tokens_per_hour":  "security.max_tokens_per_hour",
	"max_body_sample":      "security.max_body_sample",
	"read_sample_rate":     "security.read_sample_rate",

	"detection_enabled":          "detection.engine.enabled",
	"detection_queue_size":       "detection.engine.queue_size",
	"detection_workers":          "detection.engine.workers",
	"detection_dedup_ttl":        "detection.engine.dedup_ttl",
	"detection_cleanup_interval": "detection.engine.cleanup_interval",
	"detection_evidence_limit":   "detection.engine.evidence_limit",

	"brute_force_ip_high":        "detection.brute_force.ip_high_threshold",
	"brute_force_ip_critical":    "detection.brute_force.ip_critical_threshold",
	"brute_force_actor_failures": "detection.brute_force.actor_failure_threshold",
	"brute_force_actor_ips":      "detection.brute_force.actor_distinct_ips",

	"volume_flood_high":     "detection.volume_flood.high_threshold",
	"volume_flood_critical": "detection.volume_flood.critical_threshold",

	"injection_high_matches":     "detection.injection.high_match_count",
	"injection_critical_matches": "detection.injection.critical_match_count",

	"anomalous_distinct_ips":  "detection.anomalous_actor.distinct_ip_threshold",
	"anomalous_failure_ratio": "detection.anomalous_actor.failure_ratio",
	"anomalous_min_events":    "detection.anomalous_actor.min_events",

	"travel_max_speed_kmh":  "detection.impossible_travel.max_speed_kmh",
	"travel_min_distance":   "detection.impossible_travel.min_distance_km",
	"travel_min_time_delta": "detection.impossible_travel.min_time_delta",

	"takeover_change_threshold": "detection.account_takeover.change_threshold",

	"audit_enabled":          "audit.enabled",
	"audit_buffer_size":      "audit.buffer_size",
	"audit_cleanup_interval": "audit.cleanup_interval",
	"audit_retention_days":   "audit.retention_days",

	"incident_merge_window": "incident.merge_window",

	"api_default_page_size": "api.default_page_size",
	"api_max_page_size":     "api.max_page_size",
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when supplied
// through the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"server.trusted_proxies",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// WatchConfigFile invokes callback whenever the config file changes. The
// caller owns synchronization around any reload.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
