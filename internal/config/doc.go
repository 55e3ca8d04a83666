// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

// Package config loads and validates the Sentinel configuration.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file, then environment variables. Later layers override earlier
// ones, so a container deployment can run entirely on environment
// variables while a bare-metal install uses /etc/sentinel/config.yaml.
//
// The master secret is deliberately not part of the Config struct
// defaults. It must come from the SENTINEL_MASTER_SECRET environment
// variable or the config file, and loading fails fast when it is missing
// or shorter than the crypto service minimum. Every derived key in the
// system depends on it; starting without one would silently disable
// audit integrity.
package config
