// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/riskgate/config.yaml",
	"/etc/riskgate/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "RISKGATE_CONFIG"

// envPrefix is stripped from environment variables before mapping them
// to config paths: RISKGATE_SERVER_PORT -> server.port.
const envPrefix = "RISKGATE_"

// defaultConfig returns a Config with all defaults. Applied first,
// then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			RateLimitReqs:       100,
			RateLimitPrivileged: 1000,
			RateLimitWindow:     1 * time.Minute,
			RateLimitDisabled:   false,
			PrivilegedKeys:      []string{},
			CORSOrigins:         []string{"*"},
			TrustedProxies:      []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Behavior: BehaviorConfig{
			CacheSize: 1000,
			CacheTTL:  5 * time.Minute,
		},
		Intrusion: IntrusionConfig{
			BlockThreshold:  "high",
			MaxPayloadBytes: 1 << 20, // 1MB
			ExtraKeywords:   []string{},
		},
		Fraud: FraudConfig{
			ComprehensiveThreshold: 60,
			QuickScanThreshold:     65,
			VelocityWindow:         10 * time.Minute,
			VelocityMaxKeys:        10000,
			LearningQueueSize:      1000,
		},
		Resilience: ResilienceConfig{
			MaxRetries:        3,
			BaseDelay:         100 * time.Millisecond,
			MaxDelay:          5 * time.Second,
			BackoffMultiplier: 2.0,
			FailureThreshold:  5,
			ResetTimeout:      30 * time.Second,
		},
		Audit: AuditConfig{
			Store:      "memory",
			Path:       "/data/riskgate/audit",
			BufferSize: 1000,
			MaxEntries: 10000,
			Retention:  30 * 24 * time.Hour,
		},
		SignalStore: SignalStoreConfig{
			Backend:   "memory",
			Path:      "/data/riskgate/signals",
			Retention: 30 * 24 * time.Hour,
		},
		Batch: BatchConfig{
			MaxConcurrency: 5,
			MaxItems:       20,
		},
	}
}

// Load builds configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// RISKGATE_SERVER_PORT -> server.port
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars arrive as strings; known slice fields need splitting.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches the env override then the default paths.
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

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when sourced from environment variables.
var sliceConfigPaths = []string{
	"security.privileged_keys",
	"security.cors_origins",
	"security.trusted_proxies",
	"intrusion.extra_keywords",
}

// processSliceFields converts comma-separated string values to slices
// for the known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML) - skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps RISKGATE_* environment variables to koanf
// config paths. The section name is the first underscore-delimited
// token; the rest becomes the key.
//
// Examples:
//   - RISKGATE_SERVER_PORT -> server.port
//   - RISKGATE_SECURITY_RATE_LIMIT_REQS -> security.rate_limit_reqs
//   - RISKGATE_SIGNAL_STORE_BACKEND -> signal_store.backend
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	// Two-word sections need explicit handling before the generic split.
	if rest, ok := strings.CutPrefix(key, "signal_store_"); ok {
		return "signal_store." + rest
	}

	section, rest, found := strings.Cut(key, "_")
	if !found {
		return ""
	}

	switch section {
	case "server", "security", "logging", "behavior", "intrusion",
		"fraud", "resilience", "audit", "batch":
		return section + "." + rest
	}

	// Unmapped keys are skipped so stray environment variables cannot
	// pollute the config.
	return ""
}
