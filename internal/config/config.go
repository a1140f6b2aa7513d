// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package config defines the service configuration and its layered
// loading: built-in defaults, an optional YAML file, then environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
	Behavior    BehaviorConfig    `koanf:"behavior"`
	Intrusion   IntrusionConfig   `koanf:"intrusion"`
	Fraud       FraudConfig       `koanf:"fraud"`
	Resilience  ResilienceConfig  `koanf:"resilience"`
	Audit       AuditConfig       `koanf:"audit"`
	SignalStore SignalStoreConfig `koanf:"signal_store"`
	Batch       BatchConfig       `koanf:"batch"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// SecurityConfig controls rate limiting and CORS.
type SecurityConfig struct {
	// RateLimitReqs is the per-window request budget for standard callers.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitPrivileged is the budget for privileged API keys.
	RateLimitPrivileged int `koanf:"rate_limit_privileged"`

	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// PrivilegedKeys lists API keys granted the higher rate tier.
	PrivilegedKeys []string `koanf:"privileged_keys"`

	CORSOrigins    []string `koanf:"cors_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// BehaviorConfig tunes the behavioral pattern analyzer.
type BehaviorConfig struct {
	// CacheSize bounds the pattern-set cache entries.
	CacheSize int `koanf:"cache_size"`

	// CacheTTL expires cached pattern sets.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// IntrusionConfig tunes the signature scanner.
type IntrusionConfig struct {
	// BlockThreshold is the minimum threat level that yields a block
	// recommendation: low, medium or high.
	BlockThreshold string `koanf:"block_threshold"`

	// MaxPayloadBytes flags request bodies larger than this as anomalous.
	MaxPayloadBytes int `koanf:"max_payload_bytes"`

	// ExtraKeywords extends the built-in suspicious keyword set.
	ExtraKeywords []string `koanf:"extra_keywords"`
}

// FraudConfig tunes the decision engine.
type FraudConfig struct {
	// ComprehensiveThreshold is the combined confidence above which a
	// comprehensive verdict is fraud.
	ComprehensiveThreshold float64 `koanf:"comprehensive_threshold"`

	// QuickScanThreshold is the score above which a quick scan flags fraud.
	QuickScanThreshold float64 `koanf:"quick_scan_threshold"`

	// VelocityWindow and VelocityMaxKeys bound the per-phone-hash call
	// frequency counters.
	VelocityWindow  time.Duration `koanf:"velocity_window"`
	VelocityMaxKeys int           `koanf:"velocity_max_keys"`

	// LearningQueueSize bounds the best-effort signal write-back queue.
	LearningQueueSize int `koanf:"learning_queue_size"`
}

// ResilienceConfig tunes retry and circuit breaker defaults.
type ResilienceConfig struct {
	MaxRetries        int           `koanf:"max_retries"`
	BaseDelay         time.Duration `koanf:"base_delay"`
	MaxDelay          time.Duration `koanf:"max_delay"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`

	FailureThreshold uint32        `koanf:"failure_threshold"`
	ResetTimeout     time.Duration `koanf:"reset_timeout"`
}

// AuditConfig tunes the audit trail.
type AuditConfig struct {
	// Store selects the backing store: memory or badger.
	Store string `koanf:"store"`

	// Path is the badger directory when Store is badger.
	Path string `koanf:"path"`

	// BufferSize bounds the async event queue.
	BufferSize int `koanf:"buffer_size"`

	// MaxEntries bounds the memory store before eviction.
	MaxEntries int `koanf:"max_entries"`

	// Retention expires persisted entries in the badger store.
	Retention time.Duration `koanf:"retention"`
}

// SignalStoreConfig selects the risk signal store backend.
type SignalStoreConfig struct {
	// Backend selects the store: memory or badger.
	Backend string `koanf:"backend"`

	// Path is the badger directory when Backend is badger.
	Path string `koanf:"path"`

	// Retention expires stored signal events.
	Retention time.Duration `koanf:"retention"`
}

// BatchConfig tunes the batch coordinator.
type BatchConfig struct {
	// MaxConcurrency is the fixed in-flight ceiling for batch items.
	MaxConcurrency int `koanf:"max_concurrency"`

	// MaxItems is the largest accepted batch.
	MaxItems int `koanf:"max_items"`
}

// Validate checks invariants that the type system cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("security.rate_limit_reqs must be positive, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitPrivileged < c.Security.RateLimitReqs {
		return fmt.Errorf("security.rate_limit_privileged (%d) must be >= security.rate_limit_reqs (%d)",
			c.Security.RateLimitPrivileged, c.Security.RateLimitReqs)
	}
	switch c.Intrusion.BlockThreshold {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("intrusion.block_threshold must be low, medium or high, got %q", c.Intrusion.BlockThreshold)
	}
	if c.Fraud.ComprehensiveThreshold < 0 || c.Fraud.ComprehensiveThreshold > 100 {
		return fmt.Errorf("fraud.comprehensive_threshold must be 0-100, got %g", c.Fraud.ComprehensiveThreshold)
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must be >= 0, got %d", c.Resilience.MaxRetries)
	}
	if c.Resilience.BackoffMultiplier < 1 {
		return fmt.Errorf("resilience.backoff_multiplier must be >= 1, got %g", c.Resilience.BackoffMultiplier)
	}
	if c.Resilience.FailureThreshold == 0 {
		return fmt.Errorf("resilience.failure_threshold must be positive")
	}
	switch c.Audit.Store {
	case "memory", "badger":
	default:
		return fmt.Errorf("audit.store must be memory or badger, got %q", c.Audit.Store)
	}
	if c.Audit.Store == "badger" && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit.store is badger")
	}
	switch c.SignalStore.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("signal_store.backend must be memory or badger, got %q", c.SignalStore.Backend)
	}
	if c.SignalStore.Backend == "badger" && c.SignalStore.Path == "" {
		return fmt.Errorf("signal_store.path is required when signal_store.backend is badger")
	}
	if c.Batch.MaxConcurrency < 1 {
		return fmt.Errorf("batch.max_concurrency must be positive, got %d", c.Batch.MaxConcurrency)
	}
	if c.Batch.MaxItems < 1 {
		return fmt.Errorf("batch.max_items must be positive, got %d", c.Batch.MaxItems)
	}
	return nil
}
