// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Command server runs the riskgate HTTP service.
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

	"github.com/kestrelsec/riskgate/internal/api"
	"github.com/kestrelsec/riskgate/internal/audit"
	"github.com/kestrelsec/riskgate/internal/batch"
	"github.com/kestrelsec/riskgate/internal/behavior"
	"github.com/kestrelsec/riskgate/internal/config"
	"github.com/kestrelsec/riskgate/internal/fraud"
	"github.com/kestrelsec/riskgate/internal/intrusion"
	"github.com/kestrelsec/riskgate/internal/logging"
	"github.com/kestrelsec/riskgate/internal/models"
	"github.com/kestrelsec/riskgate/internal/resilience"
	"github.com/kestrelsec/riskgate/internal/signalstore"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("starting riskgate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signals, err := openSignalStore(cfg)
	if err != nil {
		return fmt.Errorf("open signal store: %w", err)
	}
	defer signals.Close()

	auditStore, err := openAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	if closer, ok := auditStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	trail := audit.NewTrail(auditStore, &audit.Config{
		Enabled:         true,
		BufferSize:      cfg.Audit.BufferSize,
		Retention:       cfg.Audit.Retention,
		CleanupInterval: 24 * time.Hour,
	})
	defer trail.Close()
	trail.StartCleanupRoutine(ctx)

	analyzer := behavior.NewAnalyzer(signals, cfg.Behavior.CacheSize, cfg.Behavior.CacheTTL)

	guard := resilience.NewGuard(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		ResetTimeout:     cfg.Resilience.ResetTimeout,
	}, trail)

	engine := fraud.NewEngine(fraud.Config{
		ComprehensiveThreshold: cfg.Fraud.ComprehensiveThreshold,
		QuickScanThreshold:     cfg.Fraud.QuickScanThreshold,
		VelocityWindow:         cfg.Fraud.VelocityWindow,
		VelocityMaxKeys:        cfg.Fraud.VelocityMaxKeys,
		LearningQueueSize:      cfg.Fraud.LearningQueueSize,
	}, analyzer, signals, guard, resilience.RetryConfig{
		MaxRetries:        cfg.Resilience.MaxRetries,
		BaseDelay:         cfg.Resilience.BaseDelay,
		MaxDelay:          cfg.Resilience.MaxDelay,
		BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
	}, trail)
	defer engine.Close()

	coordinator := batch.NewCoordinator(batch.Config{
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		MaxItems:       cfg.Batch.MaxItems,
	}, engine, trail)

	scanner := intrusion.NewScanner(intrusion.Config{
		BlockThreshold:  models.Severity(cfg.Intrusion.BlockThreshold),
		MaxPayloadBytes: cfg.Intrusion.MaxPayloadBytes,
		ExtraKeywords:   cfg.Intrusion.ExtraKeywords,
	})

	server := api.NewServer(cfg, engine, coordinator, analyzer, scanner, trail)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logging.Info().Msg("riskgate stopped")
	return nil
}

// openSignalStore selects the signal store backend from config.
func openSignalStore(cfg *config.Config) (signalstore.Store, error) {
	switch cfg.SignalStore.Backend {
	case "badger":
		if err := os.MkdirAll(cfg.SignalStore.Path, 0o750); err != nil {
			return nil, err
		}
		return signalstore.NewBadgerStore(cfg.SignalStore.Path, cfg.SignalStore.Retention)
	default:
		return signalstore.NewMemoryStore(cfg.SignalStore.Retention), nil
	}
}

// openAuditStore selects the audit store backend from config.
func openAuditStore(cfg *config.Config) (audit.Store, error) {
	switch cfg.Audit.Store {
	case "badger":
		if err := os.MkdirAll(cfg.Audit.Path, 0o750); err != nil {
			return nil, err
		}
		return audit.NewBadgerStore(cfg.Audit.Path)
	default:
		return audit.NewMemoryStore(cfg.Audit.MaxEntries), nil
	}
}
