// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Subscription Scanner Service
//
// Entry point for the long-running scanner. It:
//  1. Loads configuration from .env and config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds an OAuth2 Graph client per tenant
//  4. Periodically scans configured or discovered mailboxes for billing emails
//  5. Periodically runs the alert rules and queues notifications
//  6. Serves /health and /metrics
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/killswitch/scanner/internal/alerts"
	"github.com/killswitch/scanner/internal/catalog"
	"github.com/killswitch/scanner/internal/config"
	"github.com/killswitch/scanner/internal/currency"
	"github.com/killswitch/scanner/internal/dedup"
	"github.com/killswitch/scanner/internal/discovery"
	"github.com/killswitch/scanner/internal/extract"
	"github.com/killswitch/scanner/internal/graph"
	"github.com/killswitch/scanner/internal/logging"
	"github.com/killswitch/scanner/internal/metrics"
	"github.com/killswitch/scanner/internal/queue"
	"github.com/killswitch/scanner/internal/scanner"
	"github.com/killswitch/scanner/internal/subscription"
)

func init() {
	// Downstream workers read amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	slog.Info("starting subscription scanner service",
		"tenants", len(cfg.Tenants),
		"scan_interval", cfg.Scan.Interval,
		"alert_interval", cfg.Scan.AlertInterval,
	)

	vendors := catalog.Default()
	if cfg.CatalogPath != "" {
		vendors, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			slog.Error("failed to load vendor catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("vendor catalog loaded", "signatures", vendors.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	store, err := subscription.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise subscription store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	filter := dedup.NewFilter(rdb, 2*cfg.Scan.Lookback)
	publisher := queue.NewPublisher(rdb, cfg.NotificationsQueue, filter)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Build OAuth2 clients per tenant ---
	resolver := discovery.NewResolver(graph.DefaultBaseURL)
	var mailboxes []scanner.Mailbox
	for _, tenant := range cfg.Tenants {
		if tenant.Provider != "m365" {
			slog.Warn("skipping tenant with unsupported provider", "tenant", tenant.Alias, "provider", tenant.Provider)
			continue
		}
		client := graph.NewTenantClient(ctx, tenant.TenantID, tenant.ClientID, tenant.ClientSecret, "")
		users, err := resolver.Mailboxes(ctx, client, tenant)
		if err != nil {
			slog.Error("mailbox discovery failed", "tenant", tenant.Alias, "error", err)
			continue
		}
		if len(users) == 0 {
			slog.Warn("tenant has no mailboxes to scan", "tenant", tenant.Alias)
			continue
		}
		mailboxes = append(mailboxes, scanner.Mailbox{
			TenantAlias: tenant.Alias,
			Client:      client,
			Users:       users,
		})
	}

	runner := scanner.NewRunner(scanner.RunnerConfig{
		Mail:      graph.NewClient(graph.DefaultBaseURL, 0),
		Extractor: extract.New(vendors, extract.WithConcurrency(cfg.Scan.Concurrency)),
		Store:     store,
		Dedup:     filter,
		Engine:    alerts.NewEngine(alerts.WithConcurrency(cfg.Scan.Concurrency)),
		Sink:      publisher,
		Rates:     currency.NewNormalizer(cfg.CurrencyRates),
		Lookback:  cfg.Scan.Lookback,
	})
	runner.Start(ctx, mailboxes, cfg.Scan.Interval, cfg.Scan.AlertInterval)

	// --- Health and Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop all background goroutines

		runner.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("scanner service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("scanner service stopped")
}
