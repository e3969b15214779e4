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

// HR Intake Service
//
// Entry point for the inbound-mail intake service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds the extraction, employee, document and mail components
//  4. Watches the HR mailbox and processes each new message
//  5. Serves health and metrics endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/hrintake/internal/app"
	"github.com/bcem/hrintake/internal/config"
	"github.com/bcem/hrintake/internal/dedup"
	"github.com/bcem/hrintake/internal/employee"
	"github.com/bcem/hrintake/internal/events"
	"github.com/bcem/hrintake/internal/health"
	"github.com/bcem/hrintake/internal/mailbox"
	"github.com/bcem/hrintake/internal/mailer"
	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/watcher"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	slog.SetDefault(app.NewLogger(os.Stdout, cfg.LogLevel))
	slog.Info("starting HR intake service")

	slog.Info("configuration loaded",
		"mailbox", cfg.Mailbox.Addr(),
		"folder", cfg.Mailbox.Folder,
		"delivery", cfg.Mailbox.Delivery,
		"max_in_flight", cfg.Mailbox.MaxInFlight,
		"smtp_profiles", len(cfg.SMTP.Profiles),
	)

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

	store, err := employee.NewPostgresStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise employee store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := events.NewPublisher(rdb, cfg.EventsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	filter := dedup.NewFilter(rdb, cfg.DedupTTL)

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Mail transports ---
	tokens := app.TokenSource(ctx, cfg)
	transport := mailer.NewTransport(cfg.SMTP, app.SMTPTokens(cfg, tokens))

	proc := app.NewProcessor(cfg, app.Deps{
		Employees: store,
		Sender:    transport,
		Publisher: publisher,
		Metrics:   m,
	})

	mb := mailbox.New(mailbox.Config{
		Addr:     cfg.Mailbox.Addr(),
		TLS:      cfg.Mailbox.TLS,
		Username: cfg.Mailbox.Username,
		Password: cfg.Mailbox.Password,
		Folder:   cfg.Mailbox.Folder,
		Tokens:   app.MailboxTokens(cfg, tokens),
	})

	poller := watcher.NewPoller(watcher.PollerConfig{
		Mailbox:      mb,
		Handler:      proc,
		Dedup:        filter,
		Metrics:      m,
		Delivery:     cfg.Mailbox.Delivery,
		MaxInFlight:  cfg.Mailbox.MaxInFlight,
		PollInterval: cfg.Mailbox.PollInterval,
	})

	// --- Health Check Server ---
	router := health.NewRouter([]health.Check{
		{Name: "redis", Pinger: publisher},
		{Name: "postgres", Pinger: store},
	}, reg)
	ready, err := health.Serve(ctx, cfg.Port, router)
	if err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	poller.Run(ctx)

	slog.Info("HR intake service stopped")
}
