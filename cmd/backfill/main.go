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

// HR Intake Historical Backfill Command
//
// Standalone CLI tool that replays messages received within a lookback
// window through the intake routine. Messages are read without marking
// them seen. With --dry-run no database, Redis or SMTP is touched.
//
// Usage:
//
//	go run ./cmd/backfill/ [--since 168h] [--senders a@org.com,b@org.com] [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/hrintake/internal/app"
	"github.com/bcem/hrintake/internal/backfill"
	"github.com/bcem/hrintake/internal/config"
	"github.com/bcem/hrintake/internal/dedup"
	"github.com/bcem/hrintake/internal/employee"
	"github.com/bcem/hrintake/internal/events"
	"github.com/bcem/hrintake/internal/mailbox"
	"github.com/bcem/hrintake/internal/mailer"
)

func main() {
	// --- CLI Flags ---
	sinceFlag := flag.String("since", "168h", "Lookback duration (e.g. 168h for 1 week, 720h for 30 days)")
	sendersFlag := flag.String("senders", "", "Comma-separated sender addresses to replay (optional; empty = all)")
	dryRun := flag.Bool("dry-run", false, "Use an in-memory store and log mail instead of sending it")
	flag.Parse()

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(app.NewLogger(os.Stdout, cfg.LogLevel))

	slog.Info("starting historical backfill",
		"since", sinceDuration,
		"dry_run", *dryRun,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	tokens := app.TokenSource(ctx, cfg)
	deps := app.Deps{}
	var filter backfill.Deduper

	if *dryRun {
		deps.Employees = employee.NewMemoryStore()
		deps.Sender = mailer.LogSender{}
	} else {
		// --- Connect to PostgreSQL ---
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		store, err := employee.NewPostgresStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise employee store", "error", err)
			os.Exit(1)
		}
		deps.Employees = store

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
		deps.Publisher = publisher
		filter = dedup.NewFilter(rdb, cfg.DedupTTL)

		deps.Sender = mailer.NewTransport(cfg.SMTP, app.SMTPTokens(cfg, tokens))
	}

	src := mailbox.New(mailbox.Config{
		Addr:     cfg.Mailbox.Addr(),
		TLS:      cfg.Mailbox.TLS,
		Username: cfg.Mailbox.Username,
		Password: cfg.Mailbox.Password,
		Folder:   cfg.Mailbox.Folder,
		Tokens:   app.MailboxTokens(cfg, tokens),
	})

	// --- Run Backfill ---
	runner := backfill.NewRunner(backfill.RunnerConfig{
		Source:      src,
		Processor:   app.NewProcessor(cfg, deps),
		Dedup:       filter,
		Concurrency: cfg.Mailbox.MaxInFlight,
	})

	result, err := runner.Run(ctx, backfill.BackfillRequest{
		Since:   sinceDuration,
		Senders: backfill.ParseSenders(*sendersFlag),
	})
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("backfill complete",
		"found", result.Found,
		"processed", result.Processed,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
}
