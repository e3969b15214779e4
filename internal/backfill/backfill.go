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

// Package backfill replays historical mailbox messages through the intake
// routine. Messages are read without changing their seen state.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bcem/hrintake/internal/intake"
	"github.com/bcem/hrintake/internal/keyqueue"
	"github.com/bcem/hrintake/internal/mailbox"
	"github.com/bcem/hrintake/internal/mimeparse"
	"github.com/bcem/hrintake/internal/models"
)

// Source is the mailbox being replayed.
type Source interface {
	Connect(ctx context.Context) error
	SearchSince(ctx context.Context, since time.Time) ([]uint32, error)
	Fetch(ctx context.Context, uids []uint32, markSeen bool) ([]mailbox.Message, error)
	Close() error
}

// Processor runs the intake routine for one message.
type Processor interface {
	Process(ctx context.Context, msg *models.InboundMessage) (*intake.Report, error)
}

// Deduper remembers processed Message-IDs.
type Deduper interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

// BackfillRequest defines the scope of a replay run.
type BackfillRequest struct {
	Since   time.Duration // lookback window (e.g. 168h = 1 week)
	Senders []string      // optional sender filter; empty means everyone
}

// BackfillResult summarises a completed run.
type BackfillResult struct {
	Found     int
	Processed int
	Created   int
	Skipped   int
	Errors    int
	Elapsed   time.Duration
}

// Runner performs historical replay.
type Runner struct {
	source      Source
	processor   Processor
	dedup       Deduper
	batchSize   int
	batchDelay  time.Duration // delay between fetch batches to go easy on the server
	concurrency int
}

// RunnerConfig holds dependencies for the backfill runner. Dedup may be nil.
type RunnerConfig struct {
	Source      Source
	Processor   Processor
	Dedup       Deduper
	BatchSize   int
	BatchDelay  time.Duration
	Concurrency int
}

// NewRunner creates a backfill runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Runner{
		source:      cfg.Source,
		processor:   cfg.Processor,
		dedup:       cfg.Dedup,
		batchSize:   cfg.BatchSize,
		batchDelay:  cfg.BatchDelay,
		concurrency: cfg.Concurrency,
	}
}

// Run replays every message received within req.Since. Per-message failures
// are counted, not returned.
func (r *Runner) Run(ctx context.Context, req BackfillRequest) (*BackfillResult, error) {
	start := time.Now()
	since := start.Add(-req.Since)

	if err := r.source.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect mailbox: %w", err)
	}
	defer r.source.Close()

	uids, err := r.source.SearchSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("search mailbox: %w", err)
	}

	slog.Info("starting historical backfill",
		"since", since.Format(time.RFC3339),
		"messages", len(uids),
	)

	senders := make(map[string]bool, len(req.Senders))
	for _, s := range req.Senders {
		if s = models.NormalizeEmail(s); s != "" {
			senders[s] = true
		}
	}

	result := &BackfillResult{Found: len(uids)}
	var mu sync.Mutex
	count := func(f func(*BackfillResult)) {
		mu.Lock()
		f(result)
		mu.Unlock()
	}

	keys := keyqueue.New()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for batch := 0; batch*r.batchSize < len(uids); batch++ {
		if batch > 0 {
			select {
			case <-ctx.Done():
				g.Wait()
				return result, ctx.Err()
			case <-time.After(r.batchDelay):
			}
		}

		end := min((batch+1)*r.batchSize, len(uids))
		msgs, err := r.source.Fetch(ctx, uids[batch*r.batchSize:end], false)
		if err != nil {
			g.Wait()
			return result, fmt.Errorf("fetch batch %d: %w", batch, err)
		}

		for _, raw := range msgs {
			msg, err := mimeparse.Parse(raw.Reader(), raw.InternalDate)
			if err != nil {
				slog.Warn("backfill: unparseable message", "uid", raw.UID, "error", err)
				count(func(res *BackfillResult) { res.Skipped++ })
				continue
			}
			if len(senders) > 0 && !senders[msg.From] {
				count(func(res *BackfillResult) { res.Skipped++ })
				continue
			}

			ticket := keys.Acquire(msg.From)
			g.Go(func() error {
				defer ticket.Release()
				if err := ticket.Wait(gctx); err != nil {
					return nil
				}
				r.replay(gctx, msg, count)
				return nil
			})
		}
	}
	g.Wait()

	result.Elapsed = time.Since(start)
	slog.Info("historical backfill complete",
		"found", result.Found,
		"processed", result.Processed,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (r *Runner) replay(ctx context.Context, msg *models.InboundMessage, count func(func(*BackfillResult))) {
	if r.dedup != nil && msg.MessageID != "" {
		seen, err := r.dedup.Seen(ctx, msg.MessageID)
		if err != nil {
			slog.Warn("dedup check failed", "error", err)
		} else if seen {
			count(func(res *BackfillResult) { res.Skipped++ })
			return
		}
	}

	report, err := r.processor.Process(ctx, msg)
	if err != nil {
		slog.Warn("backfill: message failed",
			"message_id", msg.MessageID,
			"sender", msg.From,
			"error", err,
		)
		count(func(res *BackfillResult) { res.Errors++ })
		return
	}

	if r.dedup != nil && msg.MessageID != "" {
		if err := r.dedup.Mark(ctx, msg.MessageID); err != nil {
			slog.Warn("dedup mark failed", "message_id", msg.MessageID, "error", err)
		}
	}
	count(func(res *BackfillResult) {
		res.Processed++
		if report != nil && report.Created {
			res.Created++
		}
	})
}

// ParseSenders splits a comma-separated sender list.
func ParseSenders(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
