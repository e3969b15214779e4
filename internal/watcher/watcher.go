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

// Package watcher runs the mailbox loop: it waits for new mail, fetches
// unseen messages and hands them to the intake processor with per-sender
// ordering and bounded concurrency.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bcem/hrintake/internal/config"
	"github.com/bcem/hrintake/internal/intake"
	"github.com/bcem/hrintake/internal/keyqueue"
	"github.com/bcem/hrintake/internal/mailbox"
	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/mimeparse"
	"github.com/bcem/hrintake/internal/models"
)

// Mailbox is the IMAP session the loop drives.
type Mailbox interface {
	Connect(ctx context.Context) error
	SearchUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uids []uint32, markSeen bool) ([]mailbox.Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	WaitForMail(ctx context.Context, maxWait time.Duration, interrupt <-chan struct{}) (mailbox.WakeReason, error)
	Close() error
}

// Handler processes one parsed message.
type Handler interface {
	Process(ctx context.Context, msg *models.InboundMessage) (*intake.Report, error)
}

// Deduper remembers Message-IDs that were fully processed.
type Deduper interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

const (
	minReconnectBackoff = time.Second
	maxReconnectBackoff = time.Minute

	// A message that keeps failing in at-least-once mode is retried with
	// doubling delays and acknowledged after maxAttempts.
	maxAttempts     = 5
	minRetryBackoff = 30 * time.Second
	maxRetryBackoff = 30 * time.Minute
)

type retryState struct {
	attempts  int
	notBefore time.Time
}

// PollerConfig holds the settings of a Poller. Dedup and Metrics may be nil.
type PollerConfig struct {
	Mailbox      Mailbox
	Handler      Handler
	Dedup        Deduper
	Metrics      *metrics.Metrics
	Delivery     string
	MaxInFlight  int
	PollInterval time.Duration
}

// Poller watches the mailbox until its context ends.
type Poller struct {
	mailbox      Mailbox
	handler      Handler
	dedup        Deduper
	metrics      *metrics.Metrics
	atLeastOnce  bool
	pollInterval time.Duration

	keys *keyqueue.Queue
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	minBackoff time.Duration
	maxBackoff time.Duration

	maxAttempts     int
	minRetryBackoff time.Duration
	maxRetryBackoff time.Duration

	mu       sync.Mutex
	inFlight map[uint32]bool
	retries  map[uint32]*retryState
	acks     []uint32
	ackReady chan struct{}
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &Poller{
		mailbox:      cfg.Mailbox,
		handler:      cfg.Handler,
		dedup:        cfg.Dedup,
		metrics:      cfg.Metrics,
		atLeastOnce:  cfg.Delivery == config.DeliveryAtLeastOnce,
		pollInterval: cfg.PollInterval,
		keys:         keyqueue.New(),
		sem:          semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		minBackoff:   minReconnectBackoff,
		maxBackoff:   maxReconnectBackoff,

		maxAttempts:     maxAttempts,
		minRetryBackoff: minRetryBackoff,
		maxRetryBackoff: maxRetryBackoff,

		inFlight:     make(map[uint32]bool),
		retries:      make(map[uint32]*retryState),
		ackReady:     make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled. Connection failures are retried with
// exponential backoff. Messages already handed off are allowed to finish
// before Run returns.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("mailbox watcher starting",
		"poll_interval", p.pollInterval,
		"at_least_once", p.atLeastOnce,
	)

	backoff := p.minBackoff
	for ctx.Err() == nil {
		connected, err := p.session(ctx)
		if ctx.Err() != nil {
			break
		}
		if connected {
			backoff = p.minBackoff
		}
		slog.Error("mailbox session ended, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}

	p.wg.Wait()
	if err := p.flushAcks(context.Background()); err != nil {
		slog.Warn("final acknowledgement failed", "error", err)
	}
	if err := p.mailbox.Close(); err != nil {
		slog.Debug("mailbox close failed", "error", err)
	}
	slog.Info("mailbox watcher stopped")
}

// session connects and loops check/wait until an error occurs.
func (p *Poller) session(ctx context.Context) (bool, error) {
	if err := p.mailbox.Connect(ctx); err != nil {
		return false, err
	}
	slog.Info("mailbox connected")

	for {
		if err := p.flushAcks(ctx); err != nil {
			return true, err
		}
		if err := p.checkLatest(ctx); err != nil {
			return true, err
		}

		reason, err := p.mailbox.WaitForMail(ctx, p.pollInterval, p.ackReady)
		if err != nil {
			return true, err
		}
		slog.Debug("mailbox wake", "reason", reason.String())
	}
}

// checkLatest fetches every unseen message not already in flight and
// dispatches it. Dispatch order per sender is fetch order.
func (p *Poller) checkLatest(ctx context.Context) error {
	uids, err := p.mailbox.SearchUnseen(ctx)
	if err != nil {
		return err
	}
	uids = p.claim(uids)
	if len(uids) == 0 {
		return nil
	}

	msgs, err := p.mailbox.Fetch(ctx, uids, !p.atLeastOnce)
	if err != nil {
		p.unclaim(uids...)
		return err
	}
	slog.Info("fetched new messages", "count", len(msgs))

	fetched := make(map[uint32]bool, len(msgs))
	for _, raw := range msgs {
		fetched[raw.UID] = true

		msg, err := mimeparse.Parse(raw.Reader(), raw.InternalDate)
		if err != nil {
			slog.Warn("skipping unparseable message", "uid", raw.UID, "error", err)
			p.metrics.MessageDone(intake.OutcomeSkipped, time.Now())
			p.ack(raw.UID)
			continue
		}

		ticket := p.keys.Acquire(msg.From)
		p.wg.Add(1)
		go p.handle(ctx, raw.UID, msg, ticket)
	}

	// Messages expunged between search and fetch.
	for _, uid := range uids {
		if !fetched[uid] {
			p.unclaim(uid)
		}
	}
	return nil
}

func (p *Poller) handle(ctx context.Context, uid uint32, msg *models.InboundMessage, ticket *keyqueue.Ticket) {
	defer p.wg.Done()
	defer ticket.Release()
	log := slog.With("uid", uid, "message_id", msg.MessageID, "sender", msg.From)

	if err := ticket.Wait(ctx); err != nil {
		p.unclaim(uid)
		return
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.unclaim(uid)
		return
	}
	defer p.sem.Release(1)

	// Started work runs to completion on shutdown.
	work := context.WithoutCancel(ctx)

	if p.alreadyProcessed(work, msg.MessageID) {
		log.Info("message already processed, acknowledging")
		p.ack(uid)
		return
	}

	if _, err := p.handler.Process(work, msg); err != nil {
		if errors.Is(err, mimeparse.ErrNoSender) {
			p.ack(uid)
			return
		}
		if !p.atLeastOnce {
			p.unclaim(uid)
			return
		}
		attempts, wait, giveUp := p.deferRetry(uid)
		if giveUp {
			log.Error("message failed too many times, acknowledging", "attempts", attempts, "error", err)
			p.ack(uid)
			return
		}
		log.Warn("message left unseen for retry", "attempts", attempts, "retry_in", wait, "error", err)
		return
	}

	if p.dedup != nil && msg.MessageID != "" {
		if err := p.dedup.Mark(work, msg.MessageID); err != nil {
			log.Warn("dedup mark failed", "error", err)
		}
	}
	p.ack(uid)
}

func (p *Poller) alreadyProcessed(ctx context.Context, messageID string) bool {
	if p.dedup == nil || messageID == "" {
		return false
	}
	seen, err := p.dedup.Seen(ctx, messageID)
	if err != nil {
		slog.Warn("dedup check failed, processing anyway", "message_id", messageID, "error", err)
		return false
	}
	return seen
}

// claim filters out UIDs already in flight or still backing off after a
// failure, and records the rest.
func (p *Poller) claim(uids []uint32) []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	var out []uint32
	for _, uid := range uids {
		if p.inFlight[uid] {
			continue
		}
		if r := p.retries[uid]; r != nil && now.Before(r.notBefore) {
			continue
		}
		p.inFlight[uid] = true
		out = append(out, uid)
	}
	return out
}

func (p *Poller) unclaim(uids ...uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, uid := range uids {
		delete(p.inFlight, uid)
	}
}

// deferRetry records a failed attempt and releases the claim until the
// backoff expires. giveUp is set once the attempt budget is spent.
func (p *Poller) deferRetry(uid uint32) (attempts int, wait time.Duration, giveUp bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.retries[uid]
	if r == nil {
		r = &retryState{}
		p.retries[uid] = r
	}
	r.attempts++
	if r.attempts >= p.maxAttempts {
		return r.attempts, 0, true
	}
	wait = p.minRetryBackoff << (r.attempts - 1)
	if wait <= 0 || wait > p.maxRetryBackoff {
		wait = p.maxRetryBackoff
	}
	r.notBefore = time.Now().Add(wait)
	delete(p.inFlight, uid)
	return r.attempts, wait, false
}

// ack queues uid to be marked seen by the loop. In at-most-once mode the
// fetch already did that.
func (p *Poller) ack(uid uint32) {
	p.mu.Lock()
	delete(p.retries, uid)
	if !p.atLeastOnce {
		delete(p.inFlight, uid)
		p.mu.Unlock()
		return
	}
	p.acks = append(p.acks, uid)
	p.mu.Unlock()

	select {
	case p.ackReady <- struct{}{}:
	default:
	}
}

func (p *Poller) flushAcks(ctx context.Context) error {
	p.mu.Lock()
	uids := p.acks
	p.acks = nil
	p.mu.Unlock()
	if len(uids) == 0 {
		return nil
	}

	if err := p.mailbox.MarkSeen(ctx, uids); err != nil {
		p.mu.Lock()
		p.acks = append(uids, p.acks...)
		p.mu.Unlock()
		return err
	}
	p.unclaim(uids...)
	slog.Debug("acknowledged messages", "count", len(uids))
	return nil
}
