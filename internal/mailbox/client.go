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

// Package mailbox is the IMAP connection to the inbound HR mailbox.
package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"golang.org/x/oauth2"
)

// ErrNotConnected is returned when an operation needs a live session.
var ErrNotConnected = errors.New("mailbox not connected")

// WakeReason says why WaitForMail returned.
type WakeReason int

const (
	WakeNewMail WakeReason = iota
	WakeTimeout
	WakeInterrupt
)

func (r WakeReason) String() string {
	switch r {
	case WakeNewMail:
		return "new_mail"
	case WakeTimeout:
		return "timeout"
	case WakeInterrupt:
		return "interrupt"
	}
	return "unknown"
}

// Message is one fetched message.
type Message struct {
	UID          uint32
	Raw          []byte
	InternalDate time.Time
}

// Config holds connection settings.
type Config struct {
	Addr     string
	TLS      bool
	Username string
	Password string
	Folder   string
	// Tokens enables XOAUTH2 instead of LOGIN when set.
	Tokens  oauth2.TokenSource
	Timeout time.Duration
}

// Client is a single IMAP session with the configured folder selected.
// Calls are serialized; the session is meant to be driven by one loop.
type Client struct {
	cfg Config

	mu      sync.Mutex
	c       *client.Client
	updates chan client.Update
}

// New creates an unconnected Client.
func New(cfg Config) *Client {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg}
}

// Connect dials, authenticates and selects the folder. An existing session
// is closed first.
func (m *Client) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.c != nil {
		_ = m.c.Logout()
		m.c = nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		c   *client.Client
		err error
	)
	if m.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(m.cfg.Addr)
		if splitErr != nil {
			host = m.cfg.Addr
		}
		c, err = client.DialTLS(m.cfg.Addr, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	} else {
		c, err = client.Dial(m.cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", m.cfg.Addr, err)
	}
	c.Timeout = m.cfg.Timeout

	if m.cfg.Tokens != nil {
		tok, err := m.cfg.Tokens.Token()
		if err != nil {
			_ = c.Logout()
			return fmt.Errorf("oauth2 token: %w", err)
		}
		if err := c.Authenticate(newXOAuth2Client(m.cfg.Username, tok.AccessToken)); err != nil {
			_ = c.Logout()
			return fmt.Errorf("imap xoauth2: %w", err)
		}
	} else if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		_ = c.Logout()
		return fmt.Errorf("imap login: %w", err)
	}

	if _, err := c.Select(m.cfg.Folder, false); err != nil {
		_ = c.Logout()
		return fmt.Errorf("select %s: %w", m.cfg.Folder, err)
	}

	m.updates = make(chan client.Update, 64)
	c.Updates = m.updates
	m.c = c
	slog.Info("mailbox connected", "addr", m.cfg.Addr, "folder", m.cfg.Folder)
	return nil
}

// Close logs out of the session.
func (m *Client) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return nil
	}
	err := m.c.Logout()
	m.c = nil
	return err
}

// SearchUnseen returns the UIDs of messages without the \Seen flag.
func (m *Client) SearchUnseen(ctx context.Context) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return m.search(ctx, criteria)
}

// SearchSince returns the UIDs of messages received on or after since,
// seen or not.
func (m *Client) SearchSince(ctx context.Context, since time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	return m.search(ctx, criteria)
}

func (m *Client) search(ctx context.Context, criteria *imap.SearchCriteria) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	return uids, nil
}

// Fetch downloads full messages. With markSeen the server sets \Seen as
// part of the fetch; without it the body is peeked and flags are unchanged.
// Messages are returned in UID order.
func (m *Client) Fetch(ctx context.Context, uids []uint32, markSeen bool) ([]Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: !markSeen}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid, imap.FetchInternalDate}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, ch)
	}()

	var out []Message
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			for _, lit := range msg.Body {
				body = lit
				break
			}
		}
		if body == nil {
			slog.Warn("fetched message has no body", "uid", msg.Uid)
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			slog.Warn("read message body failed", "uid", msg.Uid, "error", err)
			continue
		}
		out = append(out, Message{UID: msg.Uid, Raw: raw, InternalDate: msg.InternalDate})
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("imap fetch: %w", err)
	}

	sortByUID(out)
	return out, nil
}

// MarkSeen adds the \Seen flag to uids.
func (m *Client) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap store \\Seen: %w", err)
	}
	return nil
}

// WaitForMail idles until the server reports new mail, maxWait elapses,
// interrupt fires or ctx ends. A dropped connection is returned as an error.
func (m *Client) WaitForMail(ctx context.Context, maxWait time.Duration, interrupt <-chan struct{}) (WakeReason, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return WakeTimeout, ErrNotConnected
	}

	// Updates that arrived while we were busy count as new mail.
	if drainMailboxUpdates(m.updates) {
		return WakeNewMail, nil
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.c.Idle(stop, nil)
	}()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	reason := WakeTimeout
	var waitErr error
wait:
	for {
		select {
		case upd := <-m.updates:
			if _, ok := upd.(*client.MailboxUpdate); ok {
				reason = WakeNewMail
				break wait
			}
		case <-timer.C:
			reason = WakeTimeout
			break wait
		case <-interrupt:
			reason = WakeInterrupt
			break wait
		case <-ctx.Done():
			waitErr = ctx.Err()
			break wait
		case err := <-done:
			if err == nil {
				err = errors.New("idle ended unexpectedly")
			}
			return WakeTimeout, fmt.Errorf("imap idle: %w", err)
		}
	}

	close(stop)
	if err := <-done; err != nil && waitErr == nil {
		return reason, fmt.Errorf("imap idle: %w", err)
	}
	return reason, waitErr
}

func drainMailboxUpdates(ch chan client.Update) bool {
	found := false
	for {
		select {
		case upd := <-ch:
			if _, ok := upd.(*client.MailboxUpdate); ok {
				found = true
			}
		default:
			return found
		}
	}
}

func sortByUID(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].UID < msgs[j].UID })
}

// Reader returns the raw message.
func (msg Message) Reader() io.Reader {
	return bytes.NewReader(msg.Raw)
}
