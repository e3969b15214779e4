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

// Package mailer sends outbound mail: the profile-completion notification
// and the label-specific replies.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"

	"github.com/bcem/hrintake/internal/config"
)

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// RetryPolicy bounds how often the transport tries to reach the relay.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// RetryPolicyFrom converts configuration into a RetryPolicy.
func RetryPolicyFrom(c config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		BackoffFactor:  c.BackoffFactor,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	return p
}

// CalculateBackoff returns the wait before retry number retryCount (0-based).
func (p RetryPolicy) CalculateBackoff(retryCount int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// conn is the part of *mail.Client used after dialing.
type conn interface {
	Send(msgs ...*mail.Msg) error
	Close() error
}

type dialFunc func(ctx context.Context, p config.TransportProfile) (conn, error)

// Transport is the connection factory for the outbound relay. It tries each
// profile in order, remembers the last one that connected and starts there
// next time. The retry policy covers connecting only; once a connection is
// up, a rejected message is not re-sent.
type Transport struct {
	profiles []config.TransportProfile
	policy   RetryPolicy
	dial     dialFunc

	mu        sync.Mutex
	preferred int
}

// NewTransport creates a Transport for cfg. When tokens is non-nil the relay
// is authenticated with XOAUTH2, otherwise with username and password.
func NewTransport(cfg config.SMTPConfig, tokens oauth2.TokenSource) *Transport {
	profiles := cfg.Profiles
	if len(profiles) == 0 {
		profiles = config.DefaultTransportProfiles(465)
	}
	return &Transport{
		profiles: profiles,
		policy:   RetryPolicyFrom(cfg.Retry),
		dial:     smtpDialer(cfg, tokens),
	}
}

func smtpDialer(cfg config.SMTPConfig, tokens oauth2.TokenSource) dialFunc {
	return func(ctx context.Context, p config.TransportProfile) (conn, error) {
		opts := []mail.Option{mail.WithPort(p.Port)}
		if cfg.Timeout > 0 {
			opts = append(opts, mail.WithTimeout(cfg.Timeout))
		}
		if p.TLS == config.TLSImplicit {
			opts = append(opts, mail.WithSSL())
		} else {
			opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		}

		switch {
		case tokens != nil:
			tok, err := tokens.Token()
			if err != nil {
				return nil, fmt.Errorf("oauth2 token: %w", err)
			}
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthXOAUTH2),
				mail.WithUsername(cfg.Username),
				mail.WithPassword(tok.AccessToken),
			)
		case cfg.Username != "":
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(cfg.Username),
				mail.WithPassword(cfg.Password),
			)
		}

		client, err := mail.NewClient(cfg.Host, opts...)
		if err != nil {
			return nil, fmt.Errorf("create smtp client: %w", err)
		}
		if err := client.DialWithContext(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Send implements Sender.
func (t *Transport) Send(ctx context.Context, msg *mail.Msg) error {
	var lastErr error
	for attempt := 0; attempt < t.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := t.policy.CalculateBackoff(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		for _, i := range t.order() {
			p := t.profiles[i]
			c, err := t.dial(ctx, p)
			if err != nil {
				lastErr = fmt.Errorf("connect %s (port %d): %w", p.Name, p.Port, err)
				slog.Warn("smtp connect failed", "profile", p.Name, "port", p.Port, "attempt", attempt+1, "error", err)
				continue
			}
			t.setPreferred(i)

			err = c.Send(msg)
			if cerr := c.Close(); cerr != nil {
				slog.Debug("smtp close failed", "profile", p.Name, "error", cerr)
			}
			if err != nil {
				return fmt.Errorf("send via %s: %w", p.Name, err)
			}
			return nil
		}
	}
	return fmt.Errorf("smtp relay unreachable after %d attempts: %w", t.policy.MaxAttempts, lastErr)
}

// order returns profile indexes starting with the preferred one.
func (t *Transport) order() []int {
	t.mu.Lock()
	start := t.preferred
	t.mu.Unlock()

	idx := make([]int, 0, len(t.profiles))
	for n := 0; n < len(t.profiles); n++ {
		idx = append(idx, (start+n)%len(t.profiles))
	}
	return idx
}

func (t *Transport) setPreferred(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.preferred != i {
		slog.Info("smtp transport profile switched", "profile", t.profiles[i].Name)
	}
	t.preferred = i
}
