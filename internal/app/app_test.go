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

package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/bcem/hrintake/internal/config"
	"github.com/bcem/hrintake/internal/employee"
	"github.com/bcem/hrintake/internal/mailer"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewLogger(&buf, tt.level)
			log.Debug("debug line")
			log.Info("info line")
			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "info line"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Mailbox.Auth = config.AuthPassword
	if ts := TokenSource(ctx, cfg); ts != nil {
		t.Error("password auth produced a token source")
	}

	cfg.Mailbox.Auth = config.AuthOAuth2
	cfg.Mailbox.OAuth2 = config.OAuth2Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     "https://login.example.com/token",
	}
	ts := TokenSource(ctx, cfg)
	if ts == nil {
		t.Fatal("oauth2 auth produced no token source")
	}
	if MailboxTokens(cfg, ts) == nil {
		t.Error("mailbox should use oauth2 tokens")
	}
	if SMTPTokens(cfg, ts) != nil {
		t.Error("relay with password auth should not use tokens")
	}
}

type staticTokens struct{}

func (staticTokens) Token() (*oauth2.Token, error) { return &oauth2.Token{AccessToken: "t"}, nil }

func TestSMTPTokens(t *testing.T) {
	cfg := &config.Config{}
	cfg.SMTP.Auth = config.AuthOAuth2
	if SMTPTokens(cfg, staticTokens{}) == nil {
		t.Error("relay with oauth2 auth should use tokens")
	}
	if MailboxTokens(cfg, staticTokens{}) != nil {
		t.Error("mailbox with password auth should not use tokens")
	}
}

// TestNewProcessor verifies a processor assembled from configuration
// answers a message without attachments.
func TestNewProcessor(t *testing.T) {
	cfg := &config.Config{DefaultOwner: "owner"}
	cfg.OCR.Binary = "/nonexistent/tesseract"
	cfg.SMTP.FromAddress = "hr@example.com"

	store := employee.NewMemoryStore()
	proc := NewProcessor(cfg, Deps{Employees: store, Sender: mailer.LogSender{}})

	raw := []byte("From: a@x.com\r\nMessage-ID: <1@x.com>\r\nSubject: re\r\n\r\nI accept the offer\r\n")
	report, err := proc.ProcessRaw(context.Background(), raw, time.Now())
	if err != nil {
		t.Fatalf("ProcessRaw: %v", err)
	}
	if !report.Replied {
		t.Error("expected a reply through the log sender")
	}
}
