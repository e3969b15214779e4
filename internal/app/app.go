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

// Package app assembles the intake components from configuration. It is
// shared by the service and the backfill command.
package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/hrintake/internal/classify"
	"github.com/bcem/hrintake/internal/config"
	"github.com/bcem/hrintake/internal/documents"
	"github.com/bcem/hrintake/internal/employee"
	"github.com/bcem/hrintake/internal/extraction"
	"github.com/bcem/hrintake/internal/intake"
	"github.com/bcem/hrintake/internal/llm"
	"github.com/bcem/hrintake/internal/mailer"
	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/ocr"
)

// StepTimeout bounds each external call made while processing a message.
const StepTimeout = 2 * time.Minute

// NewLogger returns a JSON logger at the named level (debug, info, warn,
// error). Unknown levels mean info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// TokenSource returns the client-credentials token source, or nil when
// neither the mailbox nor the relay uses OAuth2.
func TokenSource(ctx context.Context, cfg *config.Config) oauth2.TokenSource {
	if cfg.Mailbox.Auth != config.AuthOAuth2 && cfg.SMTP.Auth != config.AuthOAuth2 {
		return nil
	}
	o := cfg.Mailbox.OAuth2
	if o.ClientID == "" || o.TokenURL == "" {
		return nil
	}
	creds := &clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	return oauth2.ReuseTokenSource(nil, creds.TokenSource(ctx))
}

// MailboxTokens returns tokens when the mailbox authenticates with OAuth2.
func MailboxTokens(cfg *config.Config, tokens oauth2.TokenSource) oauth2.TokenSource {
	if cfg.Mailbox.Auth != config.AuthOAuth2 {
		return nil
	}
	return tokens
}

// SMTPTokens returns tokens when the relay authenticates with OAuth2.
func SMTPTokens(cfg *config.Config, tokens oauth2.TokenSource) oauth2.TokenSource {
	if cfg.SMTP.Auth != config.AuthOAuth2 {
		return nil
	}
	return tokens
}

// Deps are the stateful collaborators chosen by the caller. Publisher and
// Metrics may be nil.
type Deps struct {
	Employees employee.Store
	Sender    mailer.Sender
	Publisher intake.Publisher
	Metrics   *metrics.Metrics
}

// NewProcessor builds the per-message routine from cfg.
func NewProcessor(cfg *config.Config, deps Deps) *intake.Processor {
	m := deps.Metrics

	recognizer := ocr.NewTesseract(ocr.Config{
		Binary:   cfg.OCR.Binary,
		Language: cfg.OCR.Language,
		Timeout:  cfg.OCR.Timeout,
	})
	if !recognizer.Available() {
		slog.Warn("ocr engine not found, image attachments will be skipped", "binary", cfg.OCR.Binary)
	}

	client := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if !client.Available() {
		slog.Info("llm extraction disabled, using pattern extraction only")
	}

	from := mailer.Identity{
		FromName:     cfg.SMTP.FromName,
		FromAddress:  cfg.SMTP.FromAddress,
		Company:      cfg.Company.Name,
		CompanyEmail: cfg.Company.Email,
		Contact:      cfg.Company.Contact,
	}

	return intake.NewProcessor(intake.ProcessorConfig{
		Extractor:   extraction.NewPipeline(recognizer, m, extraction.NewLLMStrategy(client)),
		Employees:   deps.Employees,
		Reconciler:  employee.NewReconciler(deps.Employees, cfg.DefaultOwner, m),
		Documents:   documents.NewOrchestrator(deps.Employees, documents.NewGenerators(cfg.Documents.BaseURL, cfg.Documents.Timeout), m),
		Notifier:    mailer.NewNotificationSender(deps.Sender, from, cfg.FrontendBaseURL, m),
		Classifier:  classify.New(),
		Replier:     mailer.NewReplyDispatcher(deps.Sender, from, m),
		Publisher:   deps.Publisher,
		Metrics:     m,
		StepTimeout: StepTimeout,
	})
}
