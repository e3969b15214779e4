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

// Package intake runs the per-message routine: extract identity data from
// image attachments, reconcile the employee, ensure documents, classify the
// body and reply.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bcem/hrintake/internal/employee"
	"github.com/bcem/hrintake/internal/events"
	"github.com/bcem/hrintake/internal/extraction"
	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/mimeparse"
	"github.com/bcem/hrintake/internal/models"
)

// Outcome labels for the messages metric.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Extractor turns one image into an identity record.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (extraction.Result, error)
}

// Reconciler merges identity data into the employee store.
type Reconciler interface {
	Reconcile(ctx context.Context, email string, identity models.IdentityRecord) (*models.Employee, bool, error)
}

// DocumentEnsurer generates identity-dependent documents.
type DocumentEnsurer interface {
	EnsureDocuments(ctx context.Context, emp *models.Employee) ([]models.DocumentKind, error)
}

// Notifier sends the profile-completion email.
type Notifier interface {
	SendProfileCompletion(ctx context.Context, emp *models.Employee) error
}

// Classifier labels a message body.
type Classifier interface {
	Classify(body string) models.MessageLabel
}

// Replier sends the reply for a label.
type Replier interface {
	Dispatch(ctx context.Context, to string, label models.MessageLabel, employeeExists bool) (bool, error)
}

// Publisher emits employee lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// ProcessorConfig holds the collaborators of a Processor. Publisher and
// Metrics may be nil.
type ProcessorConfig struct {
	Extractor  Extractor
	Employees  employee.Store
	Reconciler Reconciler
	Documents  DocumentEnsurer
	Notifier   Notifier
	Classifier Classifier
	Replier    Replier
	Publisher  Publisher
	Metrics    *metrics.Metrics

	// StepTimeout bounds each external step. Zero means no extra bound.
	StepTimeout time.Duration
}

// Processor runs the per-message routine.
type Processor struct {
	extractor   Extractor
	employees   employee.Store
	reconciler  Reconciler
	documents   DocumentEnsurer
	notifier    Notifier
	classifier  Classifier
	replier     Replier
	publisher   Publisher
	metrics     *metrics.Metrics
	stepTimeout time.Duration
}

// NewProcessor creates a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		extractor:   cfg.Extractor,
		employees:   cfg.Employees,
		reconciler:  cfg.Reconciler,
		documents:   cfg.Documents,
		notifier:    cfg.Notifier,
		classifier:  cfg.Classifier,
		replier:     cfg.Replier,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		stepTimeout: cfg.StepTimeout,
	}
}

// Report summarises what one routine did.
type Report struct {
	Images    int
	Extracted int
	Employee  *models.Employee
	Created   bool
	Documents []models.DocumentKind
	Label     models.MessageLabel
	Replied   bool
}

// ProcessRaw parses raw and runs Process. A message without a sender is
// skipped and reported as mimeparse.ErrNoSender.
func (p *Processor) ProcessRaw(ctx context.Context, raw []byte, receivedAt time.Time) (*Report, error) {
	start := time.Now()
	msg, err := mimeparse.Parse(bytes.NewReader(raw), receivedAt)
	if err != nil {
		if errors.Is(err, mimeparse.ErrNoSender) {
			slog.Warn("message has no sender, skipping")
			p.metrics.MessageDone(OutcomeSkipped, start)
		} else {
			slog.Error("message parse failed", "error", err)
			p.metrics.MessageDone(OutcomeFailed, start)
		}
		return nil, err
	}
	return p.Process(ctx, msg)
}

// Process runs the routine for one parsed message. Any error or panic is
// contained here; the caller only decides whether to acknowledge.
func (p *Processor) Process(ctx context.Context, msg *models.InboundMessage) (report *Report, err error) {
	start := time.Now()
	done := p.metrics.Begin()
	defer done()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message: %v", r)
			slog.Error("message routine panicked",
				"message_id", msg.MessageID,
				"sender", msg.From,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		if errors.Is(err, mimeparse.ErrNoSender) {
			p.metrics.MessageDone(OutcomeSkipped, start)
			slog.Warn("message has no sender, skipping", "message_id", msg.MessageID)
			return
		}
		if err != nil {
			p.metrics.MessageDone(OutcomeFailed, start)
			slog.Error("message processing failed", "message_id", msg.MessageID, "sender", msg.From, "error", err)
			return
		}
		p.metrics.MessageDone(OutcomeOK, start)
	}()

	return p.process(ctx, msg)
}

func (p *Processor) process(ctx context.Context, msg *models.InboundMessage) (*Report, error) {
	if msg.From == "" {
		return nil, mimeparse.ErrNoSender
	}
	log := slog.With("message_id", msg.MessageID, "sender", msg.From)
	report := &Report{}

	if len(msg.Attachments) > 0 {
		identity := p.extractAll(ctx, log, msg, report)

		var (
			emp     *models.Employee
			created bool
		)
		err := p.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			emp, created, err = p.reconciler.Reconcile(ctx, msg.From, identity)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("reconcile employee: %w", err)
		}
		report.Employee, report.Created = emp, created
		p.publish(ctx, events.IdentityReconciled(emp, created, msg.MessageID))

		if err := p.withTimeout(ctx, func(ctx context.Context) error {
			return p.notifier.SendProfileCompletion(ctx, emp)
		}); err != nil {
			log.Error("profile completion email failed", "error", err)
		}
	}

	var emp *models.Employee
	err := p.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		emp, err = p.employees.FindByEmail(ctx, msg.From)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("load employee: %w", err)
	}
	if emp != nil {
		report.Employee = emp
		var kinds []models.DocumentKind
		err := p.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			kinds, err = p.documents.EnsureDocuments(ctx, emp)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("ensure documents: %w", err)
		}
		if len(kinds) > 0 {
			report.Documents = kinds
			p.publish(ctx, events.DocumentsGenerated(emp, kinds))
		}
	}

	report.Label = p.classifier.Classify(msg.Body)
	err = p.withTimeout(ctx, func(ctx context.Context) error {
		sent, err := p.replier.Dispatch(ctx, msg.From, report.Label, emp != nil)
		report.Replied = sent
		return err
	})
	if err != nil {
		log.Error("reply failed", "label", report.Label, "error", err)
	}

	log.Info("message processed",
		"label", report.Label,
		"images", report.Images,
		"extracted", report.Extracted,
		"created", report.Created,
		"documents", len(report.Documents),
		"replied", report.Replied,
	)
	return report, nil
}

// extractAll runs the pipeline over every image attachment in order and
// merges the results; later non-empty values win, empty values never erase.
func (p *Processor) extractAll(ctx context.Context, log *slog.Logger, msg *models.InboundMessage, report *Report) models.IdentityRecord {
	var merged models.IdentityRecord
	for _, att := range msg.Attachments {
		if !att.IsImage() {
			log.Debug("skipping non-image attachment", "filename", att.Filename)
			p.metrics.Attachment("skipped")
			continue
		}
		report.Images++

		var res extraction.Result
		err := p.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			res, err = p.extractor.Extract(ctx, att.Content)
			return err
		})
		if err != nil {
			log.Warn("identity extraction failed, skipping attachment", "filename", att.Filename, "error", err)
			p.metrics.Attachment("ocr_failed")
			continue
		}
		report.Extracted++
		p.metrics.Attachment("extracted")
		log.Debug("identity extracted", "filename", att.Filename, "stage", res.Stage)
		merged = merged.Overlay(res.Identity)
	}
	return merged
}

func (p *Processor) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if p.stepTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *Processor) publish(ctx context.Context, ev events.Event) {
	if p.publisher == nil {
		return
	}
	err := p.withTimeout(ctx, func(ctx context.Context) error {
		return p.publisher.Publish(ctx, ev)
	})
	if err != nil {
		slog.Warn("event publish failed", "type", ev.Type, "employee_id", ev.EmployeeID, "error", err)
	}
}
