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

// Package metrics holds the Prometheus instruments for the intake pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for message intake.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Messages           *prometheus.CounterVec
	Attachments        *prometheus.CounterVec
	Extractions        *prometheus.CounterVec
	Employees          *prometheus.CounterVec
	Documents          *prometheus.CounterVec
	Mail               *prometheus.CounterVec
	InFlight           prometheus.Gauge
	ProcessingDuration prometheus.Histogram
}

// New registers all intake metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrintake_messages_total",
			Help: "Inbound messages by processing outcome",
		}, []string{"outcome"}),
		Attachments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrintake_attachments_total",
			Help: "Attachments by outcome (extracted, skipped, ocr_failed)",
		}, []string{"outcome"}),
		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrintake_extractions_total",
			Help: "Identity extractions by the stage that produced the result",
		}, []string{"stage"}),
		Employees: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrintake_employees_reconciled_total",
			Help: "Employee reconciliations by action (created, updated)",
		}, []string{"action"}),
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrintake_documents_written_total",
			Help: "Generated document paths persisted, by kind",
		}, []string{"kind"}),
		Mail: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrintake_outbound_mail_total",
			Help: "Outbound mail by kind and outcome",
		}, []string{"kind", "outcome"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "hrintake_messages_in_flight",
			Help: "Message routines currently running",
		}),
		ProcessingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hrintake_message_duration_seconds",
			Help:    "Duration of the per-message routine",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// MessageDone records the outcome and duration of one message routine.
// Call with time.Now() at the start of the routine.
func (m *Metrics) MessageDone(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(outcome).Inc()
	m.ProcessingDuration.Observe(time.Since(start).Seconds())
}

// Attachment records one attachment outcome.
func (m *Metrics) Attachment(outcome string) {
	if m == nil {
		return
	}
	m.Attachments.WithLabelValues(outcome).Inc()
}

// Extraction records which stage produced an identity record.
func (m *Metrics) Extraction(stage string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(stage).Inc()
}

// Employee records a reconciliation action.
func (m *Metrics) Employee(action string) {
	if m == nil {
		return
	}
	m.Employees.WithLabelValues(action).Inc()
}

// Document records a persisted document path.
func (m *Metrics) Document(kind string) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(kind).Inc()
}

// MailSent records an outbound send attempt.
func (m *Metrics) MailSent(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.Mail.WithLabelValues(kind, outcome).Inc()
}

// Begin increments the in-flight gauge and returns a func that decrements it.
func (m *Metrics) Begin() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}
