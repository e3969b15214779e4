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

// Package events publishes employee lifecycle events to a Redis list for
// downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/hrintake/internal/models"
)

// Event types.
const (
	TypeIdentityReconciled = "employee.identity_reconciled"
	TypeDocumentsGenerated = "employee.documents_generated"
)

// Event is the JSON document pushed to the queue.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	EmployeeID string         `json:"employee_id"`
	Email      string         `json:"email"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// IdentityReconciled builds the event emitted after reconciliation.
func IdentityReconciled(emp *models.Employee, created bool, messageID string) Event {
	return newEvent(TypeIdentityReconciled, emp, map[string]any{
		"created":    created,
		"message_id": messageID,
		"cnic":       emp.CNIC,
	})
}

// DocumentsGenerated builds the event emitted after a document write.
func DocumentsGenerated(emp *models.Employee, kinds []models.DocumentKind) Event {
	paths := make(map[string]string, len(kinds))
	for _, k := range kinds {
		paths[string(k)] = emp.Documents.Path(k)
	}
	return newEvent(TypeDocumentsGenerated, emp, map[string]any{"documents": paths})
}

func newEvent(typ string, emp *models.Employee, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		EmployeeID: emp.ID,
		Email:      emp.Email,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher sends events to a Redis list.
type Publisher struct {
	rdb       redis.Cmdable
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified list.
func NewPublisher(rdb redis.Cmdable, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Publish serialises ev and LPUSHes it onto the queue.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(body)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published event",
		"event_id", ev.ID,
		"type", ev.Type,
		"employee_id", ev.EmployeeID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
