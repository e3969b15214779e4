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

package documents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/models"
)

// Writer persists an employee's document fields.
type Writer interface {
	UpdateDocuments(ctx context.Context, email string, docs models.Documents) error
}

// Orchestrator runs every generator and stores changed paths in one write.
type Orchestrator struct {
	writer     Writer
	generators map[models.DocumentKind]Generator
	metrics    *metrics.Metrics
}

// NewOrchestrator creates an Orchestrator. Kinds without a generator are skipped.
func NewOrchestrator(writer Writer, generators map[models.DocumentKind]Generator, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{writer: writer, generators: generators, metrics: m}
}

// EnsureDocuments generates any document whose path changed and returns the
// kinds that were written. It is a no-op unless the employee has both a name
// and a CNIC. A failing generator is logged and does not stop the others;
// only the final write can fail the call. emp.Documents is updated in place
// after a successful write.
func (o *Orchestrator) EnsureDocuments(ctx context.Context, emp *models.Employee) ([]models.DocumentKind, error) {
	if emp == nil || !emp.HasDocumentPrerequisites() {
		return nil, nil
	}

	docs := emp.Documents
	var changed []models.DocumentKind
	for _, kind := range models.DocumentKinds {
		gen, ok := o.generators[kind]
		if !ok || gen == nil {
			continue
		}
		path, err := generate(ctx, gen, emp)
		if err != nil {
			slog.Error("document generation failed", "kind", kind, "email", emp.Email, "error", err)
			continue
		}
		if path == "" || path == docs.Path(kind) {
			continue
		}
		docs.Set(kind, path)
		changed = append(changed, kind)
	}

	if len(changed) == 0 {
		return nil, nil
	}
	if err := o.writer.UpdateDocuments(ctx, emp.Email, docs); err != nil {
		return nil, fmt.Errorf("save documents for %s: %w", emp.Email, err)
	}
	emp.Documents = docs
	for _, kind := range changed {
		o.metrics.Document(string(kind))
	}
	slog.Info("documents updated", "email", emp.Email, "kinds", changed)
	return changed, nil
}

func generate(ctx context.Context, gen Generator, emp *models.Employee) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	// Generators see a copy of the record.
	cp := *emp
	return gen.Generate(ctx, &cp)
}
