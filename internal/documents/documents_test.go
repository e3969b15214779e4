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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bcem/hrintake/internal/employee"
	"github.com/bcem/hrintake/internal/models"
)

type countingWriter struct {
	mu     sync.Mutex
	writes []models.Documents
	err    error
}

func (w *countingWriter) UpdateDocuments(_ context.Context, _ string, docs models.Documents) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, docs)
	return nil
}

func fixed(path string) Generator {
	return GeneratorFunc(func(context.Context, *models.Employee) (string, error) { return path, nil })
}

func failing(err error) Generator {
	return GeneratorFunc(func(context.Context, *models.Employee) (string, error) { return "", err })
}

func ready() *models.Employee {
	return &models.Employee{
		ID:             "e1",
		Email:          "sara@x.com",
		IdentityRecord: models.IdentityRecord{Name: "SARA AHMED", CNIC: "42101-1234567-1"},
	}
}

// TestOrchestrator_Idempotent verifies two calls with unchanged generator
// output produce exactly one write.
func TestOrchestrator_Idempotent(t *testing.T) {
	w := &countingWriter{}
	o := NewOrchestrator(w, map[models.DocumentKind]Generator{
		models.DocumentNDA:               fixed("/docs/nda.pdf"),
		models.DocumentContract:          fixed("/docs/contract.pdf"),
		models.DocumentSalaryCertificate: fixed("/docs/salary.pdf"),
	}, nil)
	emp := ready()

	changed, err := o.EnsureDocuments(context.Background(), emp)
	if err != nil {
		t.Fatalf("EnsureDocuments: %v", err)
	}
	if len(changed) != 3 {
		t.Errorf("changed = %v, want 3 kinds", changed)
	}
	if _, err := o.EnsureDocuments(context.Background(), emp); err != nil {
		t.Fatalf("second EnsureDocuments: %v", err)
	}

	if len(w.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(w.writes))
	}
	got := w.writes[0]
	if !got.NDAGenerated || got.NDAPath != "/docs/nda.pdf" || got.SalaryCertificatePath != "/docs/salary.pdf" || !got.ContractGenerated {
		t.Errorf("written docs = %+v", got)
	}
}

// TestOrchestrator_Prerequisites verifies missing name or CNIC is a no-op.
func TestOrchestrator_Prerequisites(t *testing.T) {
	called := false
	gen := GeneratorFunc(func(context.Context, *models.Employee) (string, error) {
		called = true
		return "/x.pdf", nil
	})
	w := &countingWriter{}
	o := NewOrchestrator(w, map[models.DocumentKind]Generator{models.DocumentNDA: gen}, nil)

	for _, id := range []models.IdentityRecord{{Name: "A"}, {CNIC: "1"}, {}} {
		emp := &models.Employee{Email: "a@x.com", IdentityRecord: id}
		if _, err := o.EnsureDocuments(context.Background(), emp); err != nil {
			t.Fatalf("EnsureDocuments: %v", err)
		}
	}
	if called || len(w.writes) != 0 {
		t.Errorf("called=%v writes=%d, want no activity", called, len(w.writes))
	}
}

// TestOrchestrator_FailureIsolation verifies one failing kind does not block the others.
func TestOrchestrator_FailureIsolation(t *testing.T) {
	w := &countingWriter{}
	o := NewOrchestrator(w, map[models.DocumentKind]Generator{
		models.DocumentNDA:               failing(errors.New("template missing")),
		models.DocumentContract:          GeneratorFunc(func(context.Context, *models.Employee) (string, error) { panic("boom") }),
		models.DocumentSalaryCertificate: fixed("/docs/salary.pdf"),
	}, nil)

	changed, err := o.EnsureDocuments(context.Background(), ready())
	if err != nil {
		t.Fatalf("EnsureDocuments: %v", err)
	}
	if len(changed) != 1 || changed[0] != models.DocumentSalaryCertificate {
		t.Errorf("changed = %v, want [salary_certificate]", changed)
	}
	if len(w.writes) != 1 || w.writes[0].NDAGenerated {
		t.Errorf("writes = %+v", w.writes)
	}
}

// TestOrchestrator_DeclinedIsNoop verifies generators that decline cause no write.
func TestOrchestrator_DeclinedIsNoop(t *testing.T) {
	w := &countingWriter{}
	o := NewOrchestrator(w, NewGenerators("", 0), nil)
	emp := ready()

	changed, err := o.EnsureDocuments(context.Background(), emp)
	if err != nil || changed != nil {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if len(w.writes) != 0 || emp.Documents != (models.Documents{}) {
		t.Errorf("writes=%d docs=%+v", len(w.writes), emp.Documents)
	}
}

// TestOrchestrator_WriteFailure verifies the single write error is returned
// and the in-memory record is left unchanged.
func TestOrchestrator_WriteFailure(t *testing.T) {
	w := &countingWriter{err: errors.New("db down")}
	o := NewOrchestrator(w, map[models.DocumentKind]Generator{models.DocumentNDA: fixed("/nda.pdf")}, nil)
	emp := ready()

	if _, err := o.EnsureDocuments(context.Background(), emp); err == nil {
		t.Fatal("expected write error")
	}
	if emp.NDAGenerated {
		t.Error("record mutated despite failed write")
	}
}

// TestOrchestrator_MemoryStore verifies the orchestrator against the employee store.
func TestOrchestrator_MemoryStore(t *testing.T) {
	store := employee.NewMemoryStore()
	emp := ready()
	store.Put(*emp)
	o := NewOrchestrator(store, map[models.DocumentKind]Generator{models.DocumentContract: fixed("/c.pdf")}, nil)

	for i := 0; i < 2; i++ {
		if _, err := o.EnsureDocuments(context.Background(), emp); err != nil {
			t.Fatal(err)
		}
	}
	if store.DocumentWrites() != 1 {
		t.Errorf("document writes = %d, want 1", store.DocumentWrites())
	}
	got, _ := store.FindByEmail(context.Background(), "sara@x.com")
	if got.ContractPath != "/c.pdf" || !got.ContractGenerated {
		t.Errorf("stored = %+v", got.Documents)
	}
}

// TestHTTPGenerator verifies the request and the 200/204/error responses.
func TestHTTPGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var emp models.Employee
		if err := json.NewDecoder(r.Body).Decode(&emp); err != nil {
			t.Errorf("decode: %v", err)
		}
		switch r.URL.Path {
		case "/nda":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"path": "/files/` + emp.ID + `/nda.pdf"}`))
		case "/contract":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "no template", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	gens := NewGenerators(srv.URL+"/", time.Second)
	emp := ready()

	path, err := gens[models.DocumentNDA].Generate(context.Background(), emp)
	if err != nil || path != "/files/e1/nda.pdf" {
		t.Errorf("nda: path=%q err=%v", path, err)
	}
	path, err = gens[models.DocumentContract].Generate(context.Background(), emp)
	if err != nil || path != "" {
		t.Errorf("contract: path=%q err=%v, want declined", path, err)
	}
	if _, err := gens[models.DocumentSalaryCertificate].Generate(context.Background(), emp); err == nil {
		t.Error("salary certificate: expected error")
	}
}
