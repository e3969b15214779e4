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

package employee

import (
	"context"
	"sync"
	"time"

	"github.com/bcem/hrintake/internal/models"
)

// MemoryStore is an in-process Store used for dry runs and tests.
type MemoryStore struct {
	mu             sync.Mutex
	byEmail        map[string]models.Employee
	identityWrites int
	documentWrites int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]models.Employee)}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) Create(_ context.Context, e *models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(e.Email)
	if _, ok := s.byEmail[key]; ok {
		return ErrAlreadyExists
	}
	rec := *e
	rec.Email = key
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.byEmail[key] = rec
	return nil
}

func (s *MemoryStore) UpdateIdentity(_ context.Context, email string, id models.IdentityRecord, defaultOwner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(email)
	rec, ok := s.byEmail[key]
	if !ok {
		return nil
	}
	name := rec.Name
	rec.IdentityRecord = id
	rec.Name = name
	if rec.Owner == "" {
		rec.Owner = defaultOwner
	}
	rec.UpdatedAt = time.Now().UTC()
	s.byEmail[key] = rec
	s.identityWrites++
	return nil
}

func (s *MemoryStore) UpdateDocuments(_ context.Context, email string, docs models.Documents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(email)
	rec, ok := s.byEmail[key]
	if !ok {
		return nil
	}
	rec.Documents = docs
	rec.UpdatedAt = time.Now().UTC()
	s.byEmail[key] = rec
	s.documentWrites++
	return nil
}

// Put stores e as-is, replacing any existing record for its email.
func (s *MemoryStore) Put(e models.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Email = models.NormalizeEmail(e.Email)
	s.byEmail[e.Email] = e
}

// Len returns the number of stored employees.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}

// DocumentWrites returns how many times UpdateDocuments changed a record.
func (s *MemoryStore) DocumentWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentWrites
}

// IdentityWrites returns how many times UpdateIdentity changed a record.
func (s *MemoryStore) IdentityWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identityWrites
}
