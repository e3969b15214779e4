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

// Package employee persists employee records and reconciles freshly
// extracted identity data into them.
package employee

import (
	"context"
	"errors"

	"github.com/bcem/hrintake/internal/models"
)

// ErrAlreadyExists is returned by Create when the email is already taken.
var ErrAlreadyExists = errors.New("employee already exists")

// Store is the persistent employee record store. Lookups are
// case-insensitive on email and return nil, nil when nothing matches.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.Employee, error)
	Create(ctx context.Context, e *models.Employee) error
	// UpdateIdentity writes every identity field except name, and backfills
	// owner when it is unset. Document fields are untouched.
	UpdateIdentity(ctx context.Context, email string, identity models.IdentityRecord, defaultOwner string) error
	// UpdateDocuments writes all three flag/path pairs in a single statement.
	UpdateDocuments(ctx context.Context, email string, docs models.Documents) error
}
