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
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/models"
)

// Reconciler merges extracted identity data into employee records.
type Reconciler struct {
	store        Store
	defaultOwner string
	metrics      *metrics.Metrics
}

// NewReconciler creates a Reconciler. defaultOwner is assigned to new records
// and backfilled on records that have none.
func NewReconciler(store Store, defaultOwner string, m *metrics.Metrics) *Reconciler {
	return &Reconciler{store: store, defaultOwner: defaultOwner, metrics: m}
}

// Reconcile creates or updates the employee for email and returns the record
// as re-read from the store. created reports whether a new record was made.
//
// A new record copies all identity fields. An existing record gets every
// identity field replaced except name; owner is kept if set.
func (r *Reconciler) Reconcile(ctx context.Context, email string, identity models.IdentityRecord) (emp *models.Employee, created bool, err error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, false, fmt.Errorf("reconcile: empty email")
	}

	existing, err := r.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("find employee %s: %w", email, err)
	}

	if existing == nil {
		err = r.store.Create(ctx, &models.Employee{
			ID:             uuid.NewString(),
			Email:          email,
			Owner:          r.defaultOwner,
			IdentityRecord: identity,
		})
		switch {
		case err == nil:
			created = true
			slog.Info("employee created", "email", email, "owner", r.defaultOwner)
		case errors.Is(err, ErrAlreadyExists):
			// Created concurrently by another writer; merge into it instead.
			slog.Debug("employee appeared during create, updating", "email", email)
		default:
			return nil, false, fmt.Errorf("create employee %s: %w", email, err)
		}
	}

	if !created {
		if err := r.store.UpdateIdentity(ctx, email, identity, r.defaultOwner); err != nil {
			return nil, false, fmt.Errorf("update employee %s: %w", email, err)
		}
		slog.Info("employee identity updated", "email", email)
	}

	emp, err = r.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("re-read employee %s: %w", email, err)
	}
	if emp == nil {
		return nil, false, fmt.Errorf("employee %s missing after write", email)
	}

	if created {
		r.metrics.Employee("created")
	} else {
		r.metrics.Employee("updated")
	}
	return emp, created, nil
}
