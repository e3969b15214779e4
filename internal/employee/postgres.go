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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/hrintake/internal/models"
)

// PostgresStore keeps employee records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
// It ensures the employees table exists on creation.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure employee schema: %w", err)
	}
	slog.Info("employee store initialised")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS employees (
			id                           TEXT PRIMARY KEY,
			email                        TEXT NOT NULL,
			owner                        TEXT NOT NULL DEFAULT '',
			name                         TEXT NOT NULL DEFAULT '',
			father_or_husband_name       TEXT NOT NULL DEFAULT '',
			cnic                         TEXT NOT NULL DEFAULT '',
			gender                       TEXT NOT NULL DEFAULT '',
			nationality                  TEXT NOT NULL DEFAULT '',
			date_of_birth                TEXT NOT NULL DEFAULT '',
			date_of_issue                TEXT NOT NULL DEFAULT '',
			date_of_expiry               TEXT NOT NULL DEFAULT '',
			nda_generated                BOOLEAN NOT NULL DEFAULT FALSE,
			nda_path                     TEXT NOT NULL DEFAULT '',
			contract_generated           BOOLEAN NOT NULL DEFAULT FALSE,
			contract_path                TEXT NOT NULL DEFAULT '',
			salary_certificate_generated BOOLEAN NOT NULL DEFAULT FALSE,
			salary_certificate_path      TEXT NOT NULL DEFAULT '',
			created_at                   TIMESTAMPTZ DEFAULT NOW(),
			updated_at                   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_employees_email ON employees (lower(email));
		CREATE INDEX IF NOT EXISTS idx_employees_cnic ON employees (cnic);
	`)
	return err
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectColumns = `
	SELECT id, email, owner, name, father_or_husband_name, cnic, gender,
	       nationality, date_of_birth, date_of_issue, date_of_expiry,
	       nda_generated, nda_path, contract_generated, contract_path,
	       salary_certificate_generated, salary_certificate_path,
	       created_at, updated_at
	FROM employees`

// FindByEmail retrieves an employee by case-insensitive email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Employee, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE lower(email) = lower($1)`, models.NormalizeEmail(email))
	return scanEmployee(row)
}

// Create inserts a new employee. It returns ErrAlreadyExists when a record
// with the same email already exists.
func (s *PostgresStore) Create(ctx context.Context, e *models.Employee) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO employees
			(id, email, owner, name, father_or_husband_name, cnic, gender,
			 nationality, date_of_birth, date_of_issue, date_of_expiry,
			 nda_generated, nda_path, contract_generated, contract_path,
			 salary_certificate_generated, salary_certificate_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT DO NOTHING
	`, e.ID, models.NormalizeEmail(e.Email), e.Owner,
		e.Name, e.FatherOrHusbandName, e.CNIC, e.Gender,
		e.Nationality, e.DateOfBirth, e.DateOfIssue, e.DateOfExpiry,
		e.NDAGenerated, e.NDAPath, e.ContractGenerated, e.ContractPath,
		e.SalaryCertificateGenerated, e.SalaryCertificatePath)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// UpdateIdentity overwrites the identity fields of an existing employee.
// The stored name is never changed.
func (s *PostgresStore) UpdateIdentity(ctx context.Context, email string, id models.IdentityRecord, defaultOwner string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE employees SET
			father_or_husband_name = $2,
			cnic                   = $3,
			gender                 = $4,
			nationality            = $5,
			date_of_birth          = $6,
			date_of_issue          = $7,
			date_of_expiry         = $8,
			owner                  = CASE WHEN owner = '' THEN $9 ELSE owner END,
			updated_at             = NOW()
		WHERE lower(email) = lower($1)
	`, models.NormalizeEmail(email), id.FatherOrHusbandName, id.CNIC, id.Gender,
		id.Nationality, id.DateOfBirth, id.DateOfIssue, id.DateOfExpiry, defaultOwner)
	return err
}

// UpdateDocuments persists all document flag/path pairs at once.
func (s *PostgresStore) UpdateDocuments(ctx context.Context, email string, d models.Documents) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE employees SET
			nda_generated                = $2,
			nda_path                     = $3,
			contract_generated           = $4,
			contract_path                = $5,
			salary_certificate_generated = $6,
			salary_certificate_path      = $7,
			updated_at                   = NOW()
		WHERE lower(email) = lower($1)
	`, models.NormalizeEmail(email), d.NDAGenerated, d.NDAPath, d.ContractGenerated, d.ContractPath,
		d.SalaryCertificateGenerated, d.SalaryCertificatePath)
	return err
}

// scanEmployee scans a single row into an Employee.
func scanEmployee(row pgx.Row) (*models.Employee, error) {
	var e models.Employee
	err := row.Scan(
		&e.ID, &e.Email, &e.Owner, &e.Name, &e.FatherOrHusbandName, &e.CNIC, &e.Gender,
		&e.Nationality, &e.DateOfBirth, &e.DateOfIssue, &e.DateOfExpiry,
		&e.NDAGenerated, &e.NDAPath, &e.ContractGenerated, &e.ContractPath,
		&e.SalaryCertificateGenerated, &e.SalaryCertificatePath,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
