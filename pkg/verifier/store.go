// Copyright 2026 Forge Works
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

package verifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/database"
)

// ErrNotFound is returned when a named verifier does not exist.
var ErrNotFound = errors.New("verifier not found")

// Store persists verifier definitions and their tool bindings in the
// registry database.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

const verifierSchema = `
CREATE TABLE IF NOT EXISTS verifiers (
    name VARCHAR(128) PRIMARY KEY,
    display_name VARCHAR(256) NOT NULL,
    type VARCHAR(16) NOT NULL,
    category VARCHAR(8) NOT NULL,
    aciru_order VARCHAR(32) NOT NULL,
    spec TEXT NOT NULL,
    description TEXT,
    created_at TIMESTAMP NOT NULL
)`

const bindingSchema = `
CREATE TABLE IF NOT EXISTS verifier_bindings (
    verifier_name VARCHAR(128) NOT NULL,
    tool_name VARCHAR(128) NOT NULL,
    PRIMARY KEY (verifier_name, tool_name)
)`

// NewStore wraps an open connection and creates the tables.
func NewStore(db *sql.DB, dialect database.Dialect) (*Store, error) {
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, verifierSchema); err != nil {
		return nil, fmt.Errorf("failed to create verifiers table: %w", err)
	}
	if _, err := db.ExecContext(ctx, bindingSchema); err != nil {
		return nil, fmt.Errorf("failed to create verifier_bindings table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Create inserts a new verifier definition.
func (s *Store) Create(ctx context.Context, v Verifier) error {
	if !ValidType(string(v.Type)) {
		return fmt.Errorf("invalid verifier type: %q", v.Type)
	}
	spec, err := json.Marshal(v.Spec)
	if err != nil {
		return fmt.Errorf("failed to encode verifier spec: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO verifiers (name, display_name, type, category, aciru_order, spec, description, created_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
		s.dialect.Placeholder(7), s.dialect.Placeholder(8),
	)
	_, err = s.db.ExecContext(ctx, query,
		v.Name, v.DisplayName, string(v.Type), v.Category, v.Order,
		string(spec), v.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create verifier %q: %w", v.Name, err)
	}
	return nil
}

// Update replaces the mutable fields of an existing verifier.
func (s *Store) Update(ctx context.Context, v Verifier) error {
	if !ValidType(string(v.Type)) {
		return fmt.Errorf("invalid verifier type: %q", v.Type)
	}
	spec, err := json.Marshal(v.Spec)
	if err != nil {
		return fmt.Errorf("failed to encode verifier spec: %w", err)
	}
	query := fmt.Sprintf(
		`UPDATE verifiers SET display_name = %s, type = %s, category = %s,
		 aciru_order = %s, spec = %s, description = %s WHERE name = %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
		s.dialect.Placeholder(7),
	)
	res, err := s.db.ExecContext(ctx, query,
		v.DisplayName, string(v.Type), v.Category, v.Order,
		string(spec), v.Description, v.Name)
	if err != nil {
		return fmt.Errorf("failed to update verifier %q: %w", v.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a verifier and all of its bindings.
func (s *Store) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM verifiers WHERE name = %s`, s.dialect.Placeholder(1))
	res, err := s.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete verifier %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	unbind := fmt.Sprintf(`DELETE FROM verifier_bindings WHERE verifier_name = %s`, s.dialect.Placeholder(1))
	if _, err := s.db.ExecContext(ctx, unbind, name); err != nil {
		return fmt.Errorf("failed to remove bindings for %q: %w", name, err)
	}
	return nil
}

// Get fetches one verifier by name.
func (s *Store) Get(ctx context.Context, name string) (Verifier, error) {
	query := fmt.Sprintf(
		`SELECT name, display_name, type, category, aciru_order, spec, description, created_at
		 FROM verifiers WHERE name = %s`,
		s.dialect.Placeholder(1),
	)
	row := s.db.QueryRowContext(ctx, query, name)
	v, err := scanVerifier(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Verifier{}, ErrNotFound
	}
	if err != nil {
		return Verifier{}, fmt.Errorf("failed to load verifier %q: %w", name, err)
	}
	return v, nil
}

// List returns every verifier, ordered by ACIRU key then name.
func (s *Store) List(ctx context.Context) ([]Verifier, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, display_name, type, category, aciru_order, spec, description, created_at
		 FROM verifiers ORDER BY aciru_order ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifiers: %w", err)
	}
	defer rows.Close()

	verifiers := []Verifier{}
	for rows.Next() {
		v, err := scanVerifier(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verifier: %w", err)
		}
		verifiers = append(verifiers, v)
	}
	return verifiers, rows.Err()
}

func scanVerifier(scan func(...any) error) (Verifier, error) {
	var v Verifier
	var typ, spec string
	var description sql.NullString
	if err := scan(&v.Name, &v.DisplayName, &typ, &v.Category, &v.Order, &spec, &description, &v.CreatedAt); err != nil {
		return Verifier{}, err
	}
	v.Type = Type(typ)
	v.Description = description.String
	if err := json.Unmarshal([]byte(spec), &v.Spec); err != nil {
		return Verifier{}, fmt.Errorf("corrupt verifier spec for %q: %w", v.Name, err)
	}
	return v, nil
}

// Bind attaches a verifier to a tool. Binding twice is a no-op.
func (s *Store) Bind(ctx context.Context, verifierName, toolName string) error {
	if _, err := s.Get(ctx, verifierName); err != nil {
		return err
	}
	var query string
	if s.dialect == database.DialectPostgres {
		query = fmt.Sprintf(
			`INSERT INTO verifier_bindings (verifier_name, tool_name) VALUES (%s, %s) ON CONFLICT DO NOTHING`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	} else {
		query = fmt.Sprintf(
			`INSERT OR IGNORE INTO verifier_bindings (verifier_name, tool_name) VALUES (%s, %s)`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	}
	if _, err := s.db.ExecContext(ctx, query, verifierName, toolName); err != nil {
		return fmt.Errorf("failed to bind %q to %q: %w", verifierName, toolName, err)
	}
	return nil
}

// Unbind detaches a verifier from a tool.
func (s *Store) Unbind(ctx context.Context, verifierName, toolName string) error {
	query := fmt.Sprintf(
		`DELETE FROM verifier_bindings WHERE verifier_name = %s AND tool_name = %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	res, err := s.db.ExecContext(ctx, query, verifierName, toolName)
	if err != nil {
		return fmt.Errorf("failed to unbind %q from %q: %w", verifierName, toolName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Bindings returns every binding.
func (s *Store) Bindings(ctx context.Context) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT verifier_name, tool_name FROM verifier_bindings ORDER BY verifier_name, tool_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer rows.Close()

	bindings := []Binding{}
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.VerifierName, &b.ToolName); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}
