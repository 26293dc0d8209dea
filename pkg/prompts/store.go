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

// Package prompts versions the system prompt. At most one version is
// active at any instant; activation atomically deactivates the rest.
package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/database"
)

// ErrNotFound is returned for unknown version ids.
var ErrNotFound = errors.New("prompt version not found")

// Version is one stored prompt revision.
type Version struct {
	ID          int64      `json:"id"`
	Version     string     `json:"version"`
	Content     string     `json:"content"`
	Notes       string     `json:"notes,omitempty"`
	IsActive    bool       `json:"isActive"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Store persists prompt versions.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prompt_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version VARCHAR(64) NOT NULL,
    content TEXT NOT NULL,
    notes TEXT,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    activated_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
)`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS prompt_versions (
    id BIGSERIAL PRIMARY KEY,
    version VARCHAR(64) NOT NULL,
    content TEXT NOT NULL,
    notes TEXT,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    activated_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
)`

// NewStore wraps an open connection and creates the table.
func NewStore(db *sql.DB, dialect database.Dialect) (*Store, error) {
	schema := sqliteSchema
	if dialect == database.DialectPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("failed to create prompt_versions table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Create inserts a new, inactive version and returns its id.
func (s *Store) Create(ctx context.Context, version, content, notes string) (int64, error) {
	now := time.Now().UTC()

	if s.dialect == database.DialectPostgres {
		query := fmt.Sprintf(
			`INSERT INTO prompt_versions (version, content, notes, created_at)
			 VALUES (%s, %s, %s, %s) RETURNING id`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2),
			s.dialect.Placeholder(3), s.dialect.Placeholder(4),
		)
		var id int64
		if err := s.db.QueryRowContext(ctx, query, version, content, notes, now).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to create prompt version: %w", err)
		}
		return id, nil
	}

	query := fmt.Sprintf(
		`INSERT INTO prompt_versions (version, content, notes, created_at) VALUES (%s, %s, %s, %s)`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2),
		s.dialect.Placeholder(3), s.dialect.Placeholder(4),
	)
	res, err := s.db.ExecContext(ctx, query, version, content, notes, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create prompt version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new prompt version id: %w", err)
	}
	return id, nil
}

// Activate makes id the single active version in one atomic UPDATE
// across all rows.
func (s *Store) Activate(ctx context.Context, id int64) error {
	exists := fmt.Sprintf(`SELECT id FROM prompt_versions WHERE id = %s`, s.dialect.Placeholder(1))
	var found int64
	err := s.db.QueryRowContext(ctx, exists, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up prompt version %d: %w", id, err)
	}

	query := fmt.Sprintf(
		`UPDATE prompt_versions SET is_active = (id = %s),
		 activated_at = CASE WHEN id = %s THEN %s ELSE activated_at END`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
	)
	if _, err := s.db.ExecContext(ctx, query, id, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to activate prompt version %d: %w", id, err)
	}
	return nil
}

// Active returns the active version, or ErrNotFound when none is.
func (s *Store) Active(ctx context.Context) (Version, error) {
	row := s.db.QueryRowContext(ctx, selectVersion+` WHERE is_active`)
	v, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("failed to load active prompt version: %w", err)
	}
	return v, nil
}

// Get fetches one version by id.
func (s *Store) Get(ctx context.Context, id int64) (Version, error) {
	query := selectVersion + fmt.Sprintf(` WHERE id = %s`, s.dialect.Placeholder(1))
	row := s.db.QueryRowContext(ctx, query, id)
	v, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("failed to load prompt version %d: %w", id, err)
	}
	return v, nil
}

// List returns every version, newest first.
func (s *Store) List(ctx context.Context) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, selectVersion+` ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt versions: %w", err)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

const selectVersion = `
SELECT id, version, content, notes, is_active, activated_at, created_at
FROM prompt_versions`

func scanVersion(scan func(...any) error) (Version, error) {
	var v Version
	var notes sql.NullString
	var activatedAt sql.NullTime
	if err := scan(&v.ID, &v.Version, &v.Content, &notes, &v.IsActive, &activatedAt, &v.CreatedAt); err != nil {
		return Version{}, err
	}
	v.Notes = notes.String
	if activatedAt.Valid {
		t := activatedAt.Time
		v.ActivatedAt = &t
	}
	return v, nil
}
