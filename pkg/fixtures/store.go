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

// Package fixtures caches eval-runner outputs keyed by fixture id and
// input hash. A read with a stale hash reports the stored hash so the
// runner can tell "never ran" from "inputs changed".
package fixtures

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/database"
)

// ReadResult is the outcome of a cache lookup. On a miss caused by an
// input change, StoredHash carries the hash the cache was written with.
type ReadResult struct {
	Output     json.RawMessage `json:"output,omitempty"`
	Hit        bool            `json:"hit"`
	StoredHash string          `json:"storedHash,omitempty"`
}

// Store persists fixture outputs in the registry database.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

const fixturesSchema = `
CREATE TABLE IF NOT EXISTS eval_fixtures (
    fixture_id VARCHAR(256) PRIMARY KEY,
    input_hash VARCHAR(128) NOT NULL,
    output TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// NewStore wraps an open connection and creates the table.
func NewStore(db *sql.DB, dialect database.Dialect) (*Store, error) {
	if _, err := db.ExecContext(context.Background(), fixturesSchema); err != nil {
		return nil, fmt.Errorf("failed to create eval_fixtures table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Write stores or replaces the cached output for a fixture.
func (s *Store) Write(ctx context.Context, id, hash string, output json.RawMessage) error {
	if id == "" || hash == "" {
		return fmt.Errorf("fixture id and hash are required")
	}

	var query string
	if s.dialect == database.DialectPostgres {
		query = fmt.Sprintf(
			`INSERT INTO eval_fixtures (fixture_id, input_hash, output, updated_at) VALUES (%s, %s, %s, %s)
			 ON CONFLICT (fixture_id) DO UPDATE SET input_hash = EXCLUDED.input_hash,
			 output = EXCLUDED.output, updated_at = EXCLUDED.updated_at`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2),
			s.dialect.Placeholder(3), s.dialect.Placeholder(4))
	} else {
		query = fmt.Sprintf(
			`INSERT OR REPLACE INTO eval_fixtures (fixture_id, input_hash, output, updated_at) VALUES (%s, %s, %s, %s)`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2),
			s.dialect.Placeholder(3), s.dialect.Placeholder(4))
	}

	if _, err := s.db.ExecContext(ctx, query, id, hash, string(output), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write fixture %q: %w", id, err)
	}
	return nil
}

// Read looks up the cached output. A hash mismatch is a miss that still
// reports the stored hash; an unknown id is a bare miss.
func (s *Store) Read(ctx context.Context, id, hash string) (ReadResult, error) {
	query := fmt.Sprintf(
		`SELECT input_hash, output FROM eval_fixtures WHERE fixture_id = %s`,
		s.dialect.Placeholder(1),
	)
	var storedHash, output string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&storedHash, &output)
	if errors.Is(err, sql.ErrNoRows) {
		return ReadResult{}, nil
	}
	if err != nil {
		return ReadResult{}, fmt.Errorf("failed to read fixture %q: %w", id, err)
	}

	if storedHash != hash {
		return ReadResult{StoredHash: storedHash}, nil
	}
	return ReadResult{Output: json.RawMessage(output), Hit: true, StoredHash: storedHash}, nil
}
