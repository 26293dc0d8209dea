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

package hitl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/database"
)

// SQLStore persists pause state in the registry database. Take runs in a
// transaction so two concurrent resumes of one token cannot both succeed.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

const hitlSchema = `
CREATE TABLE IF NOT EXISTS hitl_pauses (
    token VARCHAR(64) PRIMARY KEY,
    state TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
)`

// NewSQLStore wraps an open connection and creates the table.
func NewSQLStore(db *sql.DB, dialect database.Dialect) (*SQLStore, error) {
	if _, err := db.ExecContext(context.Background(), hitlSchema); err != nil {
		return nil, fmt.Errorf("failed to create hitl_pauses table: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Put(ctx context.Context, token string, state []byte, expiresAt time.Time) error {
	query := fmt.Sprintf(
		`INSERT INTO hitl_pauses (token, state, created_at, expires_at) VALUES (%s, %s, %s, %s)`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2),
		s.dialect.Placeholder(3), s.dialect.Placeholder(4),
	)
	if _, err := s.db.ExecContext(ctx, query, token, string(state), time.Now().UTC(), expiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to persist pause state: %w", err)
	}
	return nil
}

func (s *SQLStore) Take(ctx context.Context, token string) ([]byte, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin resume transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var state string
	var expiresAt time.Time
	query := fmt.Sprintf(
		`SELECT state, expires_at FROM hitl_pauses WHERE token = %s`,
		s.dialect.Placeholder(1),
	)
	err = tx.QueryRowContext(ctx, query, token).Scan(&state, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPauseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pause state: %w", err)
	}

	del := fmt.Sprintf(`DELETE FROM hitl_pauses WHERE token = %s`, s.dialect.Placeholder(1))
	res, err := tx.ExecContext(ctx, del, token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume resume token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another resume raced us and won.
		return nil, ErrPauseNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resume: %w", err)
	}

	if expiresAt.Before(time.Now()) {
		return nil, ErrPauseNotFound
	}
	return []byte(state), nil
}

func (s *SQLStore) Close() error { return nil }
