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

package convstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/sidecar/pkg/database"
)

// SQLStore implements Store over SQLite or Postgres. The two dialects
// share one implementation; only placeholders and the id column type
// differ. The schema is created lazily on first use, which for Postgres
// means the first write in practice.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect

	schemaOnce sync.Once
	schemaErr  error
}

const sqliteConversationsSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    stage TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    agent_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
)`

const postgresConversationsSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id BIGSERIAL PRIMARY KEY,
    session_id VARCHAR(64) NOT NULL,
    stage TEXT NOT NULL DEFAULT '',
    role VARCHAR(16) NOT NULL,
    content TEXT NOT NULL,
    agent_id VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
)`

const conversationsIndex = `
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, created_at)`

// NewSQLStore wraps an open connection. SQLite schemas are created
// eagerly so a read-only deployment still has the table.
func NewSQLStore(db *sql.DB, dialect database.Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if dialect == database.DialectSQLite {
		if err := s.ensureSchema(context.Background()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		schema := sqliteConversationsSchema
		if s.dialect == database.DialectPostgres {
			schema = postgresConversationsSchema
		}
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			s.schemaErr = fmt.Errorf("failed to create conversations table: %w", err)
			return
		}
		if _, err := s.db.ExecContext(ctx, conversationsIndex); err != nil {
			s.schemaErr = fmt.Errorf("failed to create conversations index: %w", err)
		}
	})
	return s.schemaErr
}

// CreateSession reserves an opaque session id. No row is written; the
// session exists once a message references it.
func (s *SQLStore) CreateSession(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *SQLStore) PersistMessage(ctx context.Context, turn Turn) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if turn.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := fmt.Sprintf(
		`INSERT INTO conversations (session_id, stage, role, content, agent_id, created_at) VALUES (%s, %s, %s, %s, %s, %s)`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
	)
	if _, err := s.db.ExecContext(ctx, query,
		turn.SessionID, turn.Stage, turn.Role, turn.Content, turn.AgentID, createdAt); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}
	return nil
}

func (s *SQLStore) GetHistory(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT session_id, stage, role, content, agent_id, created_at
		 FROM conversations WHERE session_id = %s
		 ORDER BY created_at ASC, id ASC`,
		s.dialect.Placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.SessionID, &t.Stage, &t.Role, &t.Content, &t.AgentID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// IncompleteSessions lists sessions whose latest system-role turn is not
// the completion sentinel.
func (s *SQLStore) IncompleteSessions(ctx context.Context) ([]IncompleteSession, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT c.session_id,
		       (SELECT c2.stage FROM conversations c2
		        WHERE c2.session_id = c.session_id
		        ORDER BY c2.created_at DESC, c2.id DESC LIMIT 1),
		       MAX(c.created_at)
		FROM conversations c
		GROUP BY c.session_id
		HAVING COALESCE((SELECT c3.content FROM conversations c3
		        WHERE c3.session_id = c.session_id AND c3.role = 'system'
		        ORDER BY c3.created_at DESC, c3.id DESC LIMIT 1), '') <> %s
		ORDER BY MAX(c.created_at) DESC`,
		s.dialect.Placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, query, CompleteSentinel)
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete sessions: %w", err)
	}
	defer rows.Close()

	sessions := []IncompleteSession{}
	for rows.Next() {
		var is IncompleteSession
		if err := rows.Scan(&is.SessionID, &is.Stage, &is.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, is)
	}
	return sessions, rows.Err()
}

// Close is a no-op; the shared pool owns the connection.
func (s *SQLStore) Close() error { return nil }
