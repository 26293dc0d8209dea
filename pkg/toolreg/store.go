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

package toolreg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/database"
)

// ErrNotFound is returned when a named tool does not exist.
var ErrNotFound = errors.New("tool not found")

// Store persists the tool registry.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

const toolSchema = `
CREATE TABLE IF NOT EXISTS tool_registry (
    tool_name VARCHAR(128) PRIMARY KEY,
    lifecycle_state VARCHAR(16) NOT NULL,
    spec_json TEXT NOT NULL,
    baseline_pass_rate REAL NOT NULL DEFAULT 0,
    promoted_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
)`

// NewStore wraps an open connection and creates the table.
func NewStore(db *sql.DB, dialect database.Dialect) (*Store, error) {
	if _, err := db.ExecContext(context.Background(), toolSchema); err != nil {
		return nil, fmt.Errorf("failed to create tool_registry table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Register inserts a tool in the candidate state.
func (s *Store) Register(ctx context.Context, spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool spec has no name")
	}
	blob, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode tool spec: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO tool_registry (tool_name, lifecycle_state, spec_json, baseline_pass_rate, created_at)
		 VALUES (%s, %s, %s, %s, %s)`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5),
	)
	if _, err := s.db.ExecContext(ctx, query,
		spec.Name, string(StateCandidate), string(blob), 0.0, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to register tool %q: %w", spec.Name, err)
	}
	return nil
}

// Promote moves a tool to the promoted state and stamps the time. Only
// promoted tools are offered to the model.
func (s *Store) Promote(ctx context.Context, name string) error {
	query := fmt.Sprintf(
		`UPDATE tool_registry SET lifecycle_state = %s, promoted_at = %s WHERE tool_name = %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
	)
	res, err := s.db.ExecContext(ctx, query, string(StatePromoted), time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("failed to promote tool %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetState applies any lifecycle transition, e.g. flagging a regressed
// tool or retiring a replaced one.
func (s *Store) SetState(ctx context.Context, name string, state State) error {
	if !ValidState(string(state)) {
		return fmt.Errorf("invalid lifecycle state: %q", state)
	}
	query := fmt.Sprintf(
		`UPDATE tool_registry SET lifecycle_state = %s WHERE tool_name = %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2),
	)
	res, err := s.db.ExecContext(ctx, query, string(state), name)
	if err != nil {
		return fmt.Errorf("failed to update tool %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBaselinePassRate records the eval baseline for a tool.
func (s *Store) SetBaselinePassRate(ctx context.Context, name string, rate float64) error {
	query := fmt.Sprintf(
		`UPDATE tool_registry SET baseline_pass_rate = %s WHERE tool_name = %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2),
	)
	res, err := s.db.ExecContext(ctx, query, rate, name)
	if err != nil {
		return fmt.Errorf("failed to update tool %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches one tool by name.
func (s *Store) Get(ctx context.Context, name string) (Tool, error) {
	query := fmt.Sprintf(
		`SELECT tool_name, lifecycle_state, spec_json, baseline_pass_rate, promoted_at, created_at
		 FROM tool_registry WHERE tool_name = %s`,
		s.dialect.Placeholder(1),
	)
	row := s.db.QueryRowContext(ctx, query, name)
	tool, err := scanTool(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Tool{}, ErrNotFound
	}
	if err != nil {
		return Tool{}, fmt.Errorf("failed to load tool %q: %w", name, err)
	}
	return tool, nil
}

// List returns every registry row regardless of state.
func (s *Store) List(ctx context.Context) ([]Tool, error) {
	return s.query(ctx,
		`SELECT tool_name, lifecycle_state, spec_json, baseline_pass_rate, promoted_at, created_at
		 FROM tool_registry ORDER BY tool_name ASC`)
}

// Promoted returns the tools eligible for model routing.
func (s *Store) Promoted(ctx context.Context) ([]Tool, error) {
	query := fmt.Sprintf(
		`SELECT tool_name, lifecycle_state, spec_json, baseline_pass_rate, promoted_at, created_at
		 FROM tool_registry WHERE lifecycle_state = %s ORDER BY tool_name ASC`,
		s.dialect.Placeholder(1),
	)
	return s.query(ctx, query, string(StatePromoted))
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Tool, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool registry: %w", err)
	}
	defer rows.Close()

	tools := []Tool{}
	for rows.Next() {
		tool, err := scanTool(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func scanTool(scan func(...any) error) (Tool, error) {
	var tool Tool
	var state, blob string
	var promotedAt sql.NullTime
	if err := scan(&tool.Name, &state, &blob, &tool.BaselinePassRate, &promotedAt, &tool.CreatedAt); err != nil {
		return Tool{}, err
	}
	tool.State = State(state)
	if promotedAt.Valid {
		t := promotedAt.Time
		tool.PromotedAt = &t
	}
	if err := json.Unmarshal([]byte(blob), &tool.Spec); err != nil {
		return Tool{}, fmt.Errorf("corrupt tool spec for %q: %w", tool.Name, err)
	}
	return tool, nil
}
