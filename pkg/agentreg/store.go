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

package agentreg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/database"
)

// ErrNotFound is returned when an agent id is unknown or disabled.
var ErrNotFound = errors.New("agent not found")

// Store persists the agent registry.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

const agentSchema = `
CREATE TABLE IF NOT EXISTS agents (
    agent_id VARCHAR(128) PRIMARY KEY,
    display_name VARCHAR(256) NOT NULL,
    system_prompt TEXT,
    default_model VARCHAR(128),
    default_hitl_level VARCHAR(16),
    allow_user_model_select BOOLEAN NOT NULL DEFAULT FALSE,
    allow_user_hitl_config BOOLEAN NOT NULL DEFAULT FALSE,
    tool_allowlist TEXT NOT NULL DEFAULT '*',
    max_turns INTEGER NOT NULL DEFAULT 0,
    max_tokens INTEGER NOT NULL DEFAULT 0,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    is_default BOOLEAN NOT NULL DEFAULT FALSE,
    seeded_from_config BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
)`

// NewStore wraps an open connection and creates the table.
func NewStore(db *sql.DB, dialect database.Dialect) (*Store, error) {
	if _, err := db.ExecContext(context.Background(), agentSchema); err != nil {
		return nil, fmt.Errorf("failed to create agents table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Seed upserts configuration-defined agents. Rows previously edited by
// an admin (seeded_from_config = 0) are left untouched so that restarts
// do not revert operator changes.
func (s *Store) Seed(ctx context.Context, seeds []config.AgentSeed) error {
	for _, seed := range seeds {
		existing, err := s.get(ctx, seed.ID, false)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err == nil && !existing.SeededFromConfig {
			slog.Debug("skipping seed for admin-edited agent", "agent", seed.ID)
			continue
		}

		agent := agentFromSeed(seed)
		if err == nil {
			if err := s.update(ctx, agent, true); err != nil {
				return err
			}
		} else {
			if err := s.insert(ctx, agent, true); err != nil {
				return err
			}
		}
		if agent.IsDefault {
			if err := s.setDefault(ctx, agent.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func agentFromSeed(seed config.AgentSeed) Agent {
	agent := Agent{
		ID:               seed.ID,
		DisplayName:      seed.DisplayName,
		SystemPrompt:     seed.SystemPrompt,
		DefaultModel:     seed.DefaultModel,
		DefaultHitlLevel: seed.DefaultHitlLevel,
		MaxTurns:         seed.MaxTurns,
		MaxTokens:        seed.MaxTokens,
		Enabled:          true,
		IsDefault:        seed.IsDefault,
		ToolAllowlist:    "*",
	}
	if seed.AllowUserModelSelect != nil {
		agent.AllowUserModelSelect = *seed.AllowUserModelSelect
	}
	if seed.AllowUserHitlConfig != nil {
		agent.AllowUserHitlConfig = *seed.AllowUserHitlConfig
	}
	if seed.ToolAllowlist != nil {
		agent.ToolAllowlist = EncodeAllowlist(seed.ToolAllowlist.Wildcard, seed.ToolAllowlist.Names)
	}
	return agent
}

// Create inserts an admin-defined agent.
func (s *Store) Create(ctx context.Context, agent Agent) error {
	if agent.ToolAllowlist == "" {
		agent.ToolAllowlist = "*"
	}
	if err := s.insert(ctx, agent, false); err != nil {
		return err
	}
	if agent.IsDefault {
		return s.setDefault(ctx, agent.ID)
	}
	return nil
}

// Update replaces an agent's fields and marks it admin-edited.
func (s *Store) Update(ctx context.Context, agent Agent) error {
	if err := s.update(ctx, agent, false); err != nil {
		return err
	}
	if agent.IsDefault {
		return s.setDefault(ctx, agent.ID)
	}
	return nil
}

// Delete removes an agent.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM agents WHERE agent_id = %s`, s.dialect.Placeholder(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns an enabled agent by id.
func (s *Store) Get(ctx context.Context, id string) (Agent, error) {
	return s.get(ctx, id, true)
}

// Default returns the registry's default agent, or ErrNotFound when
// none is marked.
func (s *Store) Default(ctx context.Context) (Agent, error) {
	row := s.db.QueryRowContext(ctx, selectAgent+` WHERE is_default AND enabled`)
	agent, err := scanAgent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("failed to load default agent: %w", err)
	}
	return agent, nil
}

// List returns every agent, enabled or not.
func (s *Store) List(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, selectAgent+` ORDER BY agent_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

const selectAgent = `
SELECT agent_id, display_name, system_prompt, default_model, default_hitl_level,
       allow_user_model_select, allow_user_hitl_config, tool_allowlist,
       max_turns, max_tokens, enabled, is_default, seeded_from_config, created_at
FROM agents`

func (s *Store) get(ctx context.Context, id string, enabledOnly bool) (Agent, error) {
	query := selectAgent + fmt.Sprintf(` WHERE agent_id = %s`, s.dialect.Placeholder(1))
	if enabledOnly {
		query += ` AND enabled`
	}
	row := s.db.QueryRowContext(ctx, query, id)
	agent, err := scanAgent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("failed to load agent %q: %w", id, err)
	}
	return agent, nil
}

func scanAgent(scan func(...any) error) (Agent, error) {
	var agent Agent
	var systemPrompt, defaultModel, defaultHitl sql.NullString
	err := scan(&agent.ID, &agent.DisplayName, &systemPrompt, &defaultModel, &defaultHitl,
		&agent.AllowUserModelSelect, &agent.AllowUserHitlConfig, &agent.ToolAllowlist,
		&agent.MaxTurns, &agent.MaxTokens, &agent.Enabled, &agent.IsDefault,
		&agent.SeededFromConfig, &agent.CreatedAt)
	if err != nil {
		return Agent{}, err
	}
	agent.SystemPrompt = systemPrompt.String
	agent.DefaultModel = defaultModel.String
	agent.DefaultHitlLevel = defaultHitl.String
	return agent, nil
}

func (s *Store) insert(ctx context.Context, agent Agent, seeded bool) error {
	placeholders := make([]any, 0, 14)
	query := `INSERT INTO agents (agent_id, display_name, system_prompt, default_model, default_hitl_level,
        allow_user_model_select, allow_user_hitl_config, tool_allowlist,
        max_turns, max_tokens, enabled, is_default, seeded_from_config, created_at) VALUES (`
	for i := 1; i <= 14; i++ {
		if i > 1 {
			query += ", "
		}
		query += s.dialect.Placeholder(i)
	}
	query += ")"

	placeholders = append(placeholders,
		agent.ID, agent.DisplayName, agent.SystemPrompt, agent.DefaultModel, agent.DefaultHitlLevel,
		agent.AllowUserModelSelect, agent.AllowUserHitlConfig, agent.ToolAllowlist,
		agent.MaxTurns, agent.MaxTokens, agent.Enabled, agent.IsDefault,
		seeded, time.Now().UTC())

	if _, err := s.db.ExecContext(ctx, query, placeholders...); err != nil {
		return fmt.Errorf("failed to create agent %q: %w", agent.ID, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, agent Agent, seeded bool) error {
	query := fmt.Sprintf(
		`UPDATE agents SET display_name = %s, system_prompt = %s, default_model = %s,
         default_hitl_level = %s, allow_user_model_select = %s, allow_user_hitl_config = %s,
         tool_allowlist = %s, max_turns = %s, max_tokens = %s, enabled = %s,
         is_default = %s, seeded_from_config = %s WHERE agent_id = %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
		s.dialect.Placeholder(7), s.dialect.Placeholder(8), s.dialect.Placeholder(9),
		s.dialect.Placeholder(10), s.dialect.Placeholder(11), s.dialect.Placeholder(12),
		s.dialect.Placeholder(13),
	)
	res, err := s.db.ExecContext(ctx, query,
		agent.DisplayName, agent.SystemPrompt, agent.DefaultModel, agent.DefaultHitlLevel,
		agent.AllowUserModelSelect, agent.AllowUserHitlConfig, agent.ToolAllowlist,
		agent.MaxTurns, agent.MaxTokens, agent.Enabled, agent.IsDefault, seeded, agent.ID)
	if err != nil {
		return fmt.Errorf("failed to update agent %q: %w", agent.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// setDefault makes id the only default in one atomic statement.
func (s *Store) setDefault(ctx context.Context, id string) error {
	query := fmt.Sprintf(
		`UPDATE agents SET is_default = (agent_id = %s)`,
		s.dialect.Placeholder(1),
	)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to set default agent %q: %w", id, err)
	}
	return nil
}
