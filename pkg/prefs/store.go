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

// Package prefs stores per-user preferences and resolves the effective
// per-request configuration from base config, agent overrides and user
// choices.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/database"
)

// ErrInvalidHitlLevel is returned when a preference write names an
// unknown HITL level.
var ErrInvalidHitlLevel = errors.New("invalid hitl level")

// Preferences are one user's stored choices. Nil means "no preference";
// the resolver then falls through to agent or base values.
type Preferences struct {
	Model     *string `json:"model"`
	HitlLevel *string `json:"hitl_level"`
}

// Store persists user preferences.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

const prefsSchema = `
CREATE TABLE IF NOT EXISTS user_preferences (
    user_id VARCHAR(256) PRIMARY KEY,
    model VARCHAR(128),
    hitl_level VARCHAR(16)
)`

// NewStore wraps an open connection and creates the table.
func NewStore(db *sql.DB, dialect database.Dialect) (*Store, error) {
	if _, err := db.ExecContext(context.Background(), prefsSchema); err != nil {
		return nil, fmt.Errorf("failed to create user_preferences table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Get returns the stored preferences, zero-valued when the user has
// never written any.
func (s *Store) Get(ctx context.Context, userID string) (Preferences, error) {
	query := fmt.Sprintf(
		`SELECT model, hitl_level FROM user_preferences WHERE user_id = %s`,
		s.dialect.Placeholder(1),
	)
	var model, hitl sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&model, &hitl)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("failed to load preferences for %q: %w", userID, err)
	}

	var prefs Preferences
	if model.Valid && model.String != "" {
		prefs.Model = &model.String
	}
	if hitl.Valid && hitl.String != "" {
		prefs.HitlLevel = &hitl.String
	}
	return prefs, nil
}

// Upsert merges non-nil fields into the stored row. An unknown HITL
// level is rejected before anything is written.
func (s *Store) Upsert(ctx context.Context, userID string, prefs Preferences) error {
	if prefs.HitlLevel != nil && !config.ValidHitlLevel(*prefs.HitlLevel) {
		return fmt.Errorf("%w: %q", ErrInvalidHitlLevel, *prefs.HitlLevel)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if prefs.Model != nil {
		current.Model = prefs.Model
	}
	if prefs.HitlLevel != nil {
		current.HitlLevel = prefs.HitlLevel
	}

	var query string
	if s.dialect == database.DialectPostgres {
		query = fmt.Sprintf(
			`INSERT INTO user_preferences (user_id, model, hitl_level) VALUES (%s, %s, %s)
			 ON CONFLICT (user_id) DO UPDATE SET model = EXCLUDED.model, hitl_level = EXCLUDED.hitl_level`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3))
	} else {
		query = fmt.Sprintf(
			`INSERT OR REPLACE INTO user_preferences (user_id, model, hitl_level) VALUES (%s, %s, %s)`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3))
	}

	var model, hitl any
	if current.Model != nil {
		model = *current.Model
	}
	if current.HitlLevel != nil {
		hitl = *current.HitlLevel
	}
	if _, err := s.db.ExecContext(ctx, query, userID, model, hitl); err != nil {
		return fmt.Errorf("failed to store preferences for %q: %w", userID, err)
	}
	return nil
}
