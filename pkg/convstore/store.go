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

// Package convstore persists conversation transcripts.
//
// Three backends implement identical semantics: SQLite, Postgres, and
// Redis. Turns are append-only and retrieval is always chronological.
// Concurrent requests for one session may interleave; the store is the
// linearization point and ordering relies on timestamps, never on locks
// held by callers.
package convstore

import (
	"context"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/database"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// CompleteSentinel marks a finished session: a session is complete when
// its latest system-role turn carries exactly this content.
const CompleteSentinel = "[COMPLETE]"

// Turn is one record of a session transcript.
type Turn struct {
	SessionID string    `json:"sessionId"`
	Stage     string    `json:"stage"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IncompleteSession describes a session that has not reached the
// completion sentinel.
type IncompleteSession struct {
	SessionID   string    `json:"sessionId"`
	Stage       string    `json:"stage"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Store is the conversation persistence interface.
//
// CreateSession only reserves an id; the session materializes when the id
// is first paired with a PersistMessage. GetHistory of an unknown session
// returns an empty slice, not an error.
type Store interface {
	CreateSession(ctx context.Context) (string, error)
	PersistMessage(ctx context.Context, turn Turn) error
	GetHistory(ctx context.Context, sessionID string) ([]Turn, error)
	IncompleteSessions(ctx context.Context) ([]IncompleteSession, error)
	Close() error
}

// New builds the configured backend. SQL backends draw connections from
// the shared pool.
func New(cfg *config.ConversationConfig, registryDB *config.DatabaseConfig, pool *database.Pool) (Store, error) {
	switch cfg.Store {
	case config.ConversationSQLite, config.ConversationPostgres:
		dbCfg := &config.DatabaseConfig{Type: cfg.Store, URL: cfg.URL}
		if dbCfg.URL == "" {
			// Share the registry database by default.
			dbCfg = registryDB
		}
		db, dialect, err := pool.Get(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("conversation store: %w", err)
		}
		return NewSQLStore(db, dialect)
	case config.ConversationRedis:
		return NewRedisStore(cfg.Redis.URL, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
	default:
		return nil, fmt.Errorf("unknown conversation store '%s'", cfg.Store)
	}
}
