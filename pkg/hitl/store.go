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
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/database"
)

// ErrPauseNotFound is returned when a resume token is unknown, already
// consumed, or expired. Callers cannot distinguish the three; any entry
// may have expired between pause and resume.
var ErrPauseNotFound = errors.New("pause state not found or expired")

// Store persists paused loop state. Implementations must make Take
// atomic: two concurrent resumes of one token must not both succeed.
type Store interface {
	// Put stores state under token until expiresAt.
	Put(ctx context.Context, token string, state []byte, expiresAt time.Time) error

	// Take fetches and deletes the state. Returns ErrPauseNotFound when
	// the token is absent or expired.
	Take(ctx context.Context, token string) ([]byte, error)

	Close() error
}

// NewStore picks the first available backend: Redis, then Postgres, then
// SQLite, then in-memory. An unreachable preferred backend logs a warning
// and falls through rather than failing startup.
func NewStore(conv *config.ConversationConfig, db *config.DatabaseConfig, pool *database.Pool) Store {
	if conv.Store == config.ConversationRedis && conv.Redis.URL != "" {
		store, err := NewRedisStore(conv.Redis.URL)
		if err == nil {
			return store
		}
		slog.Warn("hitl: redis store unavailable, falling back", "error", err)
	}

	if db != nil {
		handle, dialect, err := pool.Get(db)
		if err == nil {
			store, err := NewSQLStore(handle, dialect)
			if err == nil {
				return store
			}
			slog.Warn("hitl: sql store unavailable, falling back", "error", err)
		} else {
			slog.Warn("hitl: database unavailable, falling back", "error", err)
		}
	}

	return NewMemoryStore()
}

// MemoryStore keeps pause state in process memory. Resume tokens do not
// survive restarts and are invisible to other instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	state     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory pause store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(ctx context.Context, token string, state []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic sweep keeps abandoned pauses from accumulating.
	now := time.Now()
	for k, e := range s.entries {
		if e.expiresAt.Before(now) {
			delete(s.entries, k)
		}
	}

	s.entries[token] = memoryEntry{state: state, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, token string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return nil, ErrPauseNotFound
	}
	delete(s.entries, token)
	if entry.expiresAt.Before(time.Now()) {
		return nil, ErrPauseNotFound
	}
	return entry.state, nil
}

func (s *MemoryStore) Close() error { return nil }
