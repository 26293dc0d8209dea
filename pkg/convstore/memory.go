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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-instance
// development runs. It mirrors the backend semantics exactly, including
// chronological retrieval and the completion sentinel.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]Turn)}
}

func (s *MemoryStore) CreateSession(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *MemoryStore) PersistMessage(ctx context.Context, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.turns[sessionID]
	out := make([]Turn, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) IncompleteSessions(ctx context.Context) ([]IncompleteSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := []IncompleteSession{}
	for id, turns := range s.turns {
		if len(turns) == 0 || latestSystemIsComplete(turns) {
			continue
		}
		last := turns[len(turns)-1]
		sessions = append(sessions, IncompleteSession{
			SessionID:   id,
			Stage:       last.Stage,
			LastUpdated: last.CreatedAt,
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastUpdated.After(sessions[j].LastUpdated)
	})
	return sessions, nil
}

func (s *MemoryStore) Close() error { return nil }
