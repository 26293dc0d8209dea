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

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore counts requests in process memory. Suitable for a single
// instance; a fleet behind a load balancer should use Redis instead.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memoryCounter)}
}

func (s *MemoryStore) Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	// Keys embed the window start, so stale windows are never incremented
	// again; sweep them out as a side effect of normal traffic.
	for k, c := range s.counters {
		if c.expiresAt.Before(now) {
			delete(s.counters, k)
		}
	}

	counter, ok := s.counters[key]
	if !ok {
		counter = &memoryCounter{expiresAt: windowStart.Add(window)}
		s.counters[key] = counter
	}
	counter.count++
	return counter.count, nil
}

func (s *MemoryStore) Close() error { return nil }
