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
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a paused loop stays resumable.
const DefaultTTL = 5 * time.Minute

// Engine issues one-shot resume tokens over a Store.
type Engine struct {
	store Store
	ttl   time.Duration
}

// NewEngine wraps a store. A non-positive ttl selects DefaultTTL.
func NewEngine(store Store, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{store: store, ttl: ttl}
}

// Pause stores the serialized loop state and returns its resume token.
func (e *Engine) Pause(ctx context.Context, state []byte) (string, error) {
	token := uuid.NewString()
	if err := e.store.Put(ctx, token, state, time.Now().Add(e.ttl)); err != nil {
		return "", err
	}
	return token, nil
}

// Resume consumes the token and returns the captured state. A second
// resume with the same token fails with ErrPauseNotFound.
func (e *Engine) Resume(ctx context.Context, token string) ([]byte, error) {
	return e.store.Take(ctx, token)
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}
