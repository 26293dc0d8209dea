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

package config

import (
	"sync"
	"sync/atomic"
)

// Overlay holds the effective runtime configuration: the file-loaded base
// plus in-memory admin mutations. Readers take an immutable snapshot
// without locking; writers serialize behind a mutex and swap atomically.
// Overlay mutations are not persisted across restarts.
type Overlay struct {
	mu      sync.Mutex
	current atomic.Pointer[Config]
}

// NewOverlay wraps a processed base config.
func NewOverlay(base *Config) *Overlay {
	o := &Overlay{}
	o.current.Store(base)
	return o
}

// Snapshot returns the current effective config. The returned value must
// be treated as read-only.
func (o *Overlay) Snapshot() *Config {
	return o.current.Load()
}

// Apply merges a section body onto the effective config.
func (o *Overlay) Apply(section string, body map[string]any) (*Config, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next, err := MergeSection(o.current.Load(), section, body)
	if err != nil {
		return nil, err
	}
	o.current.Store(next)
	return next, nil
}
