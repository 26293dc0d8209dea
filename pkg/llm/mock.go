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

package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted Client for tests. Each call to Complete consumes
// the next queued completion and records the request it was given.
type Mock struct {
	mu          sync.Mutex
	completions []Completion
	errs        []error
	requests    []Request

	// ChunkSize splits Text across multiple onText calls to exercise
	// streaming consumers. Zero emits the text in one chunk.
	ChunkSize int
}

// NewMock builds a mock that replies with the given completions in order.
func NewMock(completions ...Completion) *Mock {
	return &Mock{completions: completions}
}

// QueueError makes the next call fail with err.
func (m *Mock) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Queue appends a completion to the script.
func (m *Mock) Queue(completion Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, completion)
}

// Requests returns every request seen so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request{}, m.requests...)
}

func (m *Mock) Complete(ctx context.Context, req Request, onText func(chunk string)) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return Completion{}, err
	}
	if len(m.completions) == 0 {
		m.mu.Unlock()
		return Completion{}, fmt.Errorf("mock has no completion for request %d", len(m.requests))
	}
	completion := m.completions[0]
	m.completions = m.completions[1:]
	chunkSize := m.ChunkSize
	m.mu.Unlock()

	if completion.Text != "" && onText != nil {
		if chunkSize <= 0 {
			onText(completion.Text)
		} else {
			for start := 0; start < len(completion.Text); start += chunkSize {
				end := start + chunkSize
				if end > len(completion.Text) {
					end = len(completion.Text)
				}
				onText(completion.Text[start:end])
			}
		}
	}
	return completion, nil
}
