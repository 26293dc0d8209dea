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

package react

import (
	"encoding/json"
	"fmt"

	"github.com/forgeworks/sidecar/pkg/llm"
)

// PendingCall is a tool call captured mid-flight by a pause. Dispatched
// marks a call whose result was already obtained before a verifier
// blocked; resuming records the result instead of re-executing the tool.
// Verified marks a result the pipeline already adjudicated, so a resume
// does not run the verifiers a second time.
type PendingCall struct {
	Call       llm.ToolCall   `json:"call"`
	Dispatched bool           `json:"dispatched,omitempty"`
	Verified   bool           `json:"verified,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
}

// PauseState is the serialized loop state stored under a resume token.
// It carries everything needed to continue the loop from a different
// process instance; per-request configuration is re-resolved on resume.
type PauseState struct {
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId"`
	AgentID   string        `json:"agentId,omitempty"`
	Messages  []llm.Message `json:"messages"`
	Pending   []PendingCall `json:"pending"`
	Turn      int           `json:"turn"`
	Usage     llm.Usage     `json:"usage"`
}

// Encode serializes the state for the pause store.
func (s *PauseState) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pause state: %w", err)
	}
	return data, nil
}

// DecodePauseState parses state bytes returned by the pause store.
func DecodePauseState(data []byte) (*PauseState, error) {
	var state PauseState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode pause state: %w", err)
	}
	return &state, nil
}
