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

// Package toolreg is the tool registry: which capability endpoints
// exist, where they live in their lifecycle, and how to dispatch a call
// to them. Only promoted tools are visible to the model.
package toolreg

import (
	"time"
)

// State is a tool's lifecycle position.
type State string

const (
	StateCandidate State = "candidate"
	StatePromoted  State = "promoted"
	StateFlagged   State = "flagged"
	StateRetired   State = "retired"
	StateSwapped   State = "swapped"
)

// ValidState reports whether s is a recognized lifecycle state.
func ValidState(s string) bool {
	switch State(s) {
	case StateCandidate, StatePromoted, StateFlagged, StateRetired, StateSwapped:
		return true
	}
	return false
}

// Routing describes how the dispatcher reaches a remote tool.
type Routing struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method,omitempty"`
}

// Spec is the JSON specification blob stored per tool.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`

	// Category drives the verifier failure role and the HITL policy:
	// read and analysis tools degrade open, write tools fail closed.
	Category string `json:"category,omitempty"`

	// RequiresConfirmation forces a HITL pause at cautious level and up.
	RequiresConfirmation bool `json:"requiresConfirmation,omitempty"`

	// MCPRouting is set for remote tools; builtin tools omit it.
	MCPRouting *Routing `json:"mcpRouting,omitempty"`

	// TimeoutMs bounds one dispatch. Zero means the 15s default.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// Tool is one registry row.
type Tool struct {
	Name             string     `json:"name"`
	State            State      `json:"state"`
	Spec             Spec       `json:"spec"`
	BaselinePassRate float64    `json:"baselinePassRate"`
	PromotedAt       *time.Time `json:"promotedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt,omitempty"`
}
