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

// Package agentreg is the agent registry: named configuration bundles
// scoping model, HITL level, system prompt and tool access. Agents are
// seeded from configuration at startup and editable over the admin API;
// a seed never overwrites an admin-edited row.
package agentreg

import (
	"encoding/json"
	"strings"
	"time"
)

// Agent is one registry row.
type Agent struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	SystemPrompt     string `json:"systemPrompt,omitempty"`
	DefaultModel     string `json:"defaultModel,omitempty"`
	DefaultHitlLevel string `json:"defaultHitlLevel,omitempty"`

	AllowUserModelSelect bool `json:"allowUserModelSelect"`
	AllowUserHitlConfig  bool `json:"allowUserHitlConfig"`

	// ToolAllowlist is the raw stored value: "*" or a JSON string array.
	// Parsing happens at resolve time; malformed values fail closed.
	ToolAllowlist string `json:"toolAllowlist"`

	MaxTurns  int `json:"maxTurns,omitempty"`
	MaxTokens int `json:"maxTokens,omitempty"`

	Enabled          bool      `json:"enabled"`
	IsDefault        bool      `json:"isDefault"`
	SeededFromConfig bool      `json:"seededFromConfig"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
}

// Allowlist is the parsed form of an agent's tool allowlist.
type Allowlist struct {
	Wildcard bool
	Names    map[string]bool
}

// Allows reports whether a tool name passes the allowlist.
func (a Allowlist) Allows(tool string) bool {
	return a.Wildcard || a.Names[tool]
}

// ParseAllowlist interprets the stored allowlist value. "*" allows all
// tools; a JSON string array allows the named ones. Anything else,
// including malformed JSON, yields the empty allowlist: a broken
// allowlist must never widen access.
func ParseAllowlist(raw string) Allowlist {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "*" {
		return Allowlist{Wildcard: true}
	}

	var names []string
	if err := json.Unmarshal([]byte(trimmed), &names); err != nil {
		return Allowlist{Names: map[string]bool{}}
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return Allowlist{Names: set}
}

// EncodeAllowlist renders the stored form of an allowlist.
func EncodeAllowlist(wildcard bool, names []string) string {
	if wildcard {
		return "*"
	}
	if names == nil {
		names = []string{}
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
