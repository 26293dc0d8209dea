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

// Package verifier runs post-hoc policy checks over tool results.
//
// Verifiers are bound to tools (or to the wildcard "*") and execute in
// ascending ACIRU-order key. ACIRU categories are Attribution,
// Compliance, Interface, Risk and Uncertainty; the order key is an
// alphanumeric string like "I-0001" compared lexicographically.
package verifier

import (
	"time"
)

// Outcome is a verifier's verdict on one tool result.
type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeWarn  Outcome = "warn"
	OutcomeBlock Outcome = "block"
)

// ValidOutcome reports whether s is a recognized outcome.
func ValidOutcome(s string) bool {
	switch Outcome(s) {
	case OutcomePass, OutcomeWarn, OutcomeBlock:
		return true
	}
	return false
}

// Type discriminates the three verifier implementations.
type Type string

const (
	TypeSchema  Type = "schema"
	TypePattern Type = "pattern"
	TypeCustom  Type = "custom"
)

// ValidType reports whether s is a recognized verifier type.
func ValidType(s string) bool {
	switch Type(s) {
	case TypeSchema, TypePattern, TypeCustom:
		return true
	}
	return false
}

// Role is the failure-handling posture derived from a tool's category.
type Role string

const (
	// RoleAny covers read and analysis tools. Verifier failures degrade
	// to a warning; the result still reaches the model.
	RoleAny Role = "any"

	// RoleWrite covers mutating tools. Verifier failures fail closed.
	RoleWrite Role = "write"
)

// RoleForCategory maps a tool category to its role. Unknown categories
// are treated as write so that a miscategorized tool fails closed.
func RoleForCategory(category string) Role {
	switch category {
	case "read", "analysis":
		return RoleAny
	default:
		return RoleWrite
	}
}

// Degraded is the outcome substituted when a verifier cannot deliver a
// verdict: exception, timeout, queue-full or worker crash.
func (r Role) Degraded() Outcome {
	if r == RoleWrite {
		return OutcomeBlock
	}
	return OutcomeWarn
}

// Verifier is one registered policy check.
type Verifier struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"displayName"`
	Type        Type           `json:"type"`
	Category    string         `json:"category"`
	Order       string         `json:"order"`
	Spec        map[string]any `json:"spec"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitempty"`
}

// Binding attaches a verifier to a tool. ToolName "*" binds it to every
// tool.
type Binding struct {
	VerifierName string `json:"verifierName"`
	ToolName     string `json:"toolName"`
}

// WildcardTool binds a verifier to all tools.
const WildcardTool = "*"

// Evaluation is the recorded result of running one verifier.
type Evaluation struct {
	Verifier string  `json:"verifier"`
	Outcome  Outcome `json:"outcome"`
	Message  string  `json:"message,omitempty"`
}
