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
	"fmt"
	"regexp"
)

var agentIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ToolAllowlist is either the wildcard "*" or an explicit set of tool names.
// It decodes from YAML as either a string or a list of strings.
type ToolAllowlist struct {
	Wildcard bool
	Names    []string
}

// UnmarshalYAML accepts "*" or [name, ...].
func (a *ToolAllowlist) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		return a.fromAny(s)
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return fmt.Errorf("toolAllowlist must be '*' or a list of tool names")
	}
	a.Wildcard = false
	a.Names = list
	return nil
}

// FromAny decodes a value produced by a generic YAML/JSON parse.
func (a *ToolAllowlist) FromAny(v any) error { return a.fromAny(v) }

func (a *ToolAllowlist) fromAny(v any) error {
	switch val := v.(type) {
	case nil:
		a.Wildcard = true
		a.Names = nil
	case string:
		if val != "*" {
			return fmt.Errorf("toolAllowlist string form must be '*', got '%s'", val)
		}
		a.Wildcard = true
		a.Names = nil
	case []string:
		a.Wildcard = false
		a.Names = val
	case []any:
		names := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("toolAllowlist entries must be strings")
			}
			names = append(names, s)
		}
		a.Wildcard = false
		a.Names = names
	default:
		return fmt.Errorf("toolAllowlist must be '*' or a list of tool names")
	}
	return nil
}

// AgentSeed is an agent definition from configuration. Seeds are written
// into the agent registry at startup; rows already edited by an admin are
// left alone.
type AgentSeed struct {
	ID               string `yaml:"id" mapstructure:"id"`
	DisplayName      string `yaml:"displayName,omitempty" mapstructure:"displayName"`
	SystemPrompt     string `yaml:"systemPrompt,omitempty" mapstructure:"systemPrompt"`
	DefaultModel     string `yaml:"defaultModel,omitempty" mapstructure:"defaultModel"`
	DefaultHitlLevel string `yaml:"defaultHitlLevel,omitempty" mapstructure:"defaultHitlLevel"`

	AllowUserModelSelect *bool `yaml:"allowUserModelSelect,omitempty" mapstructure:"allowUserModelSelect"`
	AllowUserHitlConfig  *bool `yaml:"allowUserHitlConfig,omitempty" mapstructure:"allowUserHitlConfig"`

	ToolAllowlist *ToolAllowlist `yaml:"toolAllowlist,omitempty" mapstructure:"toolAllowlist"`

	MaxTurns  int  `yaml:"maxTurns,omitempty" mapstructure:"maxTurns"`
	MaxTokens int  `yaml:"maxTokens,omitempty" mapstructure:"maxTokens"`
	IsDefault bool `yaml:"isDefault,omitempty" mapstructure:"isDefault"`
}

func (a *AgentSeed) SetDefaults() {
	if a.DisplayName == "" {
		a.DisplayName = a.ID
	}
	if a.ToolAllowlist == nil {
		a.ToolAllowlist = &ToolAllowlist{Wildcard: true}
	}
}

func (a *AgentSeed) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if !agentIDPattern.MatchString(a.ID) {
		return fmt.Errorf("agent id '%s' must match [a-z0-9_-]+", a.ID)
	}
	if a.DefaultHitlLevel != "" && !ValidHitlLevel(a.DefaultHitlLevel) {
		return fmt.Errorf("agent '%s': defaultHitlLevel '%s' is not a valid HITL level", a.ID, a.DefaultHitlLevel)
	}
	if a.MaxTurns < 0 {
		return fmt.Errorf("agent '%s': maxTurns must not be negative", a.ID)
	}
	if a.MaxTokens < 0 {
		return fmt.Errorf("agent '%s': maxTokens must not be negative", a.ID)
	}
	return nil
}
