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

package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/forgeworks/sidecar/pkg/agentreg"
	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/prompts"
	"github.com/forgeworks/sidecar/pkg/toolreg"
)

// DefaultSystemPrompt is the last resort of the prompt fallback chain.
const DefaultSystemPrompt = "You are a helpful assistant."

// DefaultMaxTurns caps the ReAct loop when neither config nor agent
// sets a budget.
const DefaultMaxTurns = 10

// Effective is the fully resolved per-request configuration tuple.
type Effective struct {
	Model        string         `json:"model"`
	HitlLevel    string         `json:"hitlLevel"`
	Provider     string         `json:"provider"`
	APIKey       string         `json:"-"`
	SystemPrompt string         `json:"systemPrompt"`
	MaxTurns     int            `json:"maxTurns"`
	MaxTokens    int            `json:"maxTokens,omitempty"`
	Tools        []toolreg.Tool `json:"-"`

	// Agent is the resolved agent, zero-valued when no agent applies.
	Agent agentreg.Agent `json:"-"`

	// Permissions after agent overrides; they gate the user layer and
	// are reported by GET /agent-api/preferences.
	AllowUserModelSelect bool `json:"-"`
	AllowUserHitlConfig  bool `json:"-"`
}

// Resolver merges the three configuration layers: base config, agent
// overrides, then user preferences where the permission flags allow.
type Resolver struct {
	snapshot func() *config.Config
	agents   *agentreg.Store
	prefs    *Store
	prompts  *prompts.Store
	tools    *toolreg.Store
}

// NewResolver builds a resolver. snapshot returns the current config
// (the admin overlay's view); prompts and tools may be nil in tests.
func NewResolver(snapshot func() *config.Config, agents *agentreg.Store, prefs *Store, promptStore *prompts.Store, tools *toolreg.Store) *Resolver {
	return &Resolver{snapshot: snapshot, agents: agents, prefs: prefs, prompts: promptStore, tools: tools}
}

// Resolve produces the effective tuple for one request. agentID may be
// empty, selecting the registry default when one exists; a named agent
// that is missing or disabled is an error.
func (r *Resolver) Resolve(ctx context.Context, userID, agentID string) (Effective, error) {
	cfg := r.snapshot()

	eff := Effective{
		Model:                cfg.DefaultModel,
		HitlLevel:            cfg.DefaultHitlLevel,
		SystemPrompt:         cfg.SystemPrompt,
		MaxTurns:             DefaultMaxTurns,
		AllowUserModelSelect: cfg.AllowUserModelSelect,
		AllowUserHitlConfig:  cfg.AllowUserHitlConfig,
	}

	agent, hasAgent, err := r.lookupAgent(ctx, agentID)
	if err != nil {
		return Effective{}, err
	}
	if hasAgent {
		eff.Agent = agent
		if agent.DefaultModel != "" {
			eff.Model = agent.DefaultModel
		}
		if agent.DefaultHitlLevel != "" {
			eff.HitlLevel = agent.DefaultHitlLevel
		}
		if agent.MaxTurns > 0 {
			eff.MaxTurns = agent.MaxTurns
		}
		if agent.MaxTokens > 0 {
			eff.MaxTokens = agent.MaxTokens
		}
		// False is the column default and means "unset": an agent can
		// grant a permission the base config withholds, never revoke one.
		if agent.AllowUserModelSelect {
			eff.AllowUserModelSelect = true
		}
		if agent.AllowUserHitlConfig {
			eff.AllowUserHitlConfig = true
		}
	}

	if userID != "" && r.prefs != nil {
		stored, err := r.prefs.Get(ctx, userID)
		if err != nil {
			return Effective{}, err
		}
		if stored.Model != nil && eff.AllowUserModelSelect {
			eff.Model = *stored.Model
		}
		if stored.HitlLevel != nil && eff.AllowUserHitlConfig {
			eff.HitlLevel = *stored.HitlLevel
		}
	}

	eff.Provider = ProviderForModel(eff.Model)
	eff.APIKey = apiKeyForProvider(eff.Provider)
	eff.SystemPrompt = r.resolvePrompt(ctx, agent, hasAgent, cfg)

	tools, err := r.resolveTools(ctx, agent, hasAgent)
	if err != nil {
		return Effective{}, err
	}
	eff.Tools = tools

	return eff, nil
}

func (r *Resolver) lookupAgent(ctx context.Context, agentID string) (agentreg.Agent, bool, error) {
	if r.agents == nil {
		return agentreg.Agent{}, false, nil
	}
	if agentID == "" {
		agent, err := r.agents.Default(ctx)
		if errors.Is(err, agentreg.ErrNotFound) {
			return agentreg.Agent{}, false, nil
		}
		if err != nil {
			return agentreg.Agent{}, false, err
		}
		return agent, true, nil
	}

	agent, err := r.agents.Get(ctx, agentID)
	if errors.Is(err, agentreg.ErrNotFound) {
		return agentreg.Agent{}, false, fmt.Errorf("%w: %q", agentreg.ErrNotFound, agentID)
	}
	if err != nil {
		return agentreg.Agent{}, false, err
	}
	return agent, true, nil
}

// resolvePrompt walks the fallback chain: agent prompt, active prompt
// version, configured prompt, builtin default.
func (r *Resolver) resolvePrompt(ctx context.Context, agent agentreg.Agent, hasAgent bool, cfg *config.Config) string {
	if hasAgent && agent.SystemPrompt != "" {
		return agent.SystemPrompt
	}
	if r.prompts != nil {
		if active, err := r.prompts.Active(ctx); err == nil {
			return active.Content
		}
	}
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return DefaultSystemPrompt
}

// resolveTools starts from every promoted tool and applies the agent
// allowlist. Malformed allowlists fail closed.
func (r *Resolver) resolveTools(ctx context.Context, agent agentreg.Agent, hasAgent bool) ([]toolreg.Tool, error) {
	if r.tools == nil {
		return []toolreg.Tool{}, nil
	}
	promoted, err := r.tools.Promoted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load promoted tools: %w", err)
	}
	if !hasAgent {
		return promoted, nil
	}

	allowlist := agentreg.ParseAllowlist(agent.ToolAllowlist)
	filtered := []toolreg.Tool{}
	for _, tool := range promoted {
		if allowlist.Allows(tool.Name) {
			filtered = append(filtered, tool)
		}
	}
	return filtered, nil
}

// ProviderForModel derives the LLM provider from the model name prefix.
func ProviderForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini-"):
		return "google"
	case strings.HasPrefix(model, "deepseek-"):
		return "deepseek"
	case strings.HasPrefix(model, "gpt-"), model == "o1", strings.HasPrefix(model, "o1-"), strings.HasPrefix(model, "o3"):
		return "openai"
	default:
		return "anthropic"
	}
}

func apiKeyForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "google":
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GEMINI_API_KEY")
	case "deepseek":
		return os.Getenv("DEEPSEEK_API_KEY")
	default:
		return ""
	}
}
