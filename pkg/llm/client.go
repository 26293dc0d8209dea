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

// Package llm abstracts the supported model providers behind a single
// completion interface. Each provider adapter translates the neutral
// request into its SDK's shapes and back.
package llm

import (
	"context"
	"fmt"

	"github.com/forgeworks/sidecar/pkg/config"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Message is one turn of provider-neutral conversation history.
// Assistant turns may carry tool calls; tool turns carry the result of
// exactly one call, identified by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
	IsError    bool       `json:"isError,omitempty"`
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage is the token accounting for one completion.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Request is one completion request.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolDef
	MaxTokens int
}

// Completion is the model's reply. Text and ToolCalls may both be set
// when the model narrates before calling tools.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client is a single-provider completion client. onText receives
// assistant text as it becomes available; it may be nil.
type Client interface {
	Complete(ctx context.Context, req Request, onText func(chunk string)) (Completion, error)
}

// New builds the client for a provider name as resolved from the model
// prefix. The deepseek provider reuses the OpenAI-compatible adapter
// with its own endpoint.
func New(provider string, cfg config.LLMConfig, apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", provider)
	}

	switch provider {
	case "anthropic":
		return newAnthropicClient(apiKey, cfg.AnthropicBaseURL, cfg.TimeoutSeconds), nil
	case "openai":
		return newOpenAIClient(apiKey, cfg.OpenAIBaseURL, cfg.TimeoutSeconds), nil
	case "deepseek":
		return newOpenAIClient(apiKey, cfg.DeepseekBaseURL, cfg.TimeoutSeconds), nil
	case "google":
		return newGeminiClient(apiKey, cfg.GeminiBaseURL, cfg.TimeoutSeconds)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
