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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// openAIClient serves both the openai and deepseek providers; the
// latter exposes an OpenAI-compatible Chat Completions API.
type openAIClient struct {
	chat *openai.Client
}

func newOpenAIClient(apiKey, baseURL string, timeoutSeconds int) *openAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeoutSeconds > 0 {
		cfg.HTTPClient = &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
	}
	return &openAIClient{chat: openai.NewClientWithConfig(cfg)}
}

func (c *openAIClient) Complete(ctx context.Context, req Request, onText func(chunk string)) (Completion, error) {
	request := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  openAIMessages(req),
		MaxTokens: req.MaxTokens,
	}
	tools, err := openAITools(req.Tools)
	if err != nil {
		return Completion{}, err
	}
	request.Tools = tools

	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return Completion{}, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return Completion{}, fmt.Errorf("openai returned no choices")
	}

	choice := response.Choices[0].Message
	completion := Completion{
		Text: choice.Content,
		Usage: Usage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
		},
	}
	for _, call := range choice.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: parseToolArguments(call.Function.Arguments),
		})
	}

	if completion.Text != "" && onText != nil {
		onText(completion.Text)
	}
	return completion, nil
}

func openAIMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 1+len(req.Messages))
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Args)
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			messages = append(messages, m)

		case RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}
	return messages
}

func openAITools(defs []ToolDef) ([]openai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		schema := def.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		params, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for tool %q: %w", def.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return tools, nil
}

// parseToolArguments decodes the arguments JSON the model produced.
// Malformed payloads are preserved under a "raw" key rather than lost.
func parseToolArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}
