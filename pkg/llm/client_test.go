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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/sidecar/pkg/config"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("anthropic", config.LLMConfig{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("cohere", config.LLMConfig{}, "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestNewKnownProviders(t *testing.T) {
	for _, provider := range []string{"anthropic", "openai", "deepseek"} {
		client, err := New(provider, config.LLMConfig{}, "key")
		require.NoError(t, err, provider)
		assert.NotNil(t, client, provider)
	}
}

func TestMockEmitsChunks(t *testing.T) {
	mock := NewMock(Completion{Text: "hello world"})
	mock.ChunkSize = 4

	var chunks []string
	completion, err := mock.Complete(context.Background(), Request{Model: "m"}, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", completion.Text)
	assert.Equal(t, []string{"hell", "o wo", "rld"}, chunks)
}

func TestMockScriptOrderAndErrors(t *testing.T) {
	mock := NewMock(Completion{Text: "first"})
	mock.Queue(Completion{ToolCalls: []ToolCall{{ID: "c1", Name: "get_data"}}})
	ctx := context.Background()

	first, err := mock.Complete(ctx, Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", first.Text)

	second, err := mock.Complete(ctx, Request{}, nil)
	require.NoError(t, err)
	require.Len(t, second.ToolCalls, 1)
	assert.Equal(t, "get_data", second.ToolCalls[0].Name)

	mock.QueueError(errors.New("overloaded"))
	_, err = mock.Complete(ctx, Request{}, nil)
	assert.EqualError(t, err, "overloaded")

	assert.Len(t, mock.Requests(), 3)
}

func TestParseToolArguments(t *testing.T) {
	assert.Equal(t, map[string]any{"q": "ohm"}, parseToolArguments(`{"q":"ohm"}`))
	assert.Equal(t, map[string]any{}, parseToolArguments(""))
	assert.Equal(t, map[string]any{"raw": "{broken"}, parseToolArguments("{broken"))
}

func TestGeminiSchemaConversion(t *testing.T) {
	s := geminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search terms"},
			"limit": map[string]any{"type": "integer"},
		},
		"required": []any{"query"},
	})
	require.NotNil(t, s)
	require.Contains(t, s.Properties, "query")
	assert.Equal(t, "search terms", s.Properties["query"].Description)
	assert.Equal(t, []string{"query"}, s.Required)
}
