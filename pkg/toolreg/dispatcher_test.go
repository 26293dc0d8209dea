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

package toolreg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchHTTP(t *testing.T) {
	var gotMethod string
	var gotArgs map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotArgs))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer server.Close()

	tool := Tool{
		Name: "get_data",
		Spec: Spec{
			Name:       "get_data",
			MCPRouting: &Routing{Endpoint: server.URL, Method: "POST"},
		},
	}

	d := NewDispatcher()
	result, err := d.Dispatch(context.Background(), tool, map[string]any{"id": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, float64(42), gotArgs["id"])
	assert.Equal(t, "ok", result["value"])
}

func TestDispatchNonJSONResponseBecomesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text output"))
	}))
	defer server.Close()

	tool := Tool{Name: "fetch", Spec: Spec{MCPRouting: &Routing{Endpoint: server.URL}}}
	d := NewDispatcher()
	result, err := d.Dispatch(context.Background(), tool, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text output", result["text"])
}

func TestDispatchHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	tool := Tool{Name: "fetch", Spec: Spec{MCPRouting: &Routing{Endpoint: server.URL}}}
	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), tool, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestDispatchBuiltinWinsOverRouting(t *testing.T) {
	tool := Tool{
		Name: "echo",
		Spec: Spec{MCPRouting: &Routing{Endpoint: "http://unreachable.invalid"}},
	}

	d := NewDispatcher()
	d.RegisterBuiltin("echo", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"echo": args["text"]}, nil
	})

	result, err := d.Dispatch(context.Background(), tool, map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result["echo"])
}

func TestDispatchValidatesArgs(t *testing.T) {
	tool := Tool{
		Name: "get_data",
		Spec: Spec{
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"id": map[string]any{"type": "number"}},
				"required":   []any{"id"},
			},
		},
	}
	d := NewDispatcher()
	d.RegisterBuiltin("get_data", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"value": "ok"}, nil
	})

	// Missing required arg never reaches the implementation.
	_, err := d.Dispatch(context.Background(), tool, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_data")

	// Wrong type is rejected too.
	_, err = d.Dispatch(context.Background(), tool, map[string]any{"id": "forty-two"})
	require.Error(t, err)

	_, err = d.Dispatch(context.Background(), tool, map[string]any{"id": float64(42)})
	assert.NoError(t, err)
}

func TestDispatchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	tool := Tool{
		Name: "slow",
		Spec: Spec{TimeoutMs: 50, MCPRouting: &Routing{Endpoint: server.URL}},
	}
	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), tool, nil)
	assert.Error(t, err)
}

func TestDispatchUnimplementedTool(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), Tool{Name: "mystery"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no implementation")
}
