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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultTimeout bounds a tool dispatch when the spec does not set one.
const DefaultTimeout = 15 * time.Second

// BuiltinFunc is a tool implemented inside the sidecar process.
type BuiltinFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Dispatcher executes tool calls: builtin functions by name, everything
// else over HTTP per the spec's mcpRouting. Input args are validated
// against the tool's input schema before execution.
type Dispatcher struct {
	client   *http.Client
	builtins map[string]BuiltinFunc

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewDispatcher creates a dispatcher with its own HTTP client. Per-call
// deadlines come from the tool spec, so the client itself has none.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		client:   &http.Client{},
		builtins: make(map[string]BuiltinFunc),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// RegisterBuiltin installs an in-process implementation for a tool name.
// A builtin takes precedence over mcpRouting.
func (d *Dispatcher) RegisterBuiltin(name string, fn BuiltinFunc) {
	d.builtins[name] = fn
}

// Dispatch runs one tool call and returns its result object. The error
// is the model-visible observation on failure; callers embed it into a
// tool_result rather than surfacing HTTP errors.
func (d *Dispatcher) Dispatch(ctx context.Context, tool Tool, args map[string]any) (map[string]any, error) {
	if err := d.validateArgs(tool, args); err != nil {
		return nil, err
	}

	timeout := DefaultTimeout
	if tool.Spec.TimeoutMs > 0 {
		timeout = time.Duration(tool.Spec.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if fn, ok := d.builtins[tool.Name]; ok {
		return fn(ctx, args)
	}
	if tool.Spec.MCPRouting != nil && tool.Spec.MCPRouting.Endpoint != "" {
		return d.dispatchHTTP(ctx, tool, args)
	}
	return nil, fmt.Errorf("tool %q has no implementation", tool.Name)
}

func (d *Dispatcher) dispatchHTTP(ctx context.Context, tool Tool, args map[string]any) (map[string]any, error) {
	routing := tool.Spec.MCPRouting
	method := strings.ToUpper(routing.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet {
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool args: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, routing.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool %q request failed: %w", tool.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read tool %q response: %w", tool.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool %q returned status %d", tool.Name, resp.StatusCode)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Non-JSON responses still reach the model as text.
		return map[string]any{"text": string(raw)}, nil
	}
	if obj, ok := decoded.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"text": string(raw)}, nil
}

func (d *Dispatcher) validateArgs(tool Tool, args map[string]any) error {
	if len(tool.Spec.InputSchema) == 0 {
		return nil
	}
	schema, err := d.compiledSchema(tool)
	if err != nil {
		return fmt.Errorf("tool %q has an invalid input schema: %w", tool.Name, err)
	}

	instance := any(args)
	if args == nil {
		instance = map[string]any{}
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("invalid arguments for tool %q: %w", tool.Name, err)
	}
	return nil
}

func (d *Dispatcher) compiledSchema(tool Tool) (*jsonschema.Schema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if schema, ok := d.schemas[tool.Name]; ok {
		return schema, nil
	}

	raw, err := json.Marshal(tool.Spec.InputSchema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	resource := tool.Name + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, err
	}

	d.schemas[tool.Name] = schema
	return schema, nil
}
