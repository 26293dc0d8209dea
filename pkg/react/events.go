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

// Package react drives the reason-act-observe loop: it sequences LLM
// turns, dispatches tool calls, runs the verifier pipeline on results,
// and pauses for human approval where the HITL policy demands it. The
// driver's only output is a single-consumer event stream.
package react

import "github.com/forgeworks/sidecar/pkg/llm"

// Event types, used as SSE event names.
const (
	EventText        = "text"
	EventToolCall    = "tool_call"
	EventToolResult  = "tool_result"
	EventToolWarning = "tool_warning"
	EventHitl        = "hitl"
	EventError       = "error"
	EventDone        = "done"
)

// Event is one tagged record of the loop's output stream. Which fields
// are populated depends on Type; Payload renders the wire shape.
type Event struct {
	Type string

	Text        string
	ID          string
	Tool        string
	Args        map[string]any
	Result      map[string]any
	Message     string
	Verifier    string
	ResumeToken string
	Usage       llm.Usage
}

// Payload returns the JSON-serializable body for the event's type.
func (e Event) Payload() any {
	switch e.Type {
	case EventText:
		return map[string]any{"text": e.Text}
	case EventToolCall:
		return map[string]any{"id": e.ID, "tool": e.Tool, "args": e.Args}
	case EventToolResult:
		return map[string]any{"id": e.ID, "result": e.Result}
	case EventToolWarning:
		return map[string]any{"tool": e.Tool, "message": e.Message, "verifier": e.Verifier}
	case EventHitl:
		payload := map[string]any{
			"resumeToken": e.ResumeToken,
			"tool":        e.Tool,
			"message":     e.Message,
		}
		if e.Verifier != "" {
			payload["verifier"] = e.Verifier
		}
		return payload
	case EventError:
		return map[string]any{"message": e.Message}
	case EventDone:
		return map[string]any{"usage": e.Usage}
	default:
		return map[string]any{}
	}
}
