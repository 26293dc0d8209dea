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

package react

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/convstore"
	"github.com/forgeworks/sidecar/pkg/hitl"
	"github.com/forgeworks/sidecar/pkg/llm"
	"github.com/forgeworks/sidecar/pkg/prefs"
	"github.com/forgeworks/sidecar/pkg/toolreg"
	"github.com/forgeworks/sidecar/pkg/verifier"
)

// Transcript stages labelling ReAct phases.
const (
	StageInput    = "input"
	StageOutput   = "output"
	StageTool     = "tool"
	StageComplete = "complete"
)

// Driver owns the per-process collaborators of the loop. Per-request
// state arrives through RunInput.
type Driver struct {
	store      convstore.Store
	hitl       *hitl.Engine
	dispatcher *toolreg.Dispatcher
}

// NewDriver builds a driver over the shared store, pause engine and
// tool dispatcher.
func NewDriver(store convstore.Store, engine *hitl.Engine, dispatcher *toolreg.Dispatcher) *Driver {
	return &Driver{store: store, hitl: engine, dispatcher: dispatcher}
}

// RunInput is one request's resolved inputs. Resume, when set, continues
// a paused loop instead of starting from a user message.
type RunInput struct {
	SessionID string
	UserID    string
	Message   string
	Window    int

	Effective prefs.Effective
	Client    llm.Client
	Pipeline  *verifier.Pipeline

	Resume *PauseState
}

// loopState is the mutable working set of one run.
type loopState struct {
	messages []llm.Message
	pending  []PendingCall
	turn     int
	usage    llm.Usage

	// approvedFirst skips the pause policy for the first pending call
	// after a resume; the human already approved it.
	approvedFirst bool
}

// Run starts the loop and returns its event stream. The channel closes
// when the loop terminates for any reason; cancellation of ctx stops
// emission without further events.
func (d *Driver) Run(ctx context.Context, in RunInput) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		d.run(ctx, in, events)
	}()
	return events
}

func (d *Driver) run(ctx context.Context, in RunInput, events chan<- Event) {
	emit := func(ev Event) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(st *loopState, message string) {
		emit(Event{Type: EventError, Message: message})
		emit(Event{Type: EventDone, Usage: st.usage})
	}

	toolsByName := make(map[string]toolreg.Tool, len(in.Effective.Tools))
	defs := make([]llm.ToolDef, 0, len(in.Effective.Tools))
	for _, tool := range in.Effective.Tools {
		toolsByName[tool.Name] = tool
		defs = append(defs, llm.ToolDef{
			Name:        tool.Name,
			Description: tool.Spec.Description,
			InputSchema: tool.Spec.InputSchema,
		})
	}

	var st loopState
	if in.Resume != nil {
		st = loopState{
			messages:      in.Resume.Messages,
			pending:       in.Resume.Pending,
			turn:          in.Resume.Turn,
			usage:         in.Resume.Usage,
			approvedFirst: true,
		}
	} else {
		history, err := d.store.GetHistory(ctx, in.SessionID)
		if err != nil {
			fail(&st, fmt.Sprintf("failed to load conversation: %v", err))
			return
		}
		st.messages = historyMessages(history, in.Window)
		st.messages = append(st.messages, llm.Message{Role: llm.RoleUser, Content: in.Message})
		if err := d.persist(ctx, in, StageInput, convstore.RoleUser, in.Message); err != nil {
			fail(&st, fmt.Sprintf("failed to persist message: %v", err))
			return
		}
	}

	maxTurns := in.Effective.MaxTurns
	if maxTurns <= 0 {
		maxTurns = prefs.DefaultMaxTurns
	}

	for st.turn < maxTurns {
		if ctx.Err() != nil {
			return
		}
		if !d.processPending(ctx, in, &st, emit, toolsByName) {
			return
		}

		completion, err := in.Client.Complete(ctx, llm.Request{
			Model:     in.Effective.Model,
			System:    in.Effective.SystemPrompt,
			Messages:  st.messages,
			Tools:     defs,
			MaxTokens: in.Effective.MaxTokens,
		}, func(chunk string) {
			emit(Event{Type: EventText, Text: chunk})
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(&st, err.Error())
			return
		}
		st.turn++
		st.usage.InputTokens += completion.Usage.InputTokens
		st.usage.OutputTokens += completion.Usage.OutputTokens

		st.messages = append(st.messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})
		if completion.Text != "" {
			if err := d.persist(ctx, in, StageOutput, convstore.RoleAssistant, completion.Text); err != nil {
				fail(&st, fmt.Sprintf("failed to persist message: %v", err))
				return
			}
		}

		if len(completion.ToolCalls) == 0 {
			break
		}
		st.pending = make([]PendingCall, 0, len(completion.ToolCalls))
		for _, call := range completion.ToolCalls {
			st.pending = append(st.pending, PendingCall{Call: call})
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := d.persist(ctx, in, StageComplete, convstore.RoleSystem, convstore.CompleteSentinel); err != nil {
		fail(&st, fmt.Sprintf("failed to persist message: %v", err))
		return
	}
	emit(Event{Type: EventDone, Usage: st.usage})
}

// processPending executes queued tool calls in order. It returns false
// when the run must end: pause, cancellation, or a fatal store error.
func (d *Driver) processPending(ctx context.Context, in RunInput, st *loopState, emit func(Event) bool, toolsByName map[string]toolreg.Tool) bool {
	for len(st.pending) > 0 {
		pc := st.pending[0]
		call := pc.Call

		if !emit(Event{Type: EventToolCall, ID: call.ID, Tool: call.Name, Args: call.Args}) {
			return false
		}

		tool, known := toolsByName[call.Name]

		// The human approval from a resume covers exactly the call the
		// pause captured. Consume the flag here so it cannot leak to a
		// later call when the first one was already dispatched.
		approved := st.approvedFirst
		st.approvedFirst = false

		if !pc.Dispatched {
			if known && !approved {
				method := ""
				if tool.Spec.MCPRouting != nil {
					method = tool.Spec.MCPRouting.Method
				}
				if hitl.ShouldPause(in.Effective.HitlLevel, tool.Spec.RequiresConfirmation, method) {
					return d.pause(ctx, in, st, emit, Event{
						Type:    EventHitl,
						Tool:    call.Name,
						Message: fmt.Sprintf("Tool %q requires approval before it runs", call.Name),
					})
				}
			}

			if !known {
				pc.Result = map[string]any{"error": fmt.Sprintf("tool %q is not available", call.Name)}
			} else {
				result, err := d.dispatcher.Dispatch(ctx, tool, call.Args)
				if ctx.Err() != nil {
					return false
				}
				if err != nil {
					// The model sees the failure and may retry or give up.
					pc.Result = map[string]any{"error": err.Error()}
				} else {
					pc.Result = result
				}
			}
			pc.Dispatched = true
		}

		_, isError := pc.Result["error"]
		if known && !isError && !pc.Verified && in.Pipeline != nil {
			role := verifier.RoleForCategory(tool.Spec.Category)
			evaluations := in.Pipeline.Run(ctx, call.Name, role, call.Args, pc.Result)
			if ctx.Err() != nil {
				return false
			}
			for _, eval := range evaluations {
				switch eval.Outcome {
				case verifier.OutcomeWarn:
					if !emit(Event{Type: EventToolWarning, Tool: call.Name, Message: eval.Message, Verifier: eval.Verifier}) {
						return false
					}
				case verifier.OutcomeBlock:
					// Keep the result and mark it adjudicated so resume
					// neither re-executes the tool nor re-blocks on the
					// same deterministic verifier.
					pc.Verified = true
					st.pending[0] = pc
					return d.pause(ctx, in, st, emit, Event{
						Type:     EventHitl,
						Tool:     call.Name,
						Message:  eval.Message,
						Verifier: eval.Verifier,
					})
				}
			}
			pc.Verified = true
		}

		if !emit(Event{Type: EventToolResult, ID: call.ID, Result: pc.Result}) {
			return false
		}

		content, err := json.Marshal(pc.Result)
		if err != nil {
			content = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
		}
		if err := d.persist(ctx, in, StageTool, convstore.RoleTool, string(content)); err != nil {
			emit(Event{Type: EventError, Message: fmt.Sprintf("failed to persist message: %v", err)})
			emit(Event{Type: EventDone, Usage: st.usage})
			return false
		}

		st.messages = append(st.messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    string(content),
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    isError,
		})
		st.pending = st.pending[1:]
	}
	return true
}

// pause persists the loop state and emits the hitl event. It always
// returns false: a pause terminates the stream.
func (d *Driver) pause(ctx context.Context, in RunInput, st *loopState, emit func(Event) bool, ev Event) bool {
	state := &PauseState{
		SessionID: in.SessionID,
		UserID:    in.UserID,
		AgentID:   in.Effective.Agent.ID,
		Messages:  st.messages,
		Pending:   st.pending,
		Turn:      st.turn,
		Usage:     st.usage,
	}
	data, err := state.Encode()
	if err == nil {
		ev.ResumeToken, err = d.hitl.Pause(ctx, data)
	}
	if err != nil {
		emit(Event{Type: EventError, Message: fmt.Sprintf("failed to pause: %v", err)})
		emit(Event{Type: EventDone, Usage: st.usage})
		return false
	}
	emit(ev)
	return false
}

func (d *Driver) persist(ctx context.Context, in RunInput, stage, role, content string) error {
	return d.store.PersistMessage(ctx, convstore.Turn{
		SessionID: in.SessionID,
		Stage:     stage,
		Role:      role,
		Content:   content,
		AgentID:   in.Effective.Agent.ID,
		CreatedAt: time.Now().UTC(),
	})
}

// historyMessages converts the windowed tail of the transcript into LLM
// context. Only user and assistant turns feed the model; tool and system
// turns are bookkeeping.
func historyMessages(history []convstore.Turn, window int) []llm.Message {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	messages := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case convstore.RoleUser:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Content})
		case convstore.RoleAssistant:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: turn.Content})
		}
	}
	return messages
}
