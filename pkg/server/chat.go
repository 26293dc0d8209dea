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

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/forgeworks/sidecar/pkg/agentreg"
	"github.com/forgeworks/sidecar/pkg/auth"
	"github.com/forgeworks/sidecar/pkg/hitl"
	"github.com/forgeworks/sidecar/pkg/react"
	"github.com/forgeworks/sidecar/pkg/verifier"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	Agent     string `json:"agent,omitempty"`
}

// prepareRun resolves one chat request into a driver input. The returned
// status is meaningful only when err is non-nil.
func (s *Server) prepareRun(r *http.Request) (react.RunInput, int, error) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		return react.RunInput{}, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Message == "" {
		return react.RunInput{}, http.StatusBadRequest, errors.New("message is required")
	}

	ctx := r.Context()
	identity, _ := auth.IdentityFromContext(ctx)

	sessionID := req.SessionID
	if sessionID == "" {
		id, err := s.conv.CreateSession(ctx)
		if err != nil {
			return react.RunInput{}, http.StatusInternalServerError, fmt.Errorf("failed to create session: %w", err)
		}
		sessionID = id
	}

	eff, err := s.resolver.Resolve(ctx, identity.UserID, req.Agent)
	if errors.Is(err, agentreg.ErrNotFound) {
		return react.RunInput{}, http.StatusNotFound, err
	}
	if err != nil {
		return react.RunInput{}, http.StatusInternalServerError, err
	}

	cfg := s.overlay.Snapshot()
	client, err := s.llm(eff.Provider, cfg.LLM, eff.APIKey)
	if err != nil {
		return react.RunInput{}, http.StatusInternalServerError, err
	}

	pipeline, err := s.buildPipeline(ctx)
	if err != nil {
		return react.RunInput{}, http.StatusInternalServerError, err
	}

	return react.RunInput{
		SessionID: sessionID,
		UserID:    identity.UserID,
		Message:   req.Message,
		Window:    cfg.Conversation.Window,
		Effective: eff,
		Client:    client,
		Pipeline:  pipeline,
	}, 0, nil
}

// buildPipeline snapshots the verifier registry for one run. Registry
// edits mid-run do not affect calls already in flight.
func (s *Server) buildPipeline(ctx context.Context) (*verifier.Pipeline, error) {
	if s.verifiers == nil {
		return nil, nil
	}
	registered, err := s.verifiers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load verifiers: %w", err)
	}
	bindings, err := s.verifiers.Bindings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load verifier bindings: %w", err)
	}
	return verifier.NewPipeline(registered, bindings, s.runner), nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	in, status, err := s.prepareRun(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	s.streamRun(r.Context(), w, in)
}

func (s *Server) streamRun(ctx context.Context, w http.ResponseWriter, in react.RunInput) {
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for ev := range s.driver.Run(ctx, in) {
		if err := sse.Send(ev.Type, ev.Payload()); err != nil {
			slog.Debug("client dropped stream", "session", in.SessionID, "error", err)
			// Drain so the driver goroutine can finish persisting.
			continue
		}
	}
}

type syncToolCall struct {
	ID     string         `json:"id"`
	Tool   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

type syncWarning struct {
	Tool     string `json:"tool"`
	Message  string `json:"message"`
	Verifier string `json:"verifier,omitempty"`
}

type syncResponse struct {
	ConversationID string         `json:"conversationId"`
	Message        string         `json:"message"`
	ToolCalls      []syncToolCall `json:"toolCalls"`
	Warnings       []syncWarning  `json:"warnings"`
	Flags          []string       `json:"flags"`
}

// handleChatSync runs the loop to completion and aggregates the stream
// into one JSON body. A pause surfaces as 409 with the resume token;
// model errors surface as flags on a 200, since partial work may have
// been persisted already.
func (s *Server) handleChatSync(w http.ResponseWriter, r *http.Request) {
	in, status, err := s.prepareRun(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	resp := syncResponse{
		ConversationID: in.SessionID,
		ToolCalls:      []syncToolCall{},
		Warnings:       []syncWarning{},
		Flags:          []string{},
	}
	indexByID := map[string]int{}

	for ev := range s.driver.Run(r.Context(), in) {
		switch ev.Type {
		case react.EventText:
			resp.Message += ev.Text
		case react.EventToolCall:
			indexByID[ev.ID] = len(resp.ToolCalls)
			resp.ToolCalls = append(resp.ToolCalls, syncToolCall{ID: ev.ID, Tool: ev.Tool, Args: ev.Args})
		case react.EventToolResult:
			if i, ok := indexByID[ev.ID]; ok {
				resp.ToolCalls[i].Result = ev.Result
			}
		case react.EventToolWarning:
			resp.Warnings = append(resp.Warnings, syncWarning{Tool: ev.Tool, Message: ev.Message, Verifier: ev.Verifier})
		case react.EventError:
			resp.Flags = append(resp.Flags, ev.Message)
		case react.EventHitl:
			writeJSON(w, http.StatusConflict, map[string]string{
				"resumeToken": ev.ResumeToken,
				"tool":        ev.Tool,
				"message":     ev.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type resumeRequest struct {
	ResumeToken string `json:"resumeToken"`
}

// handleResume consumes a pause token and continues the loop as an SSE
// stream. Tokens are single use; an unknown or expired token is a 404.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ResumeToken == "" {
		writeError(w, http.StatusBadRequest, "resumeToken is required")
		return
	}

	ctx := r.Context()
	data, err := s.engine.Resume(ctx, req.ResumeToken)
	if errors.Is(err, hitl.ErrPauseNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state, err := react.DecodePauseState(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Re-resolve with the paused run's identity and agent so registry or
	// preference changes made during the pause take effect.
	eff, err := s.resolver.Resolve(ctx, state.UserID, state.AgentID)
	if errors.Is(err, agentreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cfg := s.overlay.Snapshot()
	client, err := s.llm(eff.Provider, cfg.LLM, eff.APIKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pipeline, err := s.buildPipeline(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.streamRun(ctx, w, react.RunInput{
		SessionID: state.SessionID,
		UserID:    state.UserID,
		Window:    cfg.Conversation.Window,
		Effective: eff,
		Client:    client,
		Pipeline:  pipeline,
		Resume:    state,
	})
}
