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
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/forgeworks/sidecar/pkg/agentreg"
	"github.com/forgeworks/sidecar/pkg/prompts"
	"github.com/forgeworks/sidecar/pkg/toolreg"
	"github.com/forgeworks/sidecar/pkg/verifier"
)

var agentIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// handleGetConfig reports the effective configuration with secrets
// removed. The yaml round trip reuses the config struct's field names
// instead of duplicating them in a response type.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := *s.overlay.Snapshot()
	cfg.AdminKey = ""
	cfg.Auth.SigningKey = ""

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var view map[string]any
	if err := yaml.Unmarshal(data, &view); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handlePutConfigSection overlays one config section for the running
// process. The change is not written back to the config file.
func (s *Server) handlePutConfigSection(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := s.overlay.Apply(chi.URLParam(r, "section"), body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleGetConfig(w, r)
}

func (s *Server) handleIncompleteSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.conv.IncompleteSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// decodeAgent parses an agent body with enabled defaulting to true, so
// an admin does not have to spell out the common case.
func decodeAgent(r *http.Request) (agentreg.Agent, error) {
	agent := agentreg.Agent{Enabled: true}
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		return agentreg.Agent{}, err
	}
	return agent, nil
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := decodeAgent(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !agentIDPattern.MatchString(agent.ID) {
		writeError(w, http.StatusBadRequest, "agent id must match ^[a-z0-9_-]+$")
		return
	}
	if agent.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}
	if err := s.agents.Create(r.Context(), agent); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.agents.Get(r.Context(), agent.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := decodeAgent(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	agent.ID = chi.URLParam(r, "id")
	if err := s.agents.Update(r.Context(), agent); err != nil {
		if errors.Is(err, agentreg.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": agent.ID})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	err := s.agents.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, agentreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVerifiers(w http.ResponseWriter, r *http.Request) {
	verifiers, err := s.verifiers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verifiers": verifiers})
}

func (s *Server) handleCreateVerifier(w http.ResponseWriter, r *http.Request) {
	var v verifier.Verifier
	if err := decodeBody(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if v.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.verifiers.Create(r.Context(), v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": v.Name})
}

func (s *Server) handleUpdateVerifier(w http.ResponseWriter, r *http.Request) {
	var v verifier.Verifier
	if err := decodeBody(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	v.Name = chi.URLParam(r, "name")
	if err := s.verifiers.Update(r.Context(), v); err != nil {
		if errors.Is(err, verifier.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": v.Name})
}

func (s *Server) handleDeleteVerifier(w http.ResponseWriter, r *http.Request) {
	err := s.verifiers.Delete(r.Context(), chi.URLParam(r, "name"))
	if errors.Is(err, verifier.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.verifiers.Bindings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bindings": bindings})
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var b verifier.Binding
	if err := decodeBody(r, &b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if b.VerifierName == "" || b.ToolName == "" {
		writeError(w, http.StatusBadRequest, "verifierName and toolName are required")
		return
	}
	if err := s.verifiers.Bind(r.Context(), b.VerifierName, b.ToolName); err != nil {
		if errors.Is(err, verifier.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	var b verifier.Binding
	if err := decodeBody(r, &b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	err := s.verifiers.Unbind(r.Context(), b.VerifierName, b.ToolName)
	if errors.Is(err, verifier.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPromptVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.prompts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleCreatePromptVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version string `json:"version"`
		Content string `json:"content"`
		Notes   string `json:"notes,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Version == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "version and content are required")
		return
	}
	id, err := s.prompts.Create(r.Context(), req.Version, req.Content, req.Notes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleActivatePromptVersion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt version id")
		return
	}
	if err := s.prompts.Activate(r.Context(), id); err != nil {
		if errors.Is(err, prompts.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": true})
}

func (s *Server) handleAdminListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.tools.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleRegisterTool(w http.ResponseWriter, r *http.Request) {
	var spec toolreg.Spec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.tools.Register(r.Context(), spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": spec.Name, "state": string(toolreg.StateCandidate)})
}

func (s *Server) handlePromoteTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.tools.Promote(r.Context(), name)
	if errors.Is(err, toolreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "state": string(toolreg.StatePromoted)})
}

func (s *Server) handleSetToolState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	err := s.tools.SetState(r.Context(), name, toolreg.State(req.State))
	if errors.Is(err, toolreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "state": req.State})
}

func (s *Server) handleSetToolBaseline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PassRate float64 `json:"passRate"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PassRate < 0 || req.PassRate > 1 {
		writeError(w, http.StatusBadRequest, "passRate must be between 0 and 1")
		return
	}
	name := chi.URLParam(r, "name")
	err := s.tools.SetBaselinePassRate(r.Context(), name, req.PassRate)
	if errors.Is(err, toolreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "baselinePassRate": req.PassRate})
}

func (s *Server) handleReadFixture(w http.ResponseWriter, r *http.Request) {
	result, err := s.fixtures.Read(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("hash"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWriteFixture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hash   string          `json:"hash"`
		Output json.RawMessage `json:"output"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.fixtures.Write(r.Context(), chi.URLParam(r, "id"), req.Hash, req.Output); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
