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
	"errors"
	"net/http"

	"github.com/forgeworks/sidecar/pkg/agentreg"
	"github.com/forgeworks/sidecar/pkg/auth"
	"github.com/forgeworks/sidecar/pkg/prefs"
)

type effectiveView struct {
	Model     string `json:"model"`
	HitlLevel string `json:"hitlLevel"`
}

type permissionsView struct {
	AllowUserModelSelect bool `json:"allowUserModelSelect"`
	AllowUserHitlConfig  bool `json:"allowUserHitlConfig"`
}

type preferencesResponse struct {
	Preferences prefs.Preferences `json:"preferences"`
	Effective   effectiveView     `json:"effective"`
	Permissions permissionsView   `json:"permissions"`
}

// handleGetPreferences reports the caller's stored preferences, the
// effective values after resolution, and the permission flags gating
// the user layer. The optional agent query parameter selects which
// agent's overrides apply.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	stored, err := s.prefStore.Get(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	eff, err := s.resolver.Resolve(r.Context(), identity.UserID, r.URL.Query().Get("agent"))
	if errors.Is(err, agentreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, preferencesResponse{
		Preferences: stored,
		Effective:   effectiveView{Model: eff.Model, HitlLevel: eff.HitlLevel},
		Permissions: permissionsView{
			AllowUserModelSelect: eff.AllowUserModelSelect,
			AllowUserHitlConfig:  eff.AllowUserHitlConfig,
		},
	})
}

// handlePutPreferences stores user overrides. Each field is gated by its
// permission flag; a write the flags withhold is a 403, never a silent
// drop.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req prefs.Preferences
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Model == nil && req.HitlLevel == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	eff, err := s.resolver.Resolve(r.Context(), identity.UserID, r.URL.Query().Get("agent"))
	if errors.Is(err, agentreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Model != nil && !eff.AllowUserModelSelect {
		writeError(w, http.StatusForbidden, "model selection is not permitted")
		return
	}
	if req.HitlLevel != nil && !eff.AllowUserHitlConfig {
		writeError(w, http.StatusForbidden, "hitl configuration is not permitted")
		return
	}

	if err := s.prefStore.Upsert(r.Context(), identity.UserID, req); err != nil {
		if errors.Is(err, prefs.ErrInvalidHitlLevel) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.handleGetPreferences(w, r)
}

type toolSummary struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description,omitempty"`
	Schema               map[string]any `json:"schema,omitempty"`
	Category             string         `json:"category,omitempty"`
	RequiresConfirmation bool           `json:"requiresConfirmation,omitempty"`
}

// handleListTools reports the promoted tools the caller's agent exposes.
// A malformed allowlist yields an empty list rather than every tool.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	eff, err := s.resolver.Resolve(r.Context(), identity.UserID, r.URL.Query().Get("agent"))
	if errors.Is(err, agentreg.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tools := make([]toolSummary, 0, len(eff.Tools))
	for _, tool := range eff.Tools {
		tools = append(tools, toolSummary{
			Name:                 tool.Name,
			Description:          tool.Spec.Description,
			Schema:               tool.Spec.InputSchema,
			Category:             tool.Spec.Category,
			RequiresConfirmation: tool.Spec.RequiresConfirmation,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}
