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

// Package server exposes the agent API and the admin surface over HTTP.
// The agent API is authenticated and rate limited per user; the admin
// surface is guarded by the shared admin key.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgeworks/sidecar/pkg/agentreg"
	"github.com/forgeworks/sidecar/pkg/auth"
	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/convstore"
	"github.com/forgeworks/sidecar/pkg/fixtures"
	"github.com/forgeworks/sidecar/pkg/hitl"
	"github.com/forgeworks/sidecar/pkg/llm"
	"github.com/forgeworks/sidecar/pkg/prefs"
	"github.com/forgeworks/sidecar/pkg/prompts"
	"github.com/forgeworks/sidecar/pkg/ratelimit"
	"github.com/forgeworks/sidecar/pkg/react"
	"github.com/forgeworks/sidecar/pkg/toolreg"
	"github.com/forgeworks/sidecar/pkg/verifier"
)

// LLMFactory builds a provider client for one request. It is a field so
// tests can substitute a scripted client.
type LLMFactory func(provider string, cfg config.LLMConfig, apiKey string) (llm.Client, error)

// Deps carries everything the server wires together.
type Deps struct {
	Overlay   *config.Overlay
	Auth      auth.Authenticator
	Admin     *auth.Admin
	Limiter   *ratelimit.Limiter
	Conv      convstore.Store
	Agents    *agentreg.Store
	Prefs     *prefs.Store
	Prompts   *prompts.Store
	Tools     *toolreg.Store
	Verifiers *verifier.Store
	Fixtures  *fixtures.Store
	Resolver  *prefs.Resolver
	Driver    *react.Driver
	Engine    *hitl.Engine

	// Runner executes custom verifiers out of process; nil degrades them.
	Runner verifier.CustomRunner

	// LLM overrides the provider client factory. Defaults to llm.New.
	LLM LLMFactory
}

// Server is the HTTP surface of the sidecar.
type Server struct {
	overlay   *config.Overlay
	authn     auth.Authenticator
	admin     *auth.Admin
	limiter   *ratelimit.Limiter
	conv      convstore.Store
	agents    *agentreg.Store
	prefStore *prefs.Store
	prompts   *prompts.Store
	tools     *toolreg.Store
	verifiers *verifier.Store
	fixtures  *fixtures.Store
	resolver  *prefs.Resolver
	driver    *react.Driver
	engine    *hitl.Engine
	runner    verifier.CustomRunner
	llm       LLMFactory
}

// New builds a server over already-constructed collaborators.
func New(deps Deps) *Server {
	s := &Server{
		overlay:   deps.Overlay,
		authn:     deps.Auth,
		admin:     deps.Admin,
		limiter:   deps.Limiter,
		conv:      deps.Conv,
		agents:    deps.Agents,
		prefStore: deps.Prefs,
		prompts:   deps.Prompts,
		tools:     deps.Tools,
		verifiers: deps.Verifiers,
		fixtures:  deps.Fixtures,
		resolver:  deps.Resolver,
		driver:    deps.Driver,
		engine:    deps.Engine,
		runner:    deps.Runner,
		llm:       deps.LLM,
	}
	if s.llm == nil {
		s.llm = llm.New
	}
	return s
}

// Router assembles the route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.overlay.Snapshot().Metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/agent-api", func(r chi.Router) {
		r.Use(auth.Middleware(s.authn))
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(metricsMiddleware)

		r.Post("/chat", s.handleChat)
		r.Post("/chat-sync", s.handleChatSync)
		r.Post("/resume", s.handleResume)
		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
		r.Get("/tools", s.handleListTools)
	})

	r.Route("/forge-admin", func(r chi.Router) {
		r.Use(auth.AdminMiddleware(s.admin))
		r.Use(metricsMiddleware)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config/{section}", s.handlePutConfigSection)
		r.Get("/sessions/incomplete", s.handleIncompleteSessions)

		r.Get("/agents", s.handleListAgents)
		r.Post("/agents", s.handleCreateAgent)
		r.Put("/agents/{id}", s.handleUpdateAgent)
		r.Delete("/agents/{id}", s.handleDeleteAgent)

		r.Get("/verifiers", s.handleListVerifiers)
		r.Post("/verifiers", s.handleCreateVerifier)
		r.Put("/verifiers/{name}", s.handleUpdateVerifier)
		r.Delete("/verifiers/{name}", s.handleDeleteVerifier)
		r.Get("/verifier-bindings", s.handleListBindings)
		r.Post("/verifier-bindings", s.handleBind)
		r.Delete("/verifier-bindings", s.handleUnbind)

		r.Get("/prompt-versions", s.handleListPromptVersions)
		r.Post("/prompt-versions", s.handleCreatePromptVersion)
		r.Post("/prompt-versions/{id}/activate", s.handleActivatePromptVersion)

		r.Get("/tools", s.handleAdminListTools)
		r.Post("/tools", s.handleRegisterTool)
		r.Post("/tools/{name}/promote", s.handlePromoteTool)
		r.Put("/tools/{name}/state", s.handleSetToolState)
		r.Put("/tools/{name}/baseline", s.handleSetToolBaseline)

		r.Get("/fixtures/{id}", s.handleReadFixture)
		r.Put("/fixtures/{id}", s.handleWriteFixture)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
