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
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/sidecar/pkg/agentreg"
	"github.com/forgeworks/sidecar/pkg/auth"
	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/convstore"
	"github.com/forgeworks/sidecar/pkg/database"
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

const adminKey = "admin-secret"

type testEnv struct {
	handler http.Handler
	mock    *llm.Mock
	agents  *agentreg.Store
	tools   *toolreg.Store
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	cfg := config.Default()
	cfg.AdminKey = adminKey
	if mutate != nil {
		mutate(cfg)
	}
	overlay := config.NewOverlay(cfg)

	conv, err := convstore.NewSQLStore(db, database.DialectSQLite)
	require.NoError(t, err)
	agents, err := agentreg.NewStore(db, database.DialectSQLite)
	require.NoError(t, err)
	prefStore, err := prefs.NewStore(db, database.DialectSQLite)
	require.NoError(t, err)
	promptStore, err := prompts.NewStore(db, database.DialectSQLite)
	require.NoError(t, err)
	toolStore, err := toolreg.NewStore(db, database.DialectSQLite)
	require.NoError(t, err)
	verStore, err := verifier.NewStore(db, database.DialectSQLite)
	require.NoError(t, err)
	fixStore, err := fixtures.NewStore(db, database.DialectSQLite)
	require.NoError(t, err)

	engine := hitl.NewEngine(hitl.NewMemoryStore(), 0)
	dispatcher := toolreg.NewDispatcher()
	dispatcher.RegisterBuiltin("echo", func(_ context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"echo": args["text"]}, nil
	})
	dispatcher.RegisterBuiltin("deploy", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"deployed": true}, nil
	})

	authn, err := auth.New(&cfg.Auth)
	require.NoError(t, err)
	limiter, err := ratelimit.NewFromConfig(cfg.RateLimit)
	require.NoError(t, err)

	mock := llm.NewMock()
	srv := New(Deps{
		Overlay:   overlay,
		Auth:      authn,
		Admin:     auth.NewAdmin(cfg.AdminKey),
		Limiter:   limiter,
		Conv:      conv,
		Agents:    agents,
		Prefs:     prefStore,
		Prompts:   promptStore,
		Tools:     toolStore,
		Verifiers: verStore,
		Fixtures:  fixStore,
		Resolver:  prefs.NewResolver(overlay.Snapshot, agents, prefStore, promptStore, toolStore),
		Driver:    react.NewDriver(conv, engine, dispatcher),
		Engine:    engine,
		LLM: func(string, config.LLMConfig, string) (llm.Client, error) {
			return mock, nil
		},
	})

	return &testEnv{
		handler: srv.Router(),
		mock:    mock,
		agents:  agents,
		tools:   toolStore,
	}
}

// registerPromoted puts a tool spec straight into the promoted state.
func (e *testEnv) registerPromoted(t *testing.T, spec toolreg.Spec) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.tools.Register(ctx, spec))
	require.NoError(t, e.tools.Promote(ctx, spec.Name))
}

func userToken(sub string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":%q}`, sub)))
	return header + "." + payload + ".sig"
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", "", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatSyncRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatSyncTextOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.Queue(llm.Completion{Text: "hello there", Usage: llm.Usage{InputTokens: 3, OutputTokens: 5}})

	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"), map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse[syncResponse](t, rec)
	assert.Equal(t, "hello there", resp.Message)
	assert.NotEmpty(t, resp.ConversationID)
	assert.Empty(t, resp.ToolCalls)
	assert.Empty(t, resp.Flags)
}

func TestChatSyncAggregatesToolCalls(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerPromoted(t, toolreg.Spec{Name: "echo", Category: "read"})
	env.mock.Queue(llm.Completion{ToolCalls: []llm.ToolCall{
		{ID: "c1", Name: "echo", Args: map[string]any{"text": "ping"}},
	}})
	env.mock.Queue(llm.Completion{Text: "echoed"})

	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"), map[string]string{"message": "run echo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse[syncResponse](t, rec)
	assert.Equal(t, "echoed", resp.Message)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "c1", resp.ToolCalls[0].ID)
	assert.Equal(t, "echo", resp.ToolCalls[0].Tool)
	assert.Equal(t, "ping", resp.ToolCalls[0].Result["echo"])
	// The tool name travels under the "name" key on the wire.
	assert.Contains(t, rec.Body.String(), `"name":"echo"`)
}

func TestChatSyncModelErrorBecomesFlag(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.QueueError(fmt.Errorf("provider unavailable"))

	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"), map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[syncResponse](t, rec)
	require.Len(t, resp.Flags, 1)
	assert.Contains(t, resp.Flags[0], "provider unavailable")
}

func TestChatSyncHitlConflictAndResume(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.DefaultHitlLevel = config.HitlCautious
	})
	env.registerPromoted(t, toolreg.Spec{Name: "deploy", Category: "write", RequiresConfirmation: true})
	env.mock.Queue(llm.Completion{ToolCalls: []llm.ToolCall{
		{ID: "c1", Name: "deploy", Args: map[string]any{}},
	}})

	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"), map[string]string{"message": "ship it"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	conflict := decodeResponse[map[string]string](t, rec)
	require.NotEmpty(t, conflict["resumeToken"])
	assert.Equal(t, "deploy", conflict["tool"])

	env.mock.Queue(llm.Completion{Text: "shipped"})
	resumed := env.request(t, http.MethodPost, "/agent-api/resume", userToken("u1"),
		map[string]string{"resumeToken": conflict["resumeToken"]})
	require.Equal(t, http.StatusOK, resumed.Code)
	assert.Equal(t, "text/event-stream", resumed.Header().Get("Content-Type"))
	assert.Contains(t, resumed.Body.String(), "event: tool_result")
	assert.Contains(t, resumed.Body.String(), "event: done")

	// Tokens are single use.
	again := env.request(t, http.MethodPost, "/agent-api/resume", userToken("u1"),
		map[string]string{"resumeToken": conflict["resumeToken"]})
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestResumeUnknownTokenIs404(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodPost, "/agent-api/resume", userToken("u1"),
		map[string]string{"resumeToken": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatStreamsSSE(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.Queue(llm.Completion{Text: "streamed"})

	rec := env.request(t, http.MethodPost, "/agent-api/chat", userToken("u1"), map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Contains(t, rec.Body.String(), "event: text")
	assert.Contains(t, rec.Body.String(), "event: done")
}

func TestChatUnknownAgentIs404(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"),
		map[string]string{"message": "hi", "agent": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.MaxRequests = 2
		cfg.RateLimit.WindowMs = 60_000
	})

	for i := 0; i < 2; i++ {
		rec := env.request(t, http.MethodGet, "/agent-api/tools", userToken("u1"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.request(t, http.MethodGet, "/agent-api/tools", userToken("u1"), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different user has an independent budget.
	other := env.request(t, http.MethodGet, "/agent-api/tools", userToken("u2"), nil)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestToolsMalformedAllowlistFailsClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerPromoted(t, toolreg.Spec{Name: "echo", Category: "read"})
	require.NoError(t, env.agents.Create(context.Background(), agentreg.Agent{
		ID: "broken", DisplayName: "Broken", ToolAllowlist: `["unterminated`, Enabled: true,
	}))

	rec := env.request(t, http.MethodGet, "/agent-api/tools?agent=broken", userToken("u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[map[string][]toolSummary](t, rec)
	assert.Empty(t, resp["tools"])
}

func TestToolsUnknownAgentIs404(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodGet, "/agent-api/tools?agent=ghost", userToken("u1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreferencesForbiddenWithoutPermission(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodPut, "/agent-api/preferences", userToken("u1"),
		map[string]string{"model": "gpt-4o"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPreferencesRoundTrip(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.AllowUserModelSelect = true
		cfg.AllowUserHitlConfig = true
	})

	bad := env.request(t, http.MethodPut, "/agent-api/preferences", userToken("u1"),
		map[string]string{"hitl_level": "reckless"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	ok := env.request(t, http.MethodPut, "/agent-api/preferences", userToken("u1"),
		map[string]string{"model": "gpt-4o", "hitl_level": "paranoid"})
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	got := env.request(t, http.MethodGet, "/agent-api/preferences", userToken("u1"), nil)
	require.Equal(t, http.StatusOK, got.Code)
	resp := decodeResponse[preferencesResponse](t, got)
	assert.Equal(t, "gpt-4o", resp.Effective.Model)
	assert.Equal(t, "paranoid", resp.Effective.HitlLevel)
	require.NotNil(t, resp.Preferences.Model)
	assert.Equal(t, "gpt-4o", *resp.Preferences.Model)
	assert.True(t, resp.Permissions.AllowUserModelSelect)
}

func TestAdminWrongKeyIs403(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.request(t, http.MethodGet, "/forge-admin/config", "wrong", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminDisabledIs503(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.AdminKey = ""
	})
	rec := env.request(t, http.MethodGet, "/forge-admin/config", "anything", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminConfigRedactsSecrets(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.Mode = config.AuthModeVerify
		cfg.Auth.SigningKey = "hush"
	})
	rec := env.request(t, http.MethodGet, "/forge-admin/config", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), adminKey)
	assert.NotContains(t, rec.Body.String(), "hush")
}

func TestAdminConfigOverlay(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.request(t, http.MethodPut, "/forge-admin/config/model", adminKey,
		map[string]string{"defaultModel": "gpt-4o"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := env.request(t, http.MethodGet, "/forge-admin/config", adminKey, nil)
	assert.Contains(t, got.Body.String(), "gpt-4o")

	unknown := env.request(t, http.MethodPut, "/forge-admin/config/nope", adminKey,
		map[string]string{"x": "y"})
	assert.Equal(t, http.StatusBadRequest, unknown.Code)
}

func TestAdminAgentCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	bad := env.request(t, http.MethodPost, "/forge-admin/agents", adminKey,
		map[string]any{"id": "Bad Slug!", "displayName": "X"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	created := env.request(t, http.MethodPost, "/forge-admin/agents", adminKey,
		map[string]any{"id": "support", "displayName": "Support", "defaultModel": "gpt-4o"})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	agent := decodeResponse[agentreg.Agent](t, created)
	assert.Equal(t, "support", agent.ID)
	assert.True(t, agent.Enabled)
	assert.Equal(t, "*", agent.ToolAllowlist)

	listed := env.request(t, http.MethodGet, "/forge-admin/agents", adminKey, nil)
	assert.Contains(t, listed.Body.String(), `"support"`)

	updated := env.request(t, http.MethodPut, "/forge-admin/agents/support", adminKey,
		map[string]any{"displayName": "Support Desk"})
	assert.Equal(t, http.StatusOK, updated.Code)

	missing := env.request(t, http.MethodPut, "/forge-admin/agents/ghost", adminKey,
		map[string]any{"displayName": "Ghost"})
	assert.Equal(t, http.StatusNotFound, missing.Code)

	deleted := env.request(t, http.MethodDelete, "/forge-admin/agents/support", adminKey, nil)
	assert.Equal(t, http.StatusNoContent, deleted.Code)

	gone := env.request(t, http.MethodDelete, "/forge-admin/agents/support", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestAdminVerifierLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	created := env.request(t, http.MethodPost, "/forge-admin/verifiers", adminKey, verifier.Verifier{
		Name: "no-secrets", DisplayName: "No Secrets", Type: verifier.TypePattern,
		Category: "privacy", Order: "C-0100",
		Spec: map[string]any{"reject": "BEGIN PRIVATE KEY"},
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	bound := env.request(t, http.MethodPost, "/forge-admin/verifier-bindings", adminKey,
		verifier.Binding{VerifierName: "no-secrets", ToolName: "*"})
	assert.Equal(t, http.StatusCreated, bound.Code)

	unknownBind := env.request(t, http.MethodPost, "/forge-admin/verifier-bindings", adminKey,
		verifier.Binding{VerifierName: "ghost", ToolName: "*"})
	assert.Equal(t, http.StatusNotFound, unknownBind.Code)

	bindings := env.request(t, http.MethodGet, "/forge-admin/verifier-bindings", adminKey, nil)
	assert.Contains(t, bindings.Body.String(), "no-secrets")

	unbound := env.request(t, http.MethodDelete, "/forge-admin/verifier-bindings", adminKey,
		verifier.Binding{VerifierName: "no-secrets", ToolName: "*"})
	assert.Equal(t, http.StatusNoContent, unbound.Code)

	deleted := env.request(t, http.MethodDelete, "/forge-admin/verifiers/no-secrets", adminKey, nil)
	assert.Equal(t, http.StatusNoContent, deleted.Code)
}

func TestAdminPromptVersions(t *testing.T) {
	env := newTestEnv(t, nil)

	created := env.request(t, http.MethodPost, "/forge-admin/prompt-versions", adminKey,
		map[string]string{"version": "v1", "content": "Be terse."})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	resp := decodeResponse[map[string]int64](t, created)

	activated := env.request(t, http.MethodPost,
		fmt.Sprintf("/forge-admin/prompt-versions/%d/activate", resp["id"]), adminKey, nil)
	assert.Equal(t, http.StatusOK, activated.Code)

	missing := env.request(t, http.MethodPost, "/forge-admin/prompt-versions/9999/activate", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAdminToolLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	created := env.request(t, http.MethodPost, "/forge-admin/tools", adminKey,
		toolreg.Spec{Name: "search", Description: "Searches", Category: "read"})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	promoted := env.request(t, http.MethodPost, "/forge-admin/tools/search/promote", adminKey, nil)
	assert.Equal(t, http.StatusOK, promoted.Code)

	flagged := env.request(t, http.MethodPut, "/forge-admin/tools/search/state", adminKey,
		map[string]string{"state": "flagged"})
	assert.Equal(t, http.StatusOK, flagged.Code)

	invalid := env.request(t, http.MethodPut, "/forge-admin/tools/search/state", adminKey,
		map[string]string{"state": "bogus"})
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	baseline := env.request(t, http.MethodPut, "/forge-admin/tools/search/baseline", adminKey,
		map[string]float64{"passRate": 0.9})
	assert.Equal(t, http.StatusOK, baseline.Code)

	missing := env.request(t, http.MethodPost, "/forge-admin/tools/ghost/promote", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAdminFixturesRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	written := env.request(t, http.MethodPut, "/forge-admin/fixtures/fx-1", adminKey,
		map[string]any{"hash": "h1", "output": map[string]any{"score": 0.5}})
	require.Equal(t, http.StatusNoContent, written.Code, written.Body.String())

	read := env.request(t, http.MethodGet, "/forge-admin/fixtures/fx-1?hash=h1", adminKey, nil)
	require.Equal(t, http.StatusOK, read.Code)
	result := decodeResponse[fixtures.ReadResult](t, read)
	assert.True(t, result.Hit)

	stale := env.request(t, http.MethodGet, "/forge-admin/fixtures/fx-1?hash=h2", adminKey, nil)
	staleResult := decodeResponse[fixtures.ReadResult](t, stale)
	assert.False(t, staleResult.Hit)
	assert.Equal(t, "h1", staleResult.StoredHash)
}

func TestAdminIncompleteSessions(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.DefaultHitlLevel = config.HitlParanoid
	})
	env.registerPromoted(t, toolreg.Spec{Name: "echo", Category: "read"})
	env.mock.Queue(llm.Completion{ToolCalls: []llm.ToolCall{
		{ID: "c1", Name: "echo", Args: map[string]any{"text": "x"}},
	}})

	paused := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"), map[string]string{"message": "go"})
	require.Equal(t, http.StatusConflict, paused.Code)

	rec := env.request(t, http.MethodGet, "/forge-admin/sessions/incomplete", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse[map[string][]convstore.IncompleteSession](t, rec)
	require.Len(t, resp["sessions"], 1)
}

func TestChatSyncVerifierWarning(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerPromoted(t, toolreg.Spec{Name: "echo", Category: "read"})

	created := env.request(t, http.MethodPost, "/forge-admin/verifiers", adminKey, verifier.Verifier{
		Name: "flag-ping", DisplayName: "Flag Ping", Type: verifier.TypePattern,
		Category: "accuracy", Order: "A-0100",
		Spec: map[string]any{"reject": "ping", "outcome": "warn"},
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	bound := env.request(t, http.MethodPost, "/forge-admin/verifier-bindings", adminKey,
		verifier.Binding{VerifierName: "flag-ping", ToolName: "echo"})
	require.Equal(t, http.StatusCreated, bound.Code)

	env.mock.Queue(llm.Completion{ToolCalls: []llm.ToolCall{
		{ID: "c1", Name: "echo", Args: map[string]any{"text": "ping"}},
	}})
	env.mock.Queue(llm.Completion{Text: "done"})

	rec := env.request(t, http.MethodPost, "/agent-api/chat-sync", userToken("u1"), map[string]string{"message": "go"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse[syncResponse](t, rec)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "flag-ping", resp.Warnings[0].Verifier)
}

func TestTokenAcceptedFromQueryParam(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.Queue(llm.Completion{Text: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/agent-api/chat-sync?token="+userToken("u1"),
		strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
