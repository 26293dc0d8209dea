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

package agentreg

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	store, err := NewStore(db, database.DialectSQLite)
	require.NoError(t, err)
	return store
}

func TestSeedCreatesAgents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seeds := []config.AgentSeed{
		{
			ID:                   "support",
			DisplayName:          "Support Agent",
			SystemPrompt:         "You answer support questions.",
			DefaultModel:         "claude-sonnet-4-20250514",
			AllowUserModelSelect: config.BoolPtr(true),
			IsDefault:            true,
		},
		{
			ID:            "sales",
			DisplayName:   "Sales Agent",
			ToolAllowlist: &config.ToolAllowlist{Names: []string{"get_quote"}},
		},
	}
	require.NoError(t, store.Seed(ctx, seeds))

	support, err := store.Get(ctx, "support")
	require.NoError(t, err)
	assert.True(t, support.IsDefault)
	assert.True(t, support.SeededFromConfig)
	assert.True(t, support.AllowUserModelSelect)
	assert.Equal(t, "*", support.ToolAllowlist)

	sales, err := store.Get(ctx, "sales")
	require.NoError(t, err)
	assert.False(t, sales.IsDefault)
	assert.Equal(t, `["get_quote"]`, sales.ToolAllowlist)

	def, err := store.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "support", def.ID)
}

func TestSeedNeverOverwritesAdminEditedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx, []config.AgentSeed{
		{ID: "support", DisplayName: "Support Agent", IsDefault: true},
	}))

	// Admin renames the agent; the row is no longer config-owned.
	agent, err := store.Get(ctx, "support")
	require.NoError(t, err)
	agent.DisplayName = "Tier 1 Support"
	require.NoError(t, store.Update(ctx, agent))

	// A later restart re-seeds with the original name.
	require.NoError(t, store.Seed(ctx, []config.AgentSeed{
		{ID: "support", DisplayName: "Support Agent", IsDefault: true},
	}))

	agent, err = store.Get(ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, "Tier 1 Support", agent.DisplayName)
	assert.False(t, agent.SeededFromConfig)
}

func TestSeedRefreshesConfigOwnedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx, []config.AgentSeed{
		{ID: "support", DisplayName: "Support Agent", IsDefault: true},
	}))
	require.NoError(t, store.Seed(ctx, []config.AgentSeed{
		{ID: "support", DisplayName: "Customer Support", IsDefault: true},
	}))

	agent, err := store.Get(ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, "Customer Support", agent.DisplayName)
	assert.True(t, agent.SeededFromConfig)
}

func TestDefaultIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Agent{ID: "a", DisplayName: "A", Enabled: true, IsDefault: true}))
	require.NoError(t, store.Create(ctx, Agent{ID: "b", DisplayName: "B", Enabled: true, IsDefault: true}))

	agents, err := store.List(ctx)
	require.NoError(t, err)

	defaults := 0
	for _, agent := range agents {
		if agent.IsDefault {
			defaults++
			assert.Equal(t, "b", agent.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestGetExcludesDisabledAgents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Agent{ID: "off", DisplayName: "Off", Enabled: false}))
	_, err := store.Get(ctx, "off")
	assert.ErrorIs(t, err, ErrNotFound)

	// Still visible to the admin listing.
	agents, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestDeleteAgent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Agent{ID: "tmp", DisplayName: "Temp", Enabled: true}))
	require.NoError(t, store.Delete(ctx, "tmp"))
	assert.ErrorIs(t, store.Delete(ctx, "tmp"), ErrNotFound)
}

func TestParseAllowlist(t *testing.T) {
	all := ParseAllowlist("*")
	assert.True(t, all.Allows("anything"))

	named := ParseAllowlist(`["get_data","search"]`)
	assert.True(t, named.Allows("get_data"))
	assert.False(t, named.Allows("delete_data"))

	// Malformed JSON fails closed: nothing is allowed.
	broken := ParseAllowlist(`{not-json`)
	assert.False(t, broken.Allows("get_data"))
	assert.False(t, broken.Allows("anything"))

	empty := ParseAllowlist(`[]`)
	assert.False(t, empty.Allows("get_data"))
}

func TestEncodeAllowlist(t *testing.T) {
	assert.Equal(t, "*", EncodeAllowlist(true, nil))
	assert.Equal(t, `["a","b"]`, EncodeAllowlist(false, []string{"a", "b"}))
	assert.Equal(t, `[]`, EncodeAllowlist(false, nil))
}
