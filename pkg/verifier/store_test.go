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

package verifier

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestStoreCreateGetUpdateDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v := Verifier{
		Name:        "no-secrets",
		DisplayName: "No Secrets",
		Type:        TypePattern,
		Category:    "R",
		Order:       "R-0010",
		Spec:        map[string]any{"reject": "api_key", "outcome": "block"},
		Description: "Rejects leaked credentials.",
	}
	require.NoError(t, store.Create(ctx, v))

	got, err := store.Get(ctx, "no-secrets")
	require.NoError(t, err)
	assert.Equal(t, "No Secrets", got.DisplayName)
	assert.Equal(t, TypePattern, got.Type)
	assert.Equal(t, "R-0010", got.Order)
	assert.Equal(t, "block", got.Spec["outcome"])
	assert.False(t, got.CreatedAt.IsZero())

	v.DisplayName = "No Credentials"
	require.NoError(t, store.Update(ctx, v))
	got, err = store.Get(ctx, "no-secrets")
	require.NoError(t, err)
	assert.Equal(t, "No Credentials", got.DisplayName)

	require.NoError(t, store.Delete(ctx, "no-secrets"))
	_, err = store.Get(ctx, "no-secrets")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsInvalidType(t *testing.T) {
	store := newTestStore(t)
	err := store.Create(context.Background(), Verifier{Name: "x", Type: "llm-judge"})
	assert.Error(t, err)
}

func TestStoreUpdateMissingVerifier(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(context.Background(), Verifier{Name: "ghost", Type: TypeSchema})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreBindings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Verifier{
		Name: "shape", Type: TypeSchema, Category: "I", Order: "I-0001",
		Spec: map[string]any{"required": []any{"status"}},
	}))

	require.NoError(t, store.Bind(ctx, "shape", "deploy"))
	require.NoError(t, store.Bind(ctx, "shape", WildcardTool))
	// Binding twice is a no-op, not an error.
	require.NoError(t, store.Bind(ctx, "shape", "deploy"))

	bindings, err := store.Bindings(ctx)
	require.NoError(t, err)
	assert.Len(t, bindings, 2)

	assert.ErrorIs(t, store.Bind(ctx, "ghost", "deploy"), ErrNotFound)

	require.NoError(t, store.Unbind(ctx, "shape", "deploy"))
	assert.ErrorIs(t, store.Unbind(ctx, "shape", "deploy"), ErrNotFound)

	// Deleting the verifier removes its remaining bindings.
	require.NoError(t, store.Delete(ctx, "shape"))
	bindings, err = store.Bindings(ctx)
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestStoreListOrdersByKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, v := range []Verifier{
		{Name: "zeta", Type: TypePattern, Category: "I", Order: "I-0001", Spec: map[string]any{}},
		{Name: "alpha", Type: TypePattern, Category: "I", Order: "I-0001", Spec: map[string]any{}},
		{Name: "first", Type: TypePattern, Category: "A", Order: "A-0001", Spec: map[string]any{}},
	} {
		require.NoError(t, store.Create(ctx, v))
	}

	listed, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "first", listed[0].Name)
	assert.Equal(t, "alpha", listed[1].Name)
	assert.Equal(t, "zeta", listed[2].Name)
}
