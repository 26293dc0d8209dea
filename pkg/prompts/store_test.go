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

package prompts

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

func TestActivationIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v1, err := store.Create(ctx, "v1", "You are a helpful assistant.", "")
	require.NoError(t, err)
	v2, err := store.Create(ctx, "v2", "You are a terse assistant.", "shorter replies")
	require.NoError(t, err)

	// Nothing active until an explicit activation.
	_, err = store.Active(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Activate(ctx, v1))
	active, err := store.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, active.ID)
	assert.NotNil(t, active.ActivatedAt)

	// Activating v2 deactivates v1 in the same statement.
	require.NoError(t, store.Activate(ctx, v2))
	active, err = store.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2, active.ID)

	versions, err := store.List(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, v := range versions {
		if v.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestActivateUnknownVersion(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Activate(context.Background(), 999), ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "v1", "first", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "v2", "second", "")
	require.NoError(t, err)

	versions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].Version)
	assert.Equal(t, "v1", versions[1].Version)
}

func TestGetVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "v1", "content", "notes here")
	require.NoError(t, err)

	v, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "content", v.Content)
	assert.Equal(t, "notes here", v.Notes)
	assert.False(t, v.IsActive)

	_, err = store.Get(ctx, id+1)
	assert.ErrorIs(t, err, ErrNotFound)
}
