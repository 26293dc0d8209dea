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

package fixtures

import (
	"context"
	"database/sql"
	"encoding/json"
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

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	output := json.RawMessage(`{"score":0.92}`)

	require.NoError(t, store.Write(ctx, "fx-1", "abc123", output))

	result, err := store.Read(ctx, "fx-1", "abc123")
	require.NoError(t, err)
	assert.True(t, result.Hit)
	assert.JSONEq(t, `{"score":0.92}`, string(result.Output))
	assert.Equal(t, "abc123", result.StoredHash)
}

func TestStaleHashReportsStoredHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "fx-1", "abc123", json.RawMessage(`{}`)))

	result, err := store.Read(ctx, "fx-1", "different")
	require.NoError(t, err)
	assert.False(t, result.Hit)
	assert.Nil(t, result.Output)
	assert.Equal(t, "abc123", result.StoredHash)
}

func TestUnknownFixtureIsBareMiss(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Read(context.Background(), "never-written", "abc123")
	require.NoError(t, err)
	assert.False(t, result.Hit)
	assert.Empty(t, result.StoredHash)
}

func TestWriteReplacesPreviousEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "fx-1", "v1", json.RawMessage(`{"n":1}`)))
	require.NoError(t, store.Write(ctx, "fx-1", "v2", json.RawMessage(`{"n":2}`)))

	result, err := store.Read(ctx, "fx-1", "v2")
	require.NoError(t, err)
	assert.True(t, result.Hit)
	assert.JSONEq(t, `{"n":2}`, string(result.Output))
}

func TestWriteRequiresIDAndHash(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Write(context.Background(), "", "h", nil))
	assert.Error(t, store.Write(context.Background(), "id", "", nil))
}
