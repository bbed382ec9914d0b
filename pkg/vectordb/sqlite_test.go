package vectordb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCollectionName(t *testing.T) {
	name := CollectionName("v1/acme/widgets")
	assert.Contains(t, name, "v1-widgets-")
	// deterministic
	assert.Equal(t, name, CollectionName("v1/acme/widgets"))
	assert.NotEqual(t, name, CollectionName("v1/acme/gadgets"))

	assert.Equal(t, name+"-documents", ChunkCollectionName("v1/acme/widgets"))
	assert.Equal(t, name+"-documents-symbols", SymbolCollectionName("v1/acme/widgets"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestUpsertAndSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, "c", 2))
	require.NoError(t, store.Upsert(ctx, "c", []Record{
		{ID: "a", Fields: map[string]any{"repo_name": "r1", "symbol": "Foo"}, Embedding: []float32{1, 0}},
		{ID: "b", Fields: map[string]any{"repo_name": "r1", "symbol": "Bar"}, Embedding: []float32{0, 1}},
		{ID: "c", Fields: map[string]any{"repo_name": "r2", "symbol": "Baz"}, Embedding: []float32{1, 0.1}},
	}))

	hits, err := store.Search(ctx, "c", SearchParams{
		Vector:  []float32{1, 0},
		Limit:   10,
		Filters: []Filter{{Field: "repo_name", Value: "r1"}},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchThresholdAndLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "c", []Record{
		{ID: "close", Fields: map[string]any{}, Embedding: []float32{1, 0}},
		{ID: "far", Fields: map[string]any{}, Embedding: []float32{0, 1}},
	}))

	hits, err := store.Search(ctx, "c", SearchParams{
		Vector:         []float32{1, 0},
		Limit:          10,
		ScoreThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "close", hits[0].ID)

	hits, err = store.Search(ctx, "c", SearchParams{Vector: []float32{1, 0}, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestUpsertReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "c", []Record{
		{ID: "a", Fields: map[string]any{"v": "old"}, Embedding: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert(ctx, "c", []Record{
		{ID: "a", Fields: map[string]any{"v": "new"}, Embedding: []float32{1, 0}},
	}))

	hits, err := store.Search(ctx, "c", SearchParams{Vector: []float32{1, 0}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Fields["v"])
}

func TestSearchReturnsVectorsWhenAsked(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "c", []Record{
		{ID: "a", Fields: map[string]any{}, Embedding: []float32{0.5, 0.5}},
	}))

	hits, err := store.Search(ctx, "c", SearchParams{Vector: []float32{1, 0}, Limit: 1, WithVectors: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []float32{0.5, 0.5}, hits[0].Embedding)

	hits, err = store.Search(ctx, "c", SearchParams{Vector: []float32{1, 0}, Limit: 1})
	require.NoError(t, err)
	assert.Nil(t, hits[0].Embedding)
}
