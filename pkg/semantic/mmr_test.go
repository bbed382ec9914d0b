package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/payload"
)

func chunkAt(path string, start, end int64, lang string, score float32, emb []float32) payload.ChunkPayload {
	return payload.ChunkPayload{
		RelativePath: path,
		Lang:         lang,
		StartLine:    start,
		EndLine:      end,
		Score:        score,
		Embedding:    emb,
	}
}

func TestFilterOverlappingSnippets(t *testing.T) {
	snippets := []payload.ChunkPayload{
		chunkAt("a.go", 1, 10, "Go", 0.9, nil),
		chunkAt("a.go", 5, 15, "Go", 0.8, nil), // overlaps the previous
		chunkAt("a.go", 11, 20, "Go", 0.7, nil),
		chunkAt("b.go", 5, 15, "Go", 0.6, nil), // different path, kept
	}

	got := filterOverlappingSnippets(snippets)
	require.Len(t, got, 3)

	// score order restored
	assert.Equal(t, int64(1), got[0].StartLine)
	assert.Equal(t, int64(11), got[1].StartLine)
	assert.Equal(t, "b.go", got[2].RelativePath)
}

func TestDeduplicateWithMMRFewerThanK(t *testing.T) {
	idxs := DeduplicateWithMMR([]float32{1, 0}, [][]float32{{1, 0}, {0, 1}},
		[]string{"Go", "Go"}, []string{"a", "b"}, 0.5, 5)
	assert.Equal(t, []int{0, 1}, idxs)
}

func TestDeduplicateWithMMRPicksRelevantFirst(t *testing.T) {
	query := []float32{1, 0}
	embeddings := [][]float32{
		{0, 1},      // orthogonal
		{1, 0},      // identical to query
		{0.9, 0.1},  // close
		{-1, 0},     // opposite
	}
	langs := []string{"Go", "Go", "Go", "Go"}
	paths := []string{"a", "b", "c", "d"}

	idxs := DeduplicateWithMMR(query, embeddings, langs, paths, 0.5, 2)
	require.Len(t, idxs, 2)
	assert.Equal(t, 1, idxs[0])
}

func TestDeduplicateWithMMRDiversifiesPaths(t *testing.T) {
	query := []float32{1, 0}
	// two near-identical candidates on one path, one slightly weaker on
	// another path
	embeddings := [][]float32{
		{1, 0},
		{0.99, 0.01},
		{0.9, 0.1},
	}
	langs := []string{"Go", "Go", "Go"}
	paths := []string{"same.go", "same.go", "other.go"}

	idxs := DeduplicateWithMMR(query, embeddings, langs, paths, 0.5, 2)
	require.Len(t, idxs, 2)

	seen := map[string]bool{}
	for _, i := range idxs {
		seen[paths[i]] = true
	}
	assert.True(t, seen["other.go"], "path diversity factor should pull in the second path")
}

func TestDeduplicateSnippets(t *testing.T) {
	query := []float32{1, 0}
	snippets := []payload.ChunkPayload{
		chunkAt("a.go", 1, 10, "Go", 0.95, []float32{1, 0}),
		chunkAt("a.go", 2, 12, "Go", 0.94, []float32{1, 0}), // overlap, dropped
		chunkAt("b.py", 1, 10, "Python", 0.5, []float32{0.5, 0.5}),
	}

	got := DeduplicateSnippets(snippets, query, 2)
	require.Len(t, got, 2)

	paths := []string{got[0].RelativePath, got[1].RelativePath}
	assert.Contains(t, paths, "a.go")
	assert.Contains(t, paths, "b.py")
}
