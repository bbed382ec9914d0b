package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/chunk"
	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/scopegraph"
	"github.com/codeatlas/codeatlas/pkg/textstore"
	"github.com/codeatlas/codeatlas/pkg/vectordb"
)

type constantEmbedder struct{}

func (constantEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestIndexRepository(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "pkg", "greet.go"), []byte(`package pkg

func Greet(name string) string {
	return "hello " + name
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"),
		[]byte("# Greeter\n\nSays hello.\n"), 0o644))
	// binary files are skipped
	require.NoError(t, os.WriteFile(filepath.Join(repo, "blob.bin"),
		[]byte{0, 1, 2, 3}, 0o644))

	cfg := config.Default()
	cfg.RepoName = "acme/greeter"
	cfg.RepoPath = repo

	vectors, err := vectordb.OpenSQLite(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	defer vectors.Close()

	texts, err := textstore.NewBleveStore(t.TempDir())
	require.NoError(t, err)
	defer texts.Close()

	ix := New(cfg, vectors, texts, constantEmbedder{}, chunk.WordTokenizer{})
	ctx := context.Background()
	require.NoError(t, ix.IndexRepository(ctx))

	// the full-text store has the document with a usable scope graph
	doc, err := texts.GetByField(ctx, IndexName(cfg.RepoName), "relative_path", "pkg/greet.go")
	require.NoError(t, err)
	assert.Equal(t, "Go", doc.Lang)
	assert.Contains(t, doc.Symbols, "Greet")

	locations, err := scopegraph.DecodeSymbolLocations(doc.SymbolLocations)
	require.NoError(t, err)
	assert.NotNil(t, locations.ScopeGraph())

	// the markdown file indexes without scopes
	doc, err = texts.GetByField(ctx, IndexName(cfg.RepoName), "relative_path", "README.md")
	require.NoError(t, err)
	locations, err = scopegraph.DecodeSymbolLocations(doc.SymbolLocations)
	require.NoError(t, err)
	assert.Nil(t, locations.ScopeGraph())

	// the symbol collection serves the aggregated payloads
	hits, err := vectors.Search(ctx, vectordb.SymbolCollectionName(cfg.Namespace()), vectordb.SearchParams{
		Vector:  []float32{1, 0},
		Limit:   10,
		Filters: []vectordb.Filter{{Field: "repo_name", Value: "acme/greeter"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	var symbols []string
	for _, h := range hits {
		if s, ok := h.Fields["symbol"].(string); ok {
			symbols = append(symbols, s)
		}
	}
	assert.Contains(t, symbols, "Greet")
}
