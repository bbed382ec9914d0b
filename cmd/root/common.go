package root

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/environment"
	"github.com/codeatlas/codeatlas/pkg/model/provider"
	"github.com/codeatlas/codeatlas/pkg/textstore"
	"github.com/codeatlas/codeatlas/pkg/vectordb"
)

// stores opens the vector and full-text stores under the data directory.
func stores(cfg *config.Config) (*vectordb.SQLiteStore, *textstore.BleveStore, error) {
	vectors, err := vectordb.OpenSQLite(filepath.Join(cfg.DataDir, "vectors.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening vector store: %w", err)
	}

	texts, err := textstore.NewBleveStore(filepath.Join(cfg.DataDir, "text"))
	if err != nil {
		vectors.Close()
		return nil, nil, fmt.Errorf("opening text store: %w", err)
	}

	return vectors, texts, nil
}

// embedder builds the embedding provider from configuration.
func embedder(ctx context.Context, cfg *config.Config) (provider.EmbeddingProvider, error) {
	return provider.NewEmbedder(ctx, &cfg.Embedder, environment.OSProvider{})
}
