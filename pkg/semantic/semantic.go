// Package semantic embeds queries and searches the vector collections,
// diversifying chunk results with maximal marginal relevance.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/codeatlas/codeatlas/pkg/payload"
	"github.com/codeatlas/codeatlas/pkg/vectordb"
)

// Embedder turns text into a fixed-size vector. Failures are fatal for the
// request; there is no degraded mode.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Semantic is the query-time search facade over one repository's
// collections.
type Semantic struct {
	store            vectordb.Store
	embedder         Embedder
	chunkCollection  string
	symbolCollection string
}

// New builds the facade for a collection namespace.
func New(store vectordb.Store, embedder Embedder, namespace string) *Semantic {
	return &Semantic{
		store:            store,
		embedder:         embedder,
		chunkCollection:  vectordb.ChunkCollectionName(namespace),
		symbolCollection: vectordb.SymbolCollectionName(namespace),
	}
}

// SearchSymbols embeds the query and searches the symbol collection,
// returning decoded payloads sorted by score descending. retrieveMore
// doubles the fetch to leave room for downstream deduplication.
func (s *Semantic) SearchSymbols(ctx context.Context, query string, limit, offset int, threshold float32, retrieveMore bool, repo string) ([]payload.SymbolPayload, error) {
	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	fetch := limit
	if retrieveMore {
		fetch = limit * 2
	}

	hits, err := s.store.Search(ctx, s.symbolCollection, vectordb.SearchParams{
		Vector:         vector,
		Limit:          fetch,
		Offset:         offset,
		ScoreThreshold: threshold,
		Filters:        []vectordb.Filter{{Field: "repo_name", Value: repo}},
	})
	if err != nil {
		return nil, fmt.Errorf("symbol search: %w", err)
	}

	out := make([]payload.SymbolPayload, 0, len(hits))
	for _, hit := range hits {
		p, err := payload.SymbolFromRecord(hit.ID, hit.Fields, hit.Embedding, hit.Score)
		if err != nil {
			slog.Debug("skipping undecodable symbol hit", "id", hit.ID, "error", err)
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	slog.Debug("symbol search", "query", query, "hits", len(out))
	return out, nil
}

// SearchChunks embeds the query and searches the chunk collection, then
// deduplicates with MMR down to limit results.
func (s *Semantic) SearchChunks(ctx context.Context, query string, limit, offset int, threshold float32, retrieveMore bool, repo string) ([]payload.ChunkPayload, error) {
	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	fetch := limit
	if retrieveMore {
		fetch = limit * 2
	}

	hits, err := s.store.Search(ctx, s.chunkCollection, vectordb.SearchParams{
		Vector:         vector,
		Limit:          fetch,
		Offset:         offset,
		ScoreThreshold: threshold,
		Filters:        []vectordb.Filter{{Field: "repo_name", Value: repo}},
		WithVectors:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}

	out := make([]payload.ChunkPayload, 0, len(hits))
	for _, hit := range hits {
		p, err := payload.ChunkFromRecord(hit.ID, hit.Fields, hit.Embedding, hit.Score)
		if err != nil {
			slog.Debug("skipping undecodable chunk hit", "id", hit.ID, "error", err)
			continue
		}
		out = append(out, p)
	}

	return DeduplicateSnippets(out, vector, limit), nil
}
