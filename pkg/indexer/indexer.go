// Package indexer builds the search indexes for a repository checkout: the
// full-text documents, the per-chunk embeddings and the aggregated symbol
// embeddings.
package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codeatlas/codeatlas/pkg/chunk"
	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/languages"
	"github.com/codeatlas/codeatlas/pkg/payload"
	"github.com/codeatlas/codeatlas/pkg/scopegraph"
	"github.com/codeatlas/codeatlas/pkg/semantic"
	"github.com/codeatlas/codeatlas/pkg/textspan"
	"github.com/codeatlas/codeatlas/pkg/textstore"
	"github.com/codeatlas/codeatlas/pkg/vectordb"
)

const (
	// fileConcurrency bounds parallel file processing so embedding and
	// store writes don't overwhelm downstreams.
	fileConcurrency = 8

	// maxFileSize skips generated blobs and vendored bundles.
	maxFileSize = 1 << 20

	chunkMinTokens = 50
	chunkMaxTokens = 256

	embeddingDim = 384
)

// Indexer walks a repository and writes all three indexes.
type Indexer struct {
	cfg       *config.Config
	vectors   vectordb.Store
	texts     textstore.Store
	embedder  semantic.Embedder
	tokenizer chunk.Tokenizer
}

// New wires an indexer.
func New(cfg *config.Config, vectors vectordb.Store, texts textstore.Store, embedder semantic.Embedder, tokenizer chunk.Tokenizer) *Indexer {
	return &Indexer{
		cfg:       cfg,
		vectors:   vectors,
		texts:     texts,
		embedder:  embedder,
		tokenizer: tokenizer,
	}
}

// fileResult carries one file's outputs back to the aggregator.
type fileResult struct {
	doc     textstore.ContentDocument
	chunks  []vectordb.Record
	symbols []scopegraph.SymbolMetadata
}

// IndexRepository processes every indexable file under the configured
// checkout. A file whose scope graph cannot be built is indexed without
// scopes; a file that cannot be read, is binary, or fails to chunk or embed is
// skipped with a log line. The run fails on walk, store and symbol-embedding
// errors.
func (ix *Indexer) IndexRepository(ctx context.Context) error {
	namespace := ix.cfg.Namespace()
	chunkCollection := vectordb.ChunkCollectionName(namespace)
	symbolCollection := vectordb.SymbolCollectionName(namespace)

	if err := ix.vectors.EnsureCollection(ctx, chunkCollection, embeddingDim); err != nil {
		return fmt.Errorf("preparing chunk collection: %w", err)
	}
	if err := ix.vectors.EnsureCollection(ctx, symbolCollection, embeddingDim); err != nil {
		return fmt.Errorf("preparing symbol collection: %w", err)
	}

	paths, err := ix.collectFiles()
	if err != nil {
		return err
	}
	slog.Info("indexing repository", "repo", ix.cfg.RepoName, "files", len(paths))

	var mu sync.Mutex
	var results []fileResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fileConcurrency)

	for _, relPath := range paths {
		g.Go(func() error {
			result, err := ix.processFile(gctx, relPath)
			if err != nil {
				slog.Debug("skipping file", "path", relPath, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// deterministic store writes regardless of completion order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].doc.RelativePath < results[j].doc.RelativePath
	})

	docs := make([]textstore.ContentDocument, 0, len(results))
	var chunkRecords []vectordb.Record
	var symbolMeta []scopegraph.SymbolMetadata
	for _, r := range results {
		docs = append(docs, r.doc)
		chunkRecords = append(chunkRecords, r.chunks...)
		symbolMeta = append(symbolMeta, r.symbols...)
	}

	if err := ix.texts.Index(ctx, IndexName(ix.cfg.RepoName), docs); err != nil {
		return fmt.Errorf("writing full-text index: %w", err)
	}
	if err := ix.vectors.Upsert(ctx, chunkCollection, chunkRecords); err != nil {
		return fmt.Errorf("writing chunk collection: %w", err)
	}

	symbolRecords, err := ix.aggregateSymbols(ctx, symbolMeta)
	if err != nil {
		return err
	}
	if err := ix.vectors.Upsert(ctx, symbolCollection, symbolRecords); err != nil {
		return fmt.Errorf("writing symbol collection: %w", err)
	}

	slog.Info("indexing complete",
		"repo", ix.cfg.RepoName,
		"documents", len(docs),
		"chunks", len(chunkRecords),
		"symbols", len(symbolRecords))
	return nil
}

// processFile reads, parses and chunks one file.
func (ix *Indexer) processFile(ctx context.Context, relPath string) (*fileResult, error) {
	raw, err := os.ReadFile(filepath.Join(ix.cfg.RepoPath, relPath))
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return nil, fmt.Errorf("binary file")
	}

	langCfg := languages.FromPath(relPath)
	langID := ""
	if langCfg != nil {
		langID = langCfg.LanguageIDs[0]
	}

	locations := scopegraph.Empty()
	if langCfg != nil {
		locations, err = scopegraph.Build(ctx, raw, langCfg)
		if err != nil {
			slog.Debug("scope graph build failed, indexing without scopes", "path", relPath, "error", err)
			locations = scopegraph.Empty()
		}
	}
	blob, err := locations.Encode()
	if err != nil {
		return nil, err
	}

	symbols := locations.ListMetadata(raw, ix.cfg.RepoName, langID, relPath)

	lineEnds := textspan.LineEndIndices(raw)
	content := string(raw)

	doc := textstore.ContentDocument{
		RepoName:        ix.cfg.RepoName,
		RelativePath:    relPath,
		Lang:            langID,
		Content:         content,
		Symbols:         symbolNames(symbols),
		LineEndIndices:  textspan.EncodeLineEnds(lineEnds),
		SymbolLocations: blob,
		UniqueHash:      contentHash(raw),
	}

	chunkRecords, err := ix.chunkRecords(ctx, relPath, content, langID)
	if err != nil {
		return nil, err
	}

	return &fileResult{doc: doc, chunks: chunkRecords, symbols: symbols}, nil
}

// chunkRecords splits the file and embeds each chunk.
func (ix *Indexer) chunkRecords(ctx context.Context, relPath, content, langID string) ([]vectordb.Record, error) {
	chunks, err := chunk.ByTokens(content, ix.cfg.RepoName, relPath, ix.tokenizer,
		chunkMinTokens, chunkMaxTokens, chunk.Partial(0.5))
	if err != nil {
		return nil, err
	}

	records := make([]vectordb.Record, 0, len(chunks))
	for _, c := range chunks {
		embedding, err := ix.embedder.CreateEmbedding(ctx,
			ix.cfg.RepoName+"\t"+relPath+"\n"+c.Data)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk of %s: %w", relPath, err)
		}

		p := payload.ChunkPayload{
			RepoName:     ix.cfg.RepoName,
			RelativePath: relPath,
			Lang:         langID,
			ContentHash:  contentHash([]byte(c.Data)),
			Text:         c.Data,
			StartLine:    int64(c.Range.Start.Line),
			EndLine:      int64(c.Range.End.Line),
			StartByte:    int64(c.Range.Start.Byte),
			EndByte:      int64(c.Range.End.Byte),
		}
		records = append(records, vectordb.Record{
			ID:        uuid.NewString(),
			Fields:    p.ToRecord(),
			Embedding: embedding,
		})
	}
	return records, nil
}

// aggregateSymbols folds per-site metadata into one payload per symbol and
// embeds the symbol names.
func (ix *Indexer) aggregateSymbols(ctx context.Context, meta []scopegraph.SymbolMetadata) ([]vectordb.Record, error) {
	bySymbol := make(map[string]*payload.SymbolPayload)
	var order []string

	for _, m := range meta {
		if strings.TrimSpace(m.SymbolText) == "" {
			continue
		}
		p, ok := bySymbol[m.SymbolText]
		if !ok {
			p = &payload.SymbolPayload{
				RepoName: ix.cfg.RepoName,
				Symbol:   m.SymbolText,
			}
			bySymbol[m.SymbolText] = p
			order = append(order, m.SymbolText)
		}
		p.SymbolTypes = append(p.SymbolTypes, m.SymbolType)
		p.LangIDs = append(p.LangIDs, m.LanguageID)
		p.IsGlobals = append(p.IsGlobals, m.IsGlobal)
		p.StartBytes = append(p.StartBytes, int64(m.Range.Start.Byte))
		p.EndBytes = append(p.EndBytes, int64(m.Range.End.Byte))
		p.RelativePaths = append(p.RelativePaths, m.RelativePath)
		p.NodeKinds = append(p.NodeKinds, m.NodeKind)
	}

	records := make([]vectordb.Record, 0, len(order))
	for _, symbol := range order {
		p := bySymbol[symbol]
		if err := p.Validate(); err != nil {
			return nil, err
		}

		embedding, err := ix.embedder.CreateEmbedding(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("embedding symbol %s: %w", symbol, err)
		}

		records = append(records, vectordb.Record{
			ID:        uuid.NewString(),
			Fields:    p.ToRecord(),
			Embedding: embedding,
		})
	}
	return records, nil
}

// collectFiles lists indexable files relative to the checkout root.
func (ix *Indexer) collectFiles() ([]string, error) {
	var out []string

	err := filepath.WalkDir(ix.cfg.RepoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}

		rel, err := filepath.Rel(ix.cfg.RepoPath, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking repository: %w", err)
	}

	sort.Strings(out)
	return out, nil
}

func skipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "target", "vendor":
		return true
	}
	return false
}

func symbolNames(meta []scopegraph.SymbolMetadata) string {
	seen := map[string]bool{}
	var names []string
	for _, m := range meta {
		if m.SymbolText == "" || seen[m.SymbolText] {
			continue
		}
		seen[m.SymbolText] = true
		names = append(names, m.SymbolText)
	}
	return strings.Join(names, " ")
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// IndexName is the full-text index name for a repository.
func IndexName(repoName string) string {
	parts := strings.Split(repoName, "/")
	return parts[len(parts)-1]
}
