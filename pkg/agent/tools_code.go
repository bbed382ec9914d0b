package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/ranking"
	"github.com/codeatlas/codeatlas/pkg/scopegraph"
	"github.com/codeatlas/codeatlas/pkg/textspan"
	"github.com/codeatlas/codeatlas/pkg/textstore"
)

const (
	// codeSearchLimit is the symbol search fan-in.
	codeSearchLimit = 10

	// extractTopPaths and extractTopChunks bound context extraction.
	extractTopPaths  = 10
	extractTopChunks = 3
)

// extractionConfig is the scope expansion tuning used at query time.
var extractionConfig = func() scopegraph.ExtractionConfig {
	maxLines := 20
	return scopegraph.ExtractionConfig{
		CodeByteExpansionRange: 300,
		MinLinesToReturn:       8,
		MaxLinesLimit:          &maxLines,
	}
}()

// CodeSearch performs the code tool: semantic symbol search, path ranking,
// scope-graph context extraction, and renders the found chunks into the
// exchange.
func (a *Agent) CodeSearch(ctx context.Context, query string) (string, error) {
	a.Update(StartStep{Step: SearchStep{Kind: StepCode, Query: query}})

	symbols, err := a.deps.Semantic.SearchSymbols(ctx, query, codeSearchLimit, 0, 0, true, a.deps.RepoName)
	if err != nil {
		return "", fmt.Errorf("symbol search failed: %w", err)
	}

	ranked := ranking.RankSymbolPayloads(symbols)
	if len(ranked) > extractTopPaths {
		ranked = ranked[:extractTopPaths]
	}

	extracted, err := a.processPaths(ctx, ranked)
	if err != nil {
		return "", err
	}

	chunks := make([]CodeChunk, 0, len(extracted))
	for _, e := range extracted {
		chunks = append(chunks, CodeChunk{
			Path:      e.Path,
			Alias:     a.PathAlias(e.Path),
			Snippet:   e.Content,
			StartLine: e.StartLine,
			EndLine:   e.EndLine,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Alias != chunks[j].Alias {
			return chunks[i].Alias < chunks[j].Alias
		}
		return chunks[i].StartLine < chunks[j].StartLine
	})

	var rendered []string
	for _, c := range chunks {
		if c.IsEmpty() {
			continue
		}
		a.LastExchange().CodeChunks = append(a.LastExchange().CodeChunks, c)
		rendered = append(rendered, c.String())
	}

	response := strings.Join(rendered, "\n\n")
	a.Update(ReplaceStep{Step: SearchStep{Kind: StepCode, Query: query, Response: response}})

	slog.Debug("code search complete", "query", query, "chunks", len(rendered))
	return response, nil
}

// processPaths drives scope expansion over the top ranked paths. A missing
// file or undecodable symbol locations are logged and skipped, never fatal;
// a file without a scope graph falls back to a plain byte expansion.
func (a *Agent) processPaths(ctx context.Context, ranked []ranking.PathExtractMeta) ([]scopegraph.ExtractedContent, error) {
	var results []scopegraph.ExtractedContent

	for _, pathMeta := range ranked {
		doc, err := a.fileContent(ctx, pathMeta.Path)
		if err != nil {
			slog.Debug("skipping path without content", "path", pathMeta.Path, "error", err)
			continue
		}

		lineEnds := doc.FetchLineIndices()

		locations, err := scopegraph.DecodeSymbolLocations(doc.SymbolLocations)
		if err != nil {
			slog.Debug("skipping path with undecodable symbol locations", "path", pathMeta.Path, "error", err)
			continue
		}
		sg := locations.ScopeGraph()

		chunkMeta := pathMeta.CodeExtractMeta
		if len(chunkMeta) > extractTopChunks {
			chunkMeta = chunkMeta[:extractTopChunks]
		}

		for _, meta := range chunkMeta {
			startByte := int(meta.StartByte)
			endByte := int(meta.EndByte)

			var extracted scopegraph.ExtractedContent
			if sg != nil {
				extracted = sg.ExpandScope(pathMeta.Path, startByte, endByte, doc.Content, lineEnds, extractionConfig)
			} else {
				extracted = expandWithoutGraph(pathMeta.Path, startByte, endByte, doc.Content, lineEnds)
			}

			results = append(results, extracted)
		}
	}

	return results, nil
}

// expandWithoutGraph is the fallback for files without scope support: a
// plain byte expansion snapped to line boundaries.
func expandWithoutGraph(path string, startByte, endByte int, content string, lineEnds []int) scopegraph.ExtractedContent {
	start := max(0, startByte-extractionConfig.CodeByteExpansionRange)
	end := min(len(content), endByte+extractionConfig.CodeByteExpansionRange)
	start, end = textspan.AdjustBytePositions(start, end, lineEnds)

	if start > len(content) {
		start = len(content)
	}
	if end > len(content) {
		end = len(content)
	}
	if start > end {
		start = end
	}

	return scopegraph.ExtractedContent{
		Path:      path,
		Content:   content[start:end],
		StartByte: start,
		EndByte:   end,
		StartLine: textspan.LineNumber(start, lineEnds),
		EndLine:   textspan.LineNumber(end, lineEnds),
	}
}

// fileContent loads one document from the full-text store.
func (a *Agent) fileContent(ctx context.Context, path string) (*textstore.ContentDocument, error) {
	return a.deps.TextStore.GetByField(ctx, a.deps.IndexName, "relative_path", path)
}
