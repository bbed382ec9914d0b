package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codeatlas/codeatlas/pkg/chat"
	"github.com/codeatlas/codeatlas/pkg/textspan"
)

const (
	// procMaxPaths caps how many files one proc call may read.
	procMaxPaths = 5

	// procConcurrency bounds the parallel file-explanation calls.
	procConcurrency = 5
)

var lineRangesRe = regexp.MustCompile(`\[\s*(\[\s*\d+\s*,\s*\d+\s*\]\s*(,\s*\[\s*\d+\s*,\s*\d+\s*\]\s*)*)?\]`)

// ProcessFiles performs the proc tool: for up to five known paths, ask the
// model which line ranges answer the query, then pluck those ranges as code
// chunks. One file failing is logged and skipped; the batch succeeds if any
// file succeeds.
func (a *Agent) ProcessFiles(ctx context.Context, query string, pathAliases []int) (string, error) {
	if len(pathAliases) > procMaxPaths {
		pathAliases = pathAliases[:procMaxPaths]
	}

	var paths []string
	for _, alias := range pathAliases {
		if path, ok := a.PathByAlias(alias); ok {
			paths = append(paths, path)
		} else {
			slog.Debug("ignoring unknown path alias", "alias", alias)
		}
	}

	a.Update(StartStep{Step: SearchStep{Kind: StepProc, Query: query, Paths: paths}})

	var mu sync.Mutex
	var chunks []CodeChunk

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(procConcurrency)

	for _, path := range paths {
		g.Go(func() error {
			found, err := a.explainFile(ctx, query, path)
			if err != nil {
				// partial failure: skip the file, keep the batch
				slog.Debug("file explanation failed", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			chunks = append(chunks, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Path != chunks[j].Path {
			return chunks[i].Path < chunks[j].Path
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
	a.Update(ReplaceStep{Step: SearchStep{Kind: StepProc, Query: query, Paths: paths, Response: response}})

	slog.Debug("proc complete", "query", query, "paths", len(paths), "chunks", len(rendered))
	return response, nil
}

// explainFile numbers the file's lines, asks the model for relevant line
// ranges and plucks them out as chunks.
func (a *Agent) explainFile(ctx context.Context, query, path string) ([]CodeChunk, error) {
	doc, err := a.fileContent(ctx, path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(doc.Content, "\n")
	var numbered strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&numbered, "%d %s\n", i+1, line)
	}

	prompt := fileExplanationPrompt(query, path, numbered.String())
	response, err := a.chatWithTimeout(ctx, []chat.Message{chat.System(prompt)}, nil)
	if err != nil {
		return nil, err
	}

	ranges, err := parseLineRanges(response.Content)
	if err != nil {
		return nil, err
	}

	lineEnds := doc.FetchLineIndices()
	alias := a.PathAlias(path)

	var chunks []CodeChunk
	for _, r := range ranges {
		start, end := r[0], r[1]
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			continue
		}

		snippet, err := textspan.PluckLines(doc.Content, lineEnds, start, end)
		if err != nil {
			slog.Debug("skipping unpluckable range", "path", path, "start", start, "end", end, "error", err)
			continue
		}

		chunks = append(chunks, CodeChunk{
			Path:      path,
			Alias:     alias,
			Snippet:   snippet,
			StartLine: start,
			EndLine:   end,
		})
	}
	return chunks, nil
}

// parseLineRanges pulls the first [[start,end],...] array out of a model
// response.
func parseLineRanges(response string) ([][2]int, error) {
	m := lineRangesRe.FindString(response)
	if m == "" {
		return nil, fmt.Errorf("no line ranges in response %q", response)
	}

	var raw [][2]int
	if err := json.Unmarshal([]byte(m), &raw); err != nil {
		return nil, fmt.Errorf("parsing line ranges: %w", err)
	}
	return raw, nil
}
