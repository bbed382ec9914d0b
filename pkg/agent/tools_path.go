package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/textstore"
)

const (
	// pathSearchLimit caps the number of fuzzy path matches returned.
	pathSearchLimit = 50

	// tokenSearchHits caps the per-token fan-in of the fuzzy match.
	tokenSearchHits = 100
)

// PathSearch performs the path tool: tri-gram and case-permutation query
// expansion over the full-text store, filtered by a fuzzy regex to reject
// accidental token matches.
func (a *Agent) PathSearch(ctx context.Context, query string) (string, error) {
	a.Update(StartStep{Step: SearchStep{Kind: StepPath, Query: query}})

	matches, err := a.fuzzyPathMatch(ctx, query, pathSearchLimit)
	if err != nil {
		return "", fmt.Errorf("path search failed: %w", err)
	}

	var rendered []string
	for _, doc := range matches {
		alias := a.PathAlias(doc.RelativePath)
		rendered = append(rendered, fmt.Sprintf("%d: %s", alias, doc.RelativePath))
	}

	response := strings.Join(rendered, "\n")
	a.Update(ReplaceStep{Step: SearchStep{Kind: StepPath, Query: query, Response: response}})

	slog.Debug("path search complete", "query", query, "matches", len(matches))
	return response, nil
}

// fuzzyPathMatch expands the query into tri-grams and their case
// permutations, counts how many expanded tokens hit each path, and keeps
// the paths passing the fuzzy regex, most-hit first.
func (a *Agent) fuzzyPathMatch(ctx context.Context, query string, limit int) ([]textstore.FileDocument, error) {
	var tokens []string
	for _, tri := range textstore.Trigrams(query) {
		tokens = append(tokens, textstore.CasePermutations(tri)...)
	}
	tokens = append(tokens, query)

	counts := make(map[textstore.FileDocument]int)
	for _, token := range tokens {
		hits, err := a.deps.TextStore.SearchToken(ctx, a.deps.IndexName, token, tokenSearchHits)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			counts[hit]++
		}
	}

	type scored struct {
		doc   textstore.FileDocument
		count int
	}
	ordered := make([]scored, 0, len(counts))
	for doc, count := range counts {
		ordered = append(ordered, scored{doc: doc, count: count})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].doc.RelativePath < ordered[j].doc.RelativePath
	})

	// a filter that fails to build matches nothing, and zero results are
	// produced
	filter := textstore.BuildFuzzyRegexFilter(query)
	if filter == nil {
		return nil, nil
	}

	var out []textstore.FileDocument
	for _, s := range ordered {
		if !filter.MatchString(s.doc.RelativePath) {
			continue
		}
		if strings.HasSuffix(s.doc.RelativePath, "/") {
			continue
		}
		out = append(out, s.doc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
