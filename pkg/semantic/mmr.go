package semantic

import (
	"log/slog"
	"math"
	"sort"

	"github.com/codeatlas/codeatlas/pkg/payload"
	"github.com/codeatlas/codeatlas/pkg/vectordb"
)

// mmrLambda balances relevance to the query against novelty relative to the
// snippets already selected.
const mmrLambda = 0.5

// DeduplicateSnippets drops overlapping snippets, then picks outputCount
// results with maximal marginal relevance.
func DeduplicateSnippets(snippets []payload.ChunkPayload, queryEmbedding []float32, outputCount int) []payload.ChunkPayload {
	snippets = filterOverlappingSnippets(snippets)

	embeddings := make([][]float32, len(snippets))
	languages := make([]string, len(snippets))
	paths := make([]string, len(snippets))
	for i, s := range snippets {
		embeddings[i] = s.Embedding
		languages[i] = s.Lang
		paths[i] = s.RelativePath
	}

	keep := DeduplicateWithMMR(queryEmbedding, embeddings, languages, paths, mmrLambda, outputCount)
	slog.Debug("mmr deduplication", "in", len(snippets), "kept", len(keep))

	keepSet := make(map[int]bool, len(keep))
	for _, i := range keep {
		keepSet[i] = true
	}

	out := make([]payload.ChunkPayload, 0, len(keep))
	for i, s := range snippets {
		if keepSet[i] {
			out = append(out, s)
		}
	}
	return out
}

// filterOverlappingSnippets sorts by (path, start line) and drops any
// snippet that starts before the previous one on the same path has ended,
// then restores score order.
func filterOverlappingSnippets(snippets []payload.ChunkPayload) []payload.ChunkPayload {
	sort.SliceStable(snippets, func(i, j int) bool {
		if snippets[i].RelativePath != snippets[j].RelativePath {
			return snippets[i].RelativePath < snippets[j].RelativePath
		}
		return snippets[i].StartLine < snippets[j].StartLine
	})

	var deduped []payload.ChunkPayload
	for _, s := range snippets {
		if len(deduped) > 0 {
			prev := deduped[len(deduped)-1]
			if prev.RelativePath == s.RelativePath && prev.EndLine >= s.StartLine {
				continue
			}
		}
		deduped = append(deduped, s)
	}

	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Score > deduped[j].Score })
	return deduped
}

// DeduplicateWithMMR returns the indices to keep. Each round picks the
// candidate maximizing
//
//	lambda·cos(q, e) − (1−lambda)·max_selected cos(e, e_j)
//	  + (1/2)^(language count) + (3/4)^(path count)
//
// where the trailing factors favor languages and paths not yet represented
// in the selection.
func DeduplicateWithMMR(queryEmbedding []float32, embeddings [][]float32, languages, paths []string, lambda float64, k int) []int {
	if len(embeddings) <= k {
		idxs := make([]int, len(embeddings))
		for i := range idxs {
			idxs[i] = i
		}
		return idxs
	}

	var idxs []int
	langCounts := make(map[string]int)
	pathCounts := make(map[string]int)

	for len(idxs) < k {
		bestScore := math.Inf(-1)
		bestIdx := -1

		for i, emb := range embeddings {
			if contains(idxs, i) {
				continue
			}

			relevance := float64(vectordb.CosineSimilarity(queryEmbedding, emb))

			redundancy := 0.0
			for _, j := range idxs {
				if sim := float64(vectordb.CosineSimilarity(emb, embeddings[j])); sim > redundancy {
					redundancy = sim
				}
			}

			score := lambda*relevance - (1-lambda)*redundancy
			score += math.Pow(0.5, float64(langCounts[languages[i]]))
			score += math.Pow(0.75, float64(pathCounts[paths[i]]))

			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			break
		}
		idxs = append(idxs, bestIdx)
		langCounts[languages[bestIdx]]++
		pathCounts[paths[bestIdx]]++
	}

	return idxs
}

func contains(idxs []int, i int) bool {
	for _, j := range idxs {
		if j == i {
			return true
		}
	}
	return false
}
