// Package ranking turns symbol search hits into an ordered list of file
// paths worth extracting context from, with per-chunk extraction metadata.
package ranking

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/codeatlas/codeatlas/pkg/payload"
)

// Scoring constants. These are frozen as one versioned table; earlier
// revisions of the model drifted between exponents, so every exponent used
// below is named here.
const (
	// WeightsVersion identifies this scoring table.
	WeightsVersion = 1

	// powfFactor is the exponent applied to the similarity score in the
	// substring and edit-distance bonuses.
	powfFactor = 3

	// repeatExponent is the exponent applied to the similarity score in the
	// global and repeat bonuses.
	repeatExponent = 5

	globalBonusFactor       = 500.0
	secondOccurrenceBonus   = 200.0
	laterOccurrenceBonus    = 1000.0
	semanticScoreThreshold  = 0.35
	substringBonusFactor    = 10.0
	levenshteinBonusFactor  = 5.0
	levenshteinCloseEnough  = 3
)

// symbolWeights maps a symbol type to its base weight.
var symbolWeights = map[string]float64{
	"variable": 1,
	"function": 9,
	"module":   8,
	"struct":   8,
	"field":    3,
	"unknown":  2,
}

// SymbolWeight returns the base weight for a symbol type, falling back to
// the "unknown" weight.
func SymbolWeight(symbolType string) float64 {
	if w, ok := symbolWeights[symbolType]; ok {
		return w
	}
	return symbolWeights["unknown"]
}

// CodeExtractMeta records one symbol site's contribution to its path, and
// where in the file the extractor should anchor.
type CodeExtractMeta struct {
	Symbol     string  `json:"symbol"`
	NodeKind   string  `json:"node_kind"`
	SymbolType string  `json:"symbol_type"`
	IsGlobal   bool    `json:"is_global"`
	Score      float64 `json:"score"`
	StartByte  int64   `json:"start_byte"`
	EndByte    int64   `json:"end_byte"`
}

// PathExtractMeta is a ranked path with its total score, an audit trail of
// how the score was assembled, and the per-site extraction metadata sorted
// by contribution.
type PathExtractMeta struct {
	Path            string            `json:"path"`
	Score           float64           `json:"score"`
	History         []string          `json:"history"`
	CodeExtractMeta []CodeExtractMeta `json:"code_extract_meta"`
}

// RankSymbolPayloads scores every site of every payload and aggregates the
// scores per path. Paths come back ordered by total score descending, each
// with its extraction metadata ordered the same way.
//
// The per-site model: the first occurrence of a (path, symbol) pair earns
// the weighted base score plus the global, semantic and cross-payload
// similarity bonuses; the second occurrence earns a flat 200·s⁵; the third
// and every later occurrence earn a flat 1000·s⁵. Whether that exceeds the
// first occurrence's total depends on s: a global function site with two
// identical later payloads scores about 494 first at s = 0.9 against 590,
// while at s = 0.1 its base score alone is 0.9 against 0.01.
func RankSymbolPayloads(payloads []payload.SymbolPayload) []PathExtractMeta {
	pathScores := make(map[string]float64)
	pathHistory := make(map[string][]string)
	pathSymbolCount := make(map[string]int)
	extractMeta := make(map[string][]CodeExtractMeta)

	for i, p := range payloads {
		s := float64(p.Score)

		for site := 0; site < p.Sites(); site++ {
			path := p.RelativePaths[site]
			symbolType := p.SymbolTypes[site]

			pathSymbol := path + p.Symbol
			occurrence := pathSymbolCount[pathSymbol]
			pathSymbolCount[pathSymbol] = occurrence + 1

			var siteScore float64
			var terms []string

			switch {
			case occurrence >= 2:
				siteScore = laterOccurrenceBonus * math.Pow(s, repeatExponent)
				terms = append(terms, fmt.Sprintf("repeat x%d %.3f", occurrence+1, siteScore))

			case occurrence == 1:
				siteScore = secondOccurrenceBonus * math.Pow(s, repeatExponent)
				terms = append(terms, fmt.Sprintf("repeat x2 %.3f", siteScore))

			default:
				siteScore = SymbolWeight(symbolType) * s
				terms = append(terms, fmt.Sprintf("base %.3f", siteScore))

				if p.IsGlobals[site] {
					bonus := globalBonusFactor * math.Pow(s, repeatExponent)
					siteScore += bonus
					terms = append(terms, fmt.Sprintf("global %.3f", bonus))
				}

				if s > semanticScoreThreshold {
					bonus := s * s * math.Pow(1+s, powfFactor) * (siteScore / 10)
					siteScore += bonus
					terms = append(terms, fmt.Sprintf("semantic %.3f", bonus))
				}

				for _, q := range payloads[i+1:] {
					if strings.Contains(p.Symbol, q.Symbol) || strings.Contains(q.Symbol, p.Symbol) {
						bonus := substringBonusFactor * math.Pow(s, powfFactor)
						siteScore += bonus
						terms = append(terms, fmt.Sprintf("substring of %s %.3f", q.Symbol, bonus))
					}
					if levenshtein.ComputeDistance(p.Symbol, q.Symbol) < levenshteinCloseEnough {
						bonus := levenshteinBonusFactor * math.Pow(s, powfFactor)
						siteScore += bonus
						terms = append(terms, fmt.Sprintf("edit distance to %s %.3f", q.Symbol, bonus))
					}
				}
			}

			extractMeta[path] = append(extractMeta[path], CodeExtractMeta{
				Symbol:     p.Symbol,
				NodeKind:   p.NodeKinds[site],
				SymbolType: symbolType,
				IsGlobal:   p.IsGlobals[site],
				Score:      siteScore,
				StartByte:  p.StartBytes[site],
				EndByte:    p.EndBytes[site],
			})

			pathScores[path] += siteScore
			pathHistory[path] = append(pathHistory[path],
				fmt.Sprintf("scored %.3f for symbol %s (%s, score %.2f): %s",
					siteScore, p.Symbol, symbolType, s, strings.Join(terms, ", ")))
		}
	}

	ranked := make([]PathExtractMeta, 0, len(pathScores))
	for path, score := range pathScores {
		meta := extractMeta[path]
		sort.SliceStable(meta, func(i, j int) bool { return meta[i].Score > meta[j].Score })

		ranked = append(ranked, PathExtractMeta{
			Path:            path,
			Score:           score,
			History:         pathHistory[path],
			CodeExtractMeta: meta,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Path < ranked[j].Path
	})

	for _, r := range ranked {
		slog.Debug("ranked path", "path", r.Path, "score", r.Score, "sites", len(r.CodeExtractMeta))
	}

	return ranked
}
