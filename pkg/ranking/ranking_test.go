package ranking

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/payload"
)

func singleSite(symbol, path, symbolType string, isGlobal bool, score float32) payload.SymbolPayload {
	return payload.SymbolPayload{
		RepoName:      "acme/widgets",
		Symbol:        symbol,
		SymbolTypes:   []string{symbolType},
		LangIDs:       []string{"Go"},
		IsGlobals:     []bool{isGlobal},
		StartBytes:    []int64{10},
		EndBytes:      []int64{20},
		RelativePaths: []string{path},
		NodeKinds:     []string{"def"},
		Score:         score,
	}
}

func TestSymbolWeights(t *testing.T) {
	assert.Equal(t, 9.0, SymbolWeight("function"))
	assert.Equal(t, 8.0, SymbolWeight("module"))
	assert.Equal(t, 8.0, SymbolWeight("struct"))
	assert.Equal(t, 3.0, SymbolWeight("field"))
	assert.Equal(t, 1.0, SymbolWeight("variable"))
	assert.Equal(t, 2.0, SymbolWeight("never heard of it"))
}

// Scenario: three payloads with symbol "Foo", score 0.9, type "function",
// one global site each on the same path. The expected total is assembled
// from the same named terms the model uses.
func TestRepeatBonus(t *testing.T) {
	s := float64(float32(0.9))
	payloads := []payload.SymbolPayload{
		singleSite("Foo", "src/foo.go", "function", true, float32(s)),
		singleSite("Foo", "src/foo.go", "function", true, float32(s)),
		singleSite("Foo", "src/foo.go", "function", true, float32(s)),
	}

	ranked := RankSymbolPayloads(payloads)
	require.Len(t, ranked, 1)

	// first occurrence: base, global, semantic, then cross-payload
	// similarity against the two later payloads (substring and zero edit
	// distance both fire for identical symbols)
	first := 9 * s
	first += 500 * math.Pow(s, 5)
	first += s * s * math.Pow(1+s, 3) * (first / 10)
	first += 2 * (10 * math.Pow(s, 3))
	first += 2 * (5 * math.Pow(s, 3))

	second := 200 * math.Pow(s, 5)
	third := 1000 * math.Pow(s, 5)

	assert.InDelta(t, first+second+third, ranked[0].Score, 1e-6)

	// exactly three audit entries mention Foo, one per occurrence
	mentions := 0
	for _, h := range ranked[0].History {
		if strings.Contains(h, "Foo") {
			mentions++
		}
	}
	assert.Equal(t, 3, mentions)
}

// Third and later occurrences are capped at the flat 1000·s⁵ bonus, which at
// the high scores used here is not lower than the first occurrence's score.
func TestRepeatCapNotBelowFirstOccurrence(t *testing.T) {
	for _, raw := range []float32{0.6, 0.9, 0.99} {
		s := float64(raw)
		payloads := []payload.SymbolPayload{
			singleSite("Foo", "p", "function", true, raw),
			singleSite("Foo", "p", "function", true, raw),
			singleSite("Foo", "p", "function", true, raw),
			singleSite("Foo", "p", "function", true, raw),
		}

		ranked := RankSymbolPayloads(payloads)
		require.Len(t, ranked, 1)
		meta := ranked[0].CodeExtractMeta
		require.Len(t, meta, 4)

		capValue := 1000 * math.Pow(s, 5)
		secondValue := 200 * math.Pow(s, 5)

		var first float64
		capped := 0
		for _, m := range meta {
			switch {
			case math.Abs(m.Score-capValue) < 1e-9:
				capped++
			case math.Abs(m.Score-secondValue) < 1e-9:
				// second occurrence
			default:
				first = m.Score
			}
		}
		assert.Equal(t, 2, capped, "two capped occurrences at s=%v", s)
		assert.GreaterOrEqual(t, capValue, first, "cap below first occurrence at s=%v", s)
	}
}

// A hit with score zero contributes nothing to path ranking order.
func TestZeroScoreHitDoesNotChangeRanking(t *testing.T) {
	base := []payload.SymbolPayload{
		singleSite("Alpha", "a.go", "function", true, 0.8),
		singleSite("Beta", "b.go", "struct", false, 0.6),
	}

	withZero := append([]payload.SymbolPayload{}, base...)
	withZero = append(withZero, singleSite("Gamma", "a.go", "function", true, 0))

	before := RankSymbolPayloads(base)
	after := RankSymbolPayloads(withZero)

	require.Len(t, before, 2)
	require.Len(t, after, 2)
	for i := range before {
		assert.Equal(t, before[i].Path, after[i].Path)
		assert.InDelta(t, before[i].Score, after[i].Score, 1e-9)
	}
}

func TestPathsSortedByScoreDescending(t *testing.T) {
	payloads := []payload.SymbolPayload{
		singleSite("low", "low.go", "variable", false, 0.2),
		singleSite("high", "high.go", "function", true, 0.95),
		singleSite("mid", "mid.go", "struct", false, 0.5),
	}

	ranked := RankSymbolPayloads(payloads)
	require.Len(t, ranked, 3)
	assert.Equal(t, "high.go", ranked[0].Path)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
}

func TestExtractMetaSortedPerPath(t *testing.T) {
	p := payload.SymbolPayload{
		RepoName:      "acme/widgets",
		Symbol:        "Widget",
		SymbolTypes:   []string{"variable", "function"},
		LangIDs:       []string{"Go", "Go"},
		IsGlobals:     []bool{false, true},
		StartBytes:    []int64{5, 50},
		EndBytes:      []int64{8, 56},
		RelativePaths: []string{"w.go", "w.go"},
		NodeKinds:     []string{"ref", "def"},
		Score:         0.7,
	}

	ranked := RankSymbolPayloads([]payload.SymbolPayload{p})
	require.Len(t, ranked, 1)
	meta := ranked[0].CodeExtractMeta
	require.Len(t, meta, 2)
	assert.GreaterOrEqual(t, meta[0].Score, meta[1].Score)
}

func TestSimilarSymbolBonus(t *testing.T) {
	// "Foobar" contains "Foo": the earlier payload gets a substring bonus
	with := RankSymbolPayloads([]payload.SymbolPayload{
		singleSite("Foobar", "a.go", "function", false, 0.5),
		singleSite("Foo", "b.go", "function", false, 0.5),
	})
	without := RankSymbolPayloads([]payload.SymbolPayload{
		singleSite("Foobar", "a.go", "function", false, 0.5),
		singleSite("Quux", "b.go", "function", false, 0.5),
	})

	var withScore, withoutScore float64
	for _, r := range with {
		if r.Path == "a.go" {
			withScore = r.Score
		}
	}
	for _, r := range without {
		if r.Path == "a.go" {
			withoutScore = r.Score
		}
	}
	assert.Greater(t, withScore, withoutScore)
}
