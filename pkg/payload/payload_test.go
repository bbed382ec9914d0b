package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPayloadRoundTrip(t *testing.T) {
	p := ChunkPayload{
		RepoName:     "acme/widgets",
		RelativePath: "src/lib.rs",
		Lang:         "Rust",
		ContentHash:  "abc123",
		Text:         "fn main() {}",
		StartLine:    10,
		EndLine:      12,
		StartByte:    100,
		EndByte:      140,
	}

	rec := p.ToRecord()
	got, err := ChunkFromRecord("id-1", rec, []float32{0.1, 0.2}, 0.87)
	require.NoError(t, err)

	assert.True(t, p.Equal(got))
	assert.Equal(t, "id-1", got.ID)
	assert.InDelta(t, 0.87, got.Score, 1e-6)
}

func TestChunkPayloadEqualIgnoresTransport(t *testing.T) {
	a := ChunkPayload{RepoName: "r", Text: "x", ID: "1", Score: 0.5}
	b := ChunkPayload{RepoName: "r", Text: "x", ID: "2", Score: 0.9, Embedding: []float32{1}}

	assert.True(t, a.Equal(b))

	b.Text = "y"
	assert.False(t, a.Equal(b))
}

func TestChunkFromRecordRejectsBadTypes(t *testing.T) {
	rec := ChunkPayload{}.ToRecord()
	rec["start_line"] = "not a number"

	_, err := ChunkFromRecord("id", rec, nil, 0)
	assert.ErrorContains(t, err, "start_line")
}

func validSymbolPayload() SymbolPayload {
	return SymbolPayload{
		RepoName:      "acme/widgets",
		Symbol:        "Foo",
		SymbolTypes:   []string{"function", "struct"},
		LangIDs:       []string{"Go", "Go"},
		IsGlobals:     []bool{true, false},
		StartBytes:    []int64{10, 90},
		EndBytes:      []int64{13, 93},
		RelativePaths: []string{"a.go", "b.go"},
		NodeKinds:     []string{"def", "ref"},
	}
}

func TestSymbolPayloadRoundTrip(t *testing.T) {
	p := validSymbolPayload()

	rec := p.ToRecord()
	got, err := SymbolFromRecord("id-2", rec, nil, 0.42)
	require.NoError(t, err)

	assert.Equal(t, p.Symbol, got.Symbol)
	assert.Equal(t, p.SymbolTypes, got.SymbolTypes)
	assert.Equal(t, p.RelativePaths, got.RelativePaths)
	assert.Equal(t, 2, got.Sites())
	assert.InDelta(t, 0.42, got.Score, 1e-6)
}

func TestSymbolPayloadValidatesParallelArrays(t *testing.T) {
	p := validSymbolPayload()
	p.IsGlobals = p.IsGlobals[:1]

	err := p.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "is_globals")

	rec := p.ToRecord()
	_, err = SymbolFromRecord("id", rec, nil, 0)
	assert.Error(t, err)
}

func TestSymbolFromRecordUntypedLists(t *testing.T) {
	// records decoded from JSON arrive as []any
	rec := map[string]any{
		"repo_name":     "r",
		"symbol":        "Bar",
		"symbol_type":   []any{"function"},
		"lang":          []any{"Go"},
		"is_global":     []any{true},
		"start_byte":    []any{float64(5)},
		"end_byte":      []any{float64(8)},
		"relative_path": []any{"x.go"},
		"node_kind":     []any{"def"},
	}

	got, err := SymbolFromRecord("id", rec, nil, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, got.StartBytes)
	assert.Equal(t, []bool{true}, got.IsGlobals)
}
