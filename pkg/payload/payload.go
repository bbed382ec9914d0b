// Package payload defines the records stored in the vector database and
// their codecs. Records travel as flat field maps; decoding validates shape
// instead of trusting the store.
package payload

import (
	"fmt"
)

// Embedding is a dense vector produced by the embedding model.
type Embedding = []float32

// ChunkPayload is the per-code-chunk record in the chunk collection.
//
// ID, Embedding and Score are transport-level attributes: they are excluded
// from logical identity and from Equal.
type ChunkPayload struct {
	RepoName     string `json:"repo_name"`
	RelativePath string `json:"relative_path"`
	Lang         string `json:"lang"`
	ContentHash  string `json:"content_hash"`
	Text         string `json:"text"`
	StartLine    int64  `json:"start_line"`
	EndLine      int64  `json:"end_line"`
	StartByte    int64  `json:"start_byte"`
	EndByte      int64  `json:"end_byte"`

	ID        string    `json:"-"`
	Embedding Embedding `json:"-"`
	Score     float32   `json:"-"`
}

// Equal compares logical identity, ignoring id, embedding and score.
func (p ChunkPayload) Equal(other ChunkPayload) bool {
	return p.RepoName == other.RepoName &&
		p.RelativePath == other.RelativePath &&
		p.Lang == other.Lang &&
		p.ContentHash == other.ContentHash &&
		p.Text == other.Text &&
		p.StartLine == other.StartLine &&
		p.EndLine == other.EndLine &&
		p.StartByte == other.StartByte &&
		p.EndByte == other.EndByte
}

// ToRecord flattens the payload into the field map consumed by the vector
// store.
func (p ChunkPayload) ToRecord() map[string]any {
	return map[string]any{
		"repo_name":     p.RepoName,
		"relative_path": p.RelativePath,
		"lang":          p.Lang,
		"content_hash":  p.ContentHash,
		"snippet":       p.Text,
		"start_line":    p.StartLine,
		"end_line":      p.EndLine,
		"start_byte":    p.StartByte,
		"end_byte":      p.EndByte,
	}
}

// ChunkFromRecord rebuilds a payload from a stored record, attaching the
// similarity score from the search hit.
func ChunkFromRecord(id string, rec map[string]any, embedding Embedding, score float32) (ChunkPayload, error) {
	d := decoder{rec: rec}
	p := ChunkPayload{
		RepoName:     d.str("repo_name"),
		RelativePath: d.str("relative_path"),
		Lang:         d.str("lang"),
		ContentHash:  d.str("content_hash"),
		Text:         d.str("snippet"),
		StartLine:    d.i64("start_line"),
		EndLine:      d.i64("end_line"),
		StartByte:    d.i64("start_byte"),
		EndByte:      d.i64("end_byte"),

		ID:        id,
		Embedding: embedding,
		Score:     score,
	}
	if d.err != nil {
		return ChunkPayload{}, fmt.Errorf("decoding chunk payload: %w", d.err)
	}
	return p, nil
}

// SymbolPayload aggregates every site of one symbol within a repository. The
// per-site attributes are parallel arrays of equal length.
type SymbolPayload struct {
	RepoName string `json:"repo_name"`
	Symbol   string `json:"symbol"`

	SymbolTypes   []string `json:"symbol_types"`
	LangIDs       []string `json:"lang_ids"`
	IsGlobals     []bool   `json:"is_globals"`
	StartBytes    []int64  `json:"start_bytes"`
	EndBytes      []int64  `json:"end_bytes"`
	RelativePaths []string `json:"relative_paths"`
	NodeKinds     []string `json:"node_kinds"`

	ID        string    `json:"-"`
	Embedding Embedding `json:"-"`
	Score     float32   `json:"-"`
}

// Validate enforces the parallel-array invariant.
func (p SymbolPayload) Validate() error {
	n := len(p.RelativePaths)
	for name, l := range map[string]int{
		"symbol_types": len(p.SymbolTypes),
		"lang_ids":     len(p.LangIDs),
		"is_globals":   len(p.IsGlobals),
		"start_bytes":  len(p.StartBytes),
		"end_bytes":    len(p.EndBytes),
		"node_kinds":   len(p.NodeKinds),
	} {
		if l != n {
			return fmt.Errorf("symbol payload %q: %s has %d entries, want %d", p.Symbol, name, l, n)
		}
	}
	return nil
}

// Sites is the number of occurrences aggregated in this payload.
func (p SymbolPayload) Sites() int {
	return len(p.RelativePaths)
}

// ToRecord flattens the payload into the field map consumed by the vector
// store.
func (p SymbolPayload) ToRecord() map[string]any {
	return map[string]any{
		"repo_name":     p.RepoName,
		"symbol":        p.Symbol,
		"symbol_type":   p.SymbolTypes,
		"lang":          p.LangIDs,
		"is_global":     p.IsGlobals,
		"start_byte":    p.StartBytes,
		"end_byte":      p.EndBytes,
		"relative_path": p.RelativePaths,
		"node_kind":     p.NodeKinds,
	}
}

// SymbolFromRecord rebuilds a payload from a stored record and validates the
// parallel-array invariant before returning it.
func SymbolFromRecord(id string, rec map[string]any, embedding Embedding, score float32) (SymbolPayload, error) {
	d := decoder{rec: rec}
	p := SymbolPayload{
		RepoName: d.str("repo_name"),
		Symbol:   d.str("symbol"),

		SymbolTypes:   d.strs("symbol_type"),
		LangIDs:       d.strs("lang"),
		IsGlobals:     d.bools("is_global"),
		StartBytes:    d.i64s("start_byte"),
		EndBytes:      d.i64s("end_byte"),
		RelativePaths: d.strs("relative_path"),
		NodeKinds:     d.strs("node_kind"),

		ID:        id,
		Embedding: embedding,
		Score:     score,
	}
	if d.err != nil {
		return SymbolPayload{}, fmt.Errorf("decoding symbol payload: %w", d.err)
	}
	if err := p.Validate(); err != nil {
		return SymbolPayload{}, err
	}
	return p, nil
}

// decoder reads typed fields out of a record map, remembering the first
// failure so call sites stay flat.
type decoder struct {
	rec map[string]any
	err error
}

func (d *decoder) fail(key string, v any, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("field %q: got %T, want %s", key, v, want)
	}
}

func (d *decoder) str(key string) string {
	v, ok := d.rec[key]
	if !ok {
		d.fail(key, nil, "string")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, v, "string")
		return ""
	}
	return s
}

func (d *decoder) i64(key string) int64 {
	v, ok := d.rec[key]
	if !ok {
		d.fail(key, nil, "integer")
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		d.fail(key, v, "integer")
		return 0
	}
}

func (d *decoder) strs(key string) []string {
	switch v := d.rec[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				d.fail(key, e, "string list")
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		d.fail(key, v, "string list")
		return nil
	}
}

func (d *decoder) bools(key string) []bool {
	switch v := d.rec[key].(type) {
	case []bool:
		return v
	case []any:
		out := make([]bool, 0, len(v))
		for _, e := range v {
			b, ok := e.(bool)
			if !ok {
				d.fail(key, e, "bool list")
				return nil
			}
			out = append(out, b)
		}
		return out
	default:
		d.fail(key, v, "bool list")
		return nil
	}
}

func (d *decoder) i64s(key string) []int64 {
	switch v := d.rec[key].(type) {
	case []int64:
		return v
	case []any:
		out := make([]int64, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case int64:
				out = append(out, n)
			case float64:
				out = append(out, int64(n))
			default:
				d.fail(key, e, "integer list")
				return nil
			}
		}
		return out
	default:
		d.fail(key, v, "integer list")
		return nil
	}
}
