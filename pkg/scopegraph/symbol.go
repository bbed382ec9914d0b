package scopegraph

import (
	"encoding/json"
	"fmt"

	"github.com/codeatlas/codeatlas/pkg/languages"
	"github.com/codeatlas/codeatlas/pkg/textspan"
)

// SymbolLocations is the collection of symbol locations for a single file:
// either a tree-sitter powered scope graph, or nothing for files whose
// language has no scope support.
type SymbolLocations struct {
	graph *ScopeGraph
}

// TreeSitter wraps a scope graph.
func TreeSitter(g *ScopeGraph) SymbolLocations {
	return SymbolLocations{graph: g}
}

// Empty is the symbol-locations value for unsupported files; it disables
// scope-aware extraction.
func Empty() SymbolLocations {
	return SymbolLocations{}
}

// ScopeGraph returns the underlying graph, or nil for Empty.
func (s SymbolLocations) ScopeGraph() *ScopeGraph {
	return s.graph
}

// The persisted form is a tagged envelope so the Empty variant survives a
// round trip. The payload bytes are a stable contract: they live inside the
// full-text store's symbol_locations field.
type symbolLocationsBlob struct {
	Kind  string      `json:"kind"`
	Graph *ScopeGraph `json:"graph,omitempty"`
}

const (
	blobKindTreeSitter = "tree_sitter"
	blobKindEmpty      = "empty"
)

// Encode serializes into the stable blob format.
func (s SymbolLocations) Encode() ([]byte, error) {
	blob := symbolLocationsBlob{Kind: blobKindEmpty}
	if s.graph != nil {
		blob.Kind = blobKindTreeSitter
		blob.Graph = s.graph
	}
	return json.Marshal(blob)
}

// DecodeSymbolLocations parses a blob produced by Encode. Empty input
// decodes to Empty.
func DecodeSymbolLocations(raw []byte) (SymbolLocations, error) {
	if len(raw) == 0 {
		return Empty(), nil
	}
	var blob symbolLocationsBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Empty(), fmt.Errorf("decoding symbol locations: %w", err)
	}
	switch blob.Kind {
	case blobKindTreeSitter:
		if blob.Graph == nil {
			return Empty(), fmt.Errorf("decoding symbol locations: %s blob without graph", blobKindTreeSitter)
		}
		return TreeSitter(blob.Graph), nil
	case blobKindEmpty, "":
		return Empty(), nil
	default:
		return Empty(), fmt.Errorf("decoding symbol locations: unknown kind %q", blob.Kind)
	}
}

// List iterates over the ranges of all definitions, imports and references.
func (s SymbolLocations) List() []textspan.TextRange {
	if s.graph == nil {
		return nil
	}
	return s.graph.HoverableRanges()
}

// SymbolMetadata describes one definition or import site, ready to be
// aggregated into a symbol payload.
type SymbolMetadata struct {
	SymbolText   string
	SymbolType   string
	NodeKind     string
	IsGlobal     bool
	Range        textspan.TextRange
	RepoName     string
	RelativePath string
	LanguageID   string
}

// ListMetadata yields metadata for every definition and import in the file.
// SymbolType is the namespace member name from the language table
// ("function", "struct", ...); defs without a symbol id and all imports
// report "unknown".
func (s SymbolLocations) ListMetadata(src []byte, repoName, langID, relativePath string) []SymbolMetadata {
	g := s.graph
	if g == nil {
		return nil
	}

	var namespaces languages.Namespaces
	if cfg := languages.ByIndex(g.LangID); cfg != nil {
		namespaces = cfg.Namespaces
	}

	var out []SymbolMetadata
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != NodeDef && n.Kind != NodeImport {
			continue
		}

		symbolType := "unknown"
		if n.SymbolID != nil && namespaces != nil {
			if name := namespaces.Name(*n.SymbolID); name != "" {
				symbolType = name
			}
		}

		out = append(out, SymbolMetadata{
			SymbolText:   nodeName(n.Range, src),
			SymbolType:   symbolType,
			NodeKind:     n.Kind.String(),
			IsGlobal:     g.IsTopLevel(NodeIndex(i)),
			Range:        n.Range,
			RepoName:     repoName,
			RelativePath: relativePath,
			LanguageID:   langID,
		})
	}
	return out
}
