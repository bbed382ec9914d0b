package scopegraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codeatlas/codeatlas/pkg/languages"
	"github.com/codeatlas/codeatlas/pkg/textspan"
)

// Build parses src with the language's tree-sitter grammar, runs its scope
// query and folds the captures into a scope graph. Languages without a scope
// query produce Empty.
//
// A fresh parser is created per call: the underlying tree-sitter library is
// not safe for concurrent use from a shared parser.
func Build(ctx context.Context, src []byte, cfg *languages.Config) (SymbolLocations, error) {
	if !cfg.Supported() {
		return Empty(), nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(cfg.Grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return Empty(), fmt.Errorf("parsing source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return Empty(), nil
	}

	query, err := sitter.NewQuery([]byte(cfg.ScopeQuery), cfg.Grammar())
	if err != nil {
		return Empty(), fmt.Errorf("compiling scope query: %w", err)
	}
	defer query.Close()

	graph := New(nodeRange(root), languages.IndexOf(cfg))

	var caps []capture
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			name := query.CaptureNameForId(c.Index)
			parsed, err := parseCaptureName(name, cfg.Namespaces)
			if err != nil {
				return Empty(), err
			}
			parsed.rng = nodeRange(c.Node)
			caps = append(caps, parsed)
		}
	}

	insertCaptures(graph, caps, src)

	return TreeSitter(graph), nil
}

type captureKind int

const (
	captureScope captureKind = iota
	captureDef
	captureImport
	captureRef
)

type captureScoping int

const (
	scopingLocal captureScoping = iota
	scopingHoist
	scopingGlobal
)

type capture struct {
	kind     captureKind
	scoping  captureScoping
	symbolID *languages.SymbolID
	rng      textspan.TextRange
}

// parseCaptureName interprets the `<scoping>.<kind>[.<symbol>]` capture
// convention shared by all scope queries.
func parseCaptureName(name string, namespaces languages.Namespaces) (capture, error) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) < 2 {
		return capture{}, fmt.Errorf("malformed capture name %q", name)
	}

	var parsed capture

	switch parts[0] {
	case "local":
		parsed.scoping = scopingLocal
	case "hoist":
		parsed.scoping = scopingHoist
	case "global":
		parsed.scoping = scopingGlobal
	default:
		return capture{}, fmt.Errorf("unknown scoping in capture name %q", name)
	}

	switch parts[1] {
	case "scope":
		parsed.kind = captureScope
	case "definition":
		parsed.kind = captureDef
	case "import":
		parsed.kind = captureImport
	case "reference":
		parsed.kind = captureRef
	default:
		return capture{}, fmt.Errorf("unknown kind in capture name %q", name)
	}

	if len(parts) == 3 {
		if id, ok := namespaces.SymbolIDOf(parts[2]); ok {
			parsed.symbolID = &id
		}
	}

	return parsed, nil
}

// insertCaptures folds captures into the graph in dependency order: scopes
// first (parents before children, so containment attaches correctly), then
// definitions and imports, references last so resolution sees every
// candidate.
func insertCaptures(g *ScopeGraph, caps []capture, src []byte) {
	var scopes, defs, imports, refs []capture
	for _, c := range caps {
		switch c.kind {
		case captureScope:
			scopes = append(scopes, c)
		case captureDef:
			defs = append(defs, c)
		case captureImport:
			imports = append(imports, c)
		case captureRef:
			refs = append(refs, c)
		}
	}

	sort.SliceStable(scopes, func(i, j int) bool {
		if scopes[i].rng.Start.Byte != scopes[j].rng.Start.Byte {
			return scopes[i].rng.Start.Byte < scopes[j].rng.Start.Byte
		}
		return scopes[i].rng.End.Byte > scopes[j].rng.End.Byte
	})
	for _, s := range scopes {
		g.InsertLocalScope(s.rng)
	}

	for _, d := range defs {
		switch d.scoping {
		case scopingHoist:
			g.InsertHoistedDef(d.rng, d.symbolID)
		case scopingGlobal:
			g.InsertGlobalDef(d.rng, d.symbolID)
		default:
			g.InsertLocalDef(d.rng, d.symbolID)
		}
	}

	for _, i := range imports {
		g.InsertLocalImport(i.rng)
	}

	for _, r := range refs {
		g.InsertRef(r.rng, r.symbolID, src)
	}
}

func nodeRange(n *sitter.Node) textspan.TextRange {
	return textspan.TextRange{
		Start: textspan.Point{
			Byte:   int(n.StartByte()),
			Line:   int(n.StartPoint().Row),
			Column: int(n.StartPoint().Column),
		},
		End: textspan.Point{
			Byte:   int(n.EndByte()),
			Line:   int(n.EndPoint().Row),
			Column: int(n.EndPoint().Column),
		},
	}
}
