package scopegraph

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/languages"
	"github.com/codeatlas/codeatlas/pkg/textspan"
)

const dummyLangID = 0

// r builds a byte-only text range, assuming one byte per line.
func r(start, end int) textspan.TextRange {
	return textspan.TextRange{
		Start: textspan.Point{Byte: start, Line: start},
		End:   textspan.Point{Byte: end, Line: end},
	}
}

func symbolID(namespaceIdx, symbolIdx int) *languages.SymbolID {
	return &languages.SymbolID{NamespaceIdx: namespaceIdx, SymbolIdx: symbolIdx}
}

// edgeList renders the graph's edges in insertion order for compact
// assertions.
func edgeList(g *ScopeGraph) string {
	var b strings.Builder
	for _, e := range g.Edges {
		src := g.Nodes[e.Source].Range
		dst := g.Nodes[e.Target].Range
		fmt.Fprintf(&b, "%02d..%02d --%s-> %02d..%02d\n",
			src.Start.Byte, src.End.Byte, e.Kind, dst.Start.Byte, dst.End.Byte)
	}
	return b.String()
}

func TestInsertScopes(t *testing.T) {
	g := New(r(0, 20), dummyLangID)

	for _, s := range []textspan.TextRange{
		r(0, 10), r(11, 20), r(0, 5), r(6, 10), r(11, 15), r(16, 20),
	} {
		g.InsertLocalScope(s)
	}

	assert.Len(t, g.Nodes, 7)
	assert.Len(t, g.Edges, 6)

	assert.Equal(t, ""+
		"00..10 --ScopeToScope-> 00..20\n"+
		"11..20 --ScopeToScope-> 00..20\n"+
		"00..05 --ScopeToScope-> 00..10\n"+
		"06..10 --ScopeToScope-> 00..10\n"+
		"11..15 --ScopeToScope-> 11..20\n"+
		"16..20 --ScopeToScope-> 11..20\n",
		edgeList(g))
}

func TestInsertDefs(t *testing.T) {
	g := New(r(0, 20), dummyLangID)

	g.InsertLocalScope(r(0, 10))
	g.InsertLocalDef(r(1, 2), nil)
	g.InsertLocalDef(r(4, 5), nil)

	assert.Equal(t, ""+
		"00..10 --ScopeToScope-> 00..20\n"+
		"01..02 --DefToScope-> 00..10\n"+
		"04..05 --DefToScope-> 00..10\n",
		edgeList(g))
}

func TestInsertHoistedDefs(t *testing.T) {
	g := New(r(0, 20), dummyLangID)

	g.InsertLocalScope(r(0, 10))
	g.InsertLocalDef(r(1, 2), nil)
	// hoists from the inner scope to the root
	g.InsertHoistedDef(r(4, 5), nil)

	assert.Equal(t, ""+
		"00..10 --ScopeToScope-> 00..20\n"+
		"01..02 --DefToScope-> 00..10\n"+
		"04..05 --DefToScope-> 00..20\n",
		edgeList(g))
}

func TestInsertHoistedNoParent(t *testing.T) {
	g := New(r(0, 20), dummyLangID)

	// cannot hoist beyond the root
	g.InsertHoistedDef(r(1, 2), nil)

	assert.Equal(t, "01..02 --DefToScope-> 00..20\n", edgeList(g))
}

func TestExactlyOneRoot(t *testing.T) {
	g := New(r(0, 20), dummyLangID)
	g.InsertLocalScope(r(0, 10))
	g.InsertLocalScope(r(2, 8))
	g.InsertLocalScope(r(11, 20))

	rootless := 0
	for i := range g.Nodes {
		if g.Nodes[i].Kind != NodeScope {
			continue
		}
		if _, ok := g.ParentScope(NodeIndex(i)); !ok {
			rootless++
		}
	}
	assert.Equal(t, 1, rootless)
}

func TestInsertRef(t *testing.T) {
	g := New(r(0, 20), dummyLangID)

	src := []byte("foo\nfoo")

	g.InsertLocalDef(r(0, 3), nil)
	g.InsertRef(r(4, 7), nil, src)

	assert.Equal(t, ""+
		"00..03 --DefToScope-> 00..20\n"+
		"04..07 --RefToDef-> 00..03\n",
		edgeList(g))
}

func TestInsertRefNoCandidate(t *testing.T) {
	g := New(r(0, 20), dummyLangID)

	src := []byte("foo\nbar")

	g.InsertLocalDef(r(0, 3), nil)
	g.InsertRef(r(4, 7), nil, src)

	// no same-name candidate: the ref node is not inserted
	assert.Len(t, g.Nodes, 2)
}

func TestInsertRefNamespaced(t *testing.T) {
	// namespaces:
	// - 0: [ function, method, getter ]
	// - 1: [ var, const, static ]
	g := New(r(0, 50), dummyLangID)

	src := []byte("fn foo() {};\nvar foo;\nfoo();\nfoo + 1;\n[0; foo]")

	g.InsertLocalDef(r(3, 6), symbolID(0, 0))   // fn foo
	g.InsertLocalDef(r(17, 20), symbolID(1, 0)) // var foo
	g.InsertRef(r(22, 25), symbolID(0, 0), src) // foo()
	g.InsertRef(r(29, 32), symbolID(1, 0), src) // foo + 1
	g.InsertRef(r(42, 45), symbolID(1, 1), src) // [0; foo]

	assert.Equal(t, ""+
		"03..06 --DefToScope-> 00..50\n"+
		"17..20 --DefToScope-> 00..50\n"+
		"22..25 --RefToDef-> 03..06\n"+
		"29..32 --RefToDef-> 17..20\n"+
		"42..45 --RefToDef-> 17..20\n",
		edgeList(g))

	// namespace compatibility holds on every RefToDef edge
	for _, e := range g.Edges {
		if e.Kind != RefToDef {
			continue
		}
		ref := g.Nodes[e.Source]
		def := g.Nodes[e.Target]
		if ref.SymbolID != nil && def.SymbolID != nil {
			assert.Equal(t, def.SymbolID.NamespaceIdx, ref.SymbolID.NamespaceIdx)
		}
	}
}

func TestInsertRefNoNamespace(t *testing.T) {
	g := New(r(0, 50), dummyLangID)

	src := []byte("fn foo() {};\nvar foo;\n\nfoo + 1")

	g.InsertLocalDef(r(3, 6), symbolID(0, 0))
	g.InsertLocalDef(r(17, 20), symbolID(1, 0))
	// an unannotated ref resolves against both namespaces
	g.InsertRef(r(23, 26), nil, src)

	refIdx := NodeIndex(len(g.Nodes) - 1)
	assert.Len(t, g.Definitions(refIdx), 2)
}

func TestScopeByRangeMonotone(t *testing.T) {
	g := New(r(0, 100), dummyLangID)
	g.InsertLocalScope(r(0, 50))
	g.InsertLocalScope(r(10, 40))
	g.InsertLocalScope(r(20, 30))

	inner, ok := g.scopeByRange(r(22, 25), g.RootIdx)
	require.True(t, ok)
	outer, ok := g.scopeByRange(r(15, 45), g.RootIdx)
	require.True(t, ok)

	// the hit for the smaller query is contained in the hit for the larger
	assert.True(t, g.Nodes[outer].Range.Contains(g.Nodes[inner].Range))
}

func TestSmallestEncompassingNode(t *testing.T) {
	g := New(r(0, 100), dummyLangID)
	g.InsertLocalScope(r(0, 50))
	g.InsertLocalScope(r(10, 40))
	g.InsertLocalDef(r(15, 16), nil)

	idx, ok := g.SmallestEncompassingNode(15, 16)
	require.True(t, ok)
	node := g.Nodes[idx]
	assert.Equal(t, NodeDef, node.Kind)
	assert.True(t, node.Range.ContainsBytes(15, 16))

	// no smaller node also contains the query
	for i := range g.Nodes {
		if NodeIndex(i) == idx {
			continue
		}
		if g.Nodes[i].Range.ContainsBytes(15, 16) {
			assert.GreaterOrEqual(t, g.Nodes[i].Range.Size(), node.Range.Size())
		}
	}
}

// Scenario: `fn foo() { let x = 1; }` with root scope [0,23), inner scope
// [10,22) and def x at [15,16).
func TestScopeGraphBasic(t *testing.T) {
	src := "fn foo() { let x = 1; }"
	root := textspan.TextRange{
		Start: textspan.Point{Byte: 0},
		End:   textspan.Point{Byte: len(src)},
	}
	g := New(root, dummyLangID)

	inner := textspan.TextRange{
		Start: textspan.Point{Byte: 10, Column: 10},
		End:   textspan.Point{Byte: 22, Column: 22},
	}
	g.InsertLocalScope(inner)

	defX := textspan.TextRange{
		Start: textspan.Point{Byte: 15, Column: 15},
		End:   textspan.Point{Byte: 16, Column: 16},
	}
	g.InsertLocalDef(defX, nil)

	// x attaches to the inner scope
	defIdx := NodeIndex(len(g.Nodes) - 1)
	scope, ok := g.target(defIdx, DefToScope)
	require.True(t, ok)
	assert.Equal(t, inner, g.Nodes[scope].Range)

	// the smallest encompassing node of x's span is the def itself
	idx, ok := g.SmallestEncompassingNode(15, 16)
	require.True(t, ok)
	assert.Equal(t, defIdx, idx)

	// the value of the definition is the inner scope
	valueIdx, ok := g.ValueOfDefinition(defIdx)
	require.True(t, ok)
	assert.Equal(t, inner, g.Nodes[valueIdx].Range)
}

func TestHoverableRanges(t *testing.T) {
	g := New(r(0, 20), dummyLangID)
	src := []byte("foo\nfoo")

	g.InsertLocalScope(r(0, 10))
	g.InsertLocalDef(r(0, 3), nil)
	g.InsertLocalImport(r(8, 9))
	g.InsertRef(r(4, 7), nil, src)

	// defs, imports and refs are hoverable; scopes are not
	assert.Len(t, g.HoverableRanges(), 3)
}

func TestSymbolLocationsRoundTrip(t *testing.T) {
	g := New(r(0, 20), dummyLangID)
	g.InsertLocalScope(r(0, 10))
	g.InsertLocalDef(r(1, 2), symbolID(0, 2))

	raw, err := TreeSitter(g).Encode()
	require.NoError(t, err)

	decoded, err := DecodeSymbolLocations(raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.ScopeGraph())
	assert.Equal(t, g.Nodes, decoded.ScopeGraph().Nodes)
	assert.Equal(t, g.Edges, decoded.ScopeGraph().Edges)
	assert.Equal(t, g.RootIdx, decoded.ScopeGraph().RootIdx)

	// the empty variant survives too
	raw, err = Empty().Encode()
	require.NoError(t, err)
	decoded, err = DecodeSymbolLocations(raw)
	require.NoError(t, err)
	assert.Nil(t, decoded.ScopeGraph())

	decoded, err = DecodeSymbolLocations(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded.ScopeGraph())
}

func TestListMetadata(t *testing.T) {
	src := []byte("func Foo() {}\nvar bar int\n")

	g := New(textspan.TextRange{
		Start: textspan.Point{},
		End:   textspan.Point{Byte: len(src), Line: 2},
	}, 0) // lang 0 is Go in the registry

	// func Foo: a global definition, function namespace member
	fooID, ok := languages.All[0].Namespaces.SymbolIDOf("function")
	require.True(t, ok)
	g.InsertGlobalDef(textspan.TextRange{
		Start: textspan.Point{Byte: 5, Column: 5},
		End:   textspan.Point{Byte: 8, Column: 8},
	}, &fooID)

	varID, ok := languages.All[0].Namespaces.SymbolIDOf("variable")
	require.True(t, ok)
	g.InsertGlobalDef(textspan.TextRange{
		Start: textspan.Point{Byte: 18, Line: 1, Column: 4},
		End:   textspan.Point{Byte: 21, Line: 1, Column: 7},
	}, &varID)

	meta := TreeSitter(g).ListMetadata(src, "repo", "Go", "main.go")
	require.Len(t, meta, 2)

	assert.Equal(t, "Foo", meta[0].SymbolText)
	assert.Equal(t, "function", meta[0].SymbolType)
	assert.Equal(t, "def", meta[0].NodeKind)
	assert.True(t, meta[0].IsGlobal)
	assert.Equal(t, "repo", meta[0].RepoName)
	assert.Equal(t, "main.go", meta[0].RelativePath)

	assert.Equal(t, "bar", meta[1].SymbolText)
	assert.Equal(t, "variable", meta[1].SymbolType)
}
