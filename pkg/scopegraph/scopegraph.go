// Package scopegraph builds and queries per-file lexical scope graphs.
//
// A scope graph is a directed graph over four node kinds (scopes,
// definitions, imports, references) and five edge kinds. Scopes form a tree
// under range containment rooted at a node spanning the whole file;
// definitions and imports attach to their enclosing scope; references point
// at every definition or import they may resolve to. The graph is built once
// from an immutable source buffer and is read-only afterwards, so readers
// never need locking.
package scopegraph

import (
	"log/slog"

	"github.com/codeatlas/codeatlas/pkg/languages"
	"github.com/codeatlas/codeatlas/pkg/textspan"
)

// NodeIndex addresses a node inside a graph's arena.
type NodeIndex int

// NodeKind discriminates the node variants.
type NodeKind int

const (
	NodeScope NodeKind = iota
	NodeDef
	NodeImport
	NodeRef
)

func (k NodeKind) String() string {
	switch k {
	case NodeScope:
		return "scope"
	case NodeDef:
		return "def"
	case NodeImport:
		return "import"
	case NodeRef:
		return "ref"
	}
	return "unknown"
}

// Node is one entry in the graph arena. SymbolID is set only on definitions
// and references whose symbol kind is known; a nil SymbolID matches every
// namespace during resolution.
type Node struct {
	Kind     NodeKind            `json:"kind"`
	Range    textspan.TextRange  `json:"range"`
	SymbolID *languages.SymbolID `json:"symbol_id,omitempty"`
}

// EdgeKind describes the relation between two nodes.
type EdgeKind int

const (
	// ScopeToScope connects a nested scope to its enclosing scope.
	ScopeToScope EdgeKind = iota
	// DefToScope connects a definition to the scope it belongs to.
	DefToScope
	// ImportToScope connects an import to the scope it belongs to.
	ImportToScope
	// RefToDef connects a reference to a definition it may resolve to.
	RefToDef
	// RefToImport connects a reference to an import it may resolve to.
	RefToImport
)

func (k EdgeKind) String() string {
	switch k {
	case ScopeToScope:
		return "ScopeToScope"
	case DefToScope:
		return "DefToScope"
	case ImportToScope:
		return "ImportToScope"
	case RefToDef:
		return "RefToDef"
	case RefToImport:
		return "RefToImport"
	}
	return "unknown"
}

// Edge is a directed edge between two arena indices.
type Edge struct {
	Source NodeIndex `json:"source"`
	Target NodeIndex `json:"target"`
	Kind   EdgeKind  `json:"kind"`
}

// ScopeGraph is an arena-and-index representation of a single file's scope
// structure. Fields are exported for serialization; mutate only through the
// insert methods, and only during construction.
type ScopeGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// RootIdx points at the scope node that spans the entire file.
	RootIdx NodeIndex `json:"root_idx"`

	// LangID indexes languages.All for the language of this graph.
	LangID int `json:"lang_id"`
}

// New creates a graph containing only the root scope covering rootRange.
func New(rootRange textspan.TextRange, langID int) *ScopeGraph {
	g := &ScopeGraph{LangID: langID}
	g.RootIdx = g.addNode(Node{Kind: NodeScope, Range: rootRange})
	return g
}

func (g *ScopeGraph) addNode(n Node) NodeIndex {
	g.Nodes = append(g.Nodes, n)
	return NodeIndex(len(g.Nodes) - 1)
}

func (g *ScopeGraph) addEdge(src, dst NodeIndex, kind EdgeKind) {
	g.Edges = append(g.Edges, Edge{Source: src, Target: dst, Kind: kind})
}

// Node returns the node at idx, or nil when idx is out of range.
func (g *ScopeGraph) Node(idx NodeIndex) *Node {
	if idx < 0 || int(idx) >= len(g.Nodes) {
		return nil
	}
	return &g.Nodes[idx]
}

// sources collects nodes with an edge of the given kind pointing at dst.
func (g *ScopeGraph) sources(dst NodeIndex, kind EdgeKind) []NodeIndex {
	var out []NodeIndex
	for _, e := range g.Edges {
		if e.Target == dst && e.Kind == kind {
			out = append(out, e.Source)
		}
	}
	return out
}

// target returns the first edge target of the given kind leaving src.
func (g *ScopeGraph) target(src NodeIndex, kind EdgeKind) (NodeIndex, bool) {
	for _, e := range g.Edges {
		if e.Source == src && e.Kind == kind {
			return e.Target, true
		}
	}
	return 0, false
}

// InsertLocalScope attaches a new scope under the smallest scope containing
// it. Scopes whose containment cannot be established are dropped.
func (g *ScopeGraph) InsertLocalScope(rng textspan.TextRange) {
	parent, ok := g.scopeByRange(rng, g.RootIdx)
	if !ok {
		return
	}
	idx := g.addNode(Node{Kind: NodeScope, Range: rng})
	g.addEdge(idx, parent, ScopeToScope)
}

// InsertLocalDef attaches a definition to its enclosing scope.
func (g *ScopeGraph) InsertLocalDef(rng textspan.TextRange, symbolID *languages.SymbolID) {
	scope, ok := g.scopeByRange(rng, g.RootIdx)
	if !ok {
		return
	}
	idx := g.addNode(Node{Kind: NodeDef, Range: rng, SymbolID: symbolID})
	g.addEdge(idx, scope, DefToScope)
}

// InsertHoistedDef attaches a definition to the parent of its enclosing
// scope when such a parent exists, and to the enclosing scope otherwise. No
// definition is ever lost to hoisting.
func (g *ScopeGraph) InsertHoistedDef(rng textspan.TextRange, symbolID *languages.SymbolID) {
	scope, ok := g.scopeByRange(rng, g.RootIdx)
	if !ok {
		return
	}
	target := scope
	if parent, ok := g.ParentScope(scope); ok {
		target = parent
	}
	idx := g.addNode(Node{Kind: NodeDef, Range: rng, SymbolID: symbolID})
	g.addEdge(idx, target, DefToScope)
}

// InsertGlobalDef attaches a definition directly to the root scope.
func (g *ScopeGraph) InsertGlobalDef(rng textspan.TextRange, symbolID *languages.SymbolID) {
	idx := g.addNode(Node{Kind: NodeDef, Range: rng, SymbolID: symbolID})
	g.addEdge(idx, g.RootIdx, DefToScope)
}

// InsertLocalImport attaches an import to its enclosing scope.
func (g *ScopeGraph) InsertLocalImport(rng textspan.TextRange) {
	scope, ok := g.scopeByRange(rng, g.RootIdx)
	if !ok {
		return
	}
	idx := g.addNode(Node{Kind: NodeImport, Range: rng})
	g.addEdge(idx, scope, ImportToScope)
}

// InsertRef resolves a reference against every same-name, namespace-
// compatible definition and import reachable by walking from the enclosing
// scope to the root. When at least one candidate exists the reference node
// is inserted with one edge per candidate; otherwise it is not inserted at
// all.
func (g *ScopeGraph) InsertRef(rng textspan.TextRange, symbolID *languages.SymbolID, src []byte) {
	var possibleDefs, possibleImports []NodeIndex

	name := nodeName(rng, src)

	if localScope, ok := g.scopeByRange(rng, g.RootIdx); ok {
		for _, scope := range g.scopeStack(localScope) {
			for _, defIdx := range g.sources(scope, DefToScope) {
				def := g.Nodes[defIdx]
				if nodeName(def.Range, src) != name {
					continue
				}
				// A missing symbol id on either side matches all
				// namespaces.
				if def.SymbolID != nil && symbolID != nil &&
					def.SymbolID.NamespaceIdx != symbolID.NamespaceIdx {
					continue
				}
				possibleDefs = append(possibleDefs, defIdx)
			}
			for _, impIdx := range g.sources(scope, ImportToScope) {
				if nodeName(g.Nodes[impIdx].Range, src) == name {
					possibleImports = append(possibleImports, impIdx)
				}
			}
		}
	}

	if len(possibleDefs) == 0 && len(possibleImports) == 0 {
		return
	}

	refIdx := g.addNode(Node{Kind: NodeRef, Range: rng, SymbolID: symbolID})
	for _, defIdx := range possibleDefs {
		g.addEdge(refIdx, defIdx, RefToDef)
	}
	for _, impIdx := range possibleImports {
		g.addEdge(refIdx, impIdx, RefToImport)
	}
}

func nodeName(rng textspan.TextRange, src []byte) string {
	if rng.Start.Byte < 0 || rng.End.Byte > len(src) || rng.Start.Byte > rng.End.Byte {
		return ""
	}
	return string(src[rng.Start.Byte:rng.End.Byte])
}

// scopeByRange finds the smallest scope that encompasses rng, narrowing down
// from start.
func (g *ScopeGraph) scopeByRange(rng textspan.TextRange, start NodeIndex) (NodeIndex, bool) {
	if !g.Nodes[start].Range.Contains(rng) {
		return 0, false
	}
	for _, child := range g.sources(start, ScopeToScope) {
		if hit, ok := g.scopeByRange(rng, child); ok {
			return hit, true
		}
	}
	return start, true
}

// scopeStack lists the scopes from start up to and including the root.
func (g *ScopeGraph) scopeStack(start NodeIndex) []NodeIndex {
	stack := []NodeIndex{start}
	current := start
	for {
		parent, ok := g.ParentScope(current)
		if !ok {
			break
		}
		stack = append(stack, parent)
		current = parent
	}
	return stack
}

// ParentScope returns the enclosing scope of a scope node.
func (g *ScopeGraph) ParentScope(idx NodeIndex) (NodeIndex, bool) {
	if g.Nodes[idx].Kind != NodeScope {
		return 0, false
	}
	return g.target(idx, ScopeToScope)
}

// NodeByRange finds the smallest definition, reference or import whose range
// fully contains [startByte, endByte).
func (g *ScopeGraph) NodeByRange(startByte, endByte int) (NodeIndex, bool) {
	return g.smallestContaining(startByte, endByte, func(n *Node) bool {
		return n.Kind == NodeDef || n.Kind == NodeRef || n.Kind == NodeImport
	})
}

// SmallestEncompassingNode finds the smallest node of any kind whose range
// fully contains [startByte, endByte).
func (g *ScopeGraph) SmallestEncompassingNode(startByte, endByte int) (NodeIndex, bool) {
	return g.smallestContaining(startByte, endByte, func(*Node) bool { return true })
}

func (g *ScopeGraph) smallestContaining(startByte, endByte int, keep func(*Node) bool) (NodeIndex, bool) {
	best := NodeIndex(-1)
	bestSize := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !keep(n) || !n.Range.ContainsBytes(startByte, endByte) {
			continue
		}
		if size := n.Range.Size(); best < 0 || size < bestSize {
			best, bestSize = NodeIndex(i), size
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// ValueOfDefinition picks the node that represents the body or value of a
// definition: the smallest scope that encompasses the definition and starts
// on its line, or failing that the largest scope starting on that line.
func (g *ScopeGraph) ValueOfDefinition(defIdx NodeIndex) (NodeIndex, bool) {
	defLine := g.Nodes[defIdx].Range.Start.Line

	if idx, ok := g.scopeByRange(g.Nodes[defIdx].Range, g.RootIdx); ok {
		if g.Nodes[idx].Range.Start.Line == defLine {
			return idx, true
		}
	}

	best := NodeIndex(-1)
	bestSize := -1
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != NodeScope || n.Range.Start.Line != defLine {
			continue
		}
		if size := n.Range.Size(); size > bestSize {
			best, bestSize = NodeIndex(i), size
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// NodeByPosition finds a definition or reference sitting on the given
// 0-based line and spanning the given column.
func (g *ScopeGraph) NodeByPosition(line, column int) (NodeIndex, bool) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != NodeDef && n.Kind != NodeRef {
			continue
		}
		r := n.Range
		if r.Start.Line == line && r.End.Line == line &&
			r.Start.Column <= column && column <= r.End.Column {
			return NodeIndex(i), true
		}
	}
	return 0, false
}

// HoverableRanges lists the ranges of every definition, reference and
// import, the spans a UI can attach popups to.
func (g *ScopeGraph) HoverableRanges() []textspan.TextRange {
	var out []textspan.TextRange
	for i := range g.Nodes {
		switch g.Nodes[i].Kind {
		case NodeDef, NodeRef, NodeImport:
			out = append(out, g.Nodes[i].Range)
		}
	}
	return out
}

// Definitions lists the definitions a reference may resolve to.
func (g *ScopeGraph) Definitions(refIdx NodeIndex) []NodeIndex {
	var out []NodeIndex
	for _, e := range g.Edges {
		if e.Source == refIdx && e.Kind == RefToDef {
			out = append(out, e.Target)
		}
	}
	return out
}

// Imports lists the imports a reference may resolve to.
func (g *ScopeGraph) Imports(refIdx NodeIndex) []NodeIndex {
	var out []NodeIndex
	for _, e := range g.Edges {
		if e.Source == refIdx && e.Kind == RefToImport {
			out = append(out, e.Target)
		}
	}
	return out
}

// References lists the references resolving to a definition or import.
func (g *ScopeGraph) References(defIdx NodeIndex) []NodeIndex {
	var out []NodeIndex
	for _, e := range g.Edges {
		if e.Target == defIdx && (e.Kind == RefToDef || e.Kind == RefToImport) {
			out = append(out, e.Source)
		}
	}
	return out
}

// IsTopLevel reports whether a node attaches directly to the root scope.
func (g *ScopeGraph) IsTopLevel(idx NodeIndex) bool {
	for _, e := range g.Edges {
		if e.Source == idx && e.Target == g.RootIdx {
			return true
		}
	}
	return false
}

// IsDefinition reports whether the node is a definition.
func (g *ScopeGraph) IsDefinition(idx NodeIndex) bool {
	return g.Nodes[idx].Kind == NodeDef
}

// IsReference reports whether the node is a reference.
func (g *ScopeGraph) IsReference(idx NodeIndex) bool {
	return g.Nodes[idx].Kind == NodeRef
}

// IsScope reports whether the node is a scope.
func (g *ScopeGraph) IsScope(idx NodeIndex) bool {
	return g.Nodes[idx].Kind == NodeScope
}

// IsImport reports whether the node is an import.
func (g *ScopeGraph) IsImport(idx NodeIndex) bool {
	return g.Nodes[idx].Kind == NodeImport
}

// DebugDump logs the first n nodes with their incoming edges.
func (g *ScopeGraph) DebugDump(n int) {
	for i := 0; i < len(g.Nodes) && i < n; i++ {
		node := g.Nodes[i]
		slog.Debug("scope graph node",
			"idx", i,
			"kind", node.Kind.String(),
			"range", node.Range.String(),
			"incoming", len(g.sources(NodeIndex(i), ScopeToScope))+
				len(g.sources(NodeIndex(i), DefToScope))+
				len(g.sources(NodeIndex(i), ImportToScope)))
	}
}
