// Package languages holds the static per-language configuration used by the
// scope-graph builder: tree-sitter grammars, scope queries and the namespace
// tables that make name resolution language-aware.
package languages

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// SymbolID is an opaque identifier for a symbol kind within a language.
// Two symbols can resolve to each other iff they live in the same namespace.
type SymbolID struct {
	NamespaceIdx int `json:"namespace_idx"`
	SymbolIdx    int `json:"symbol_idx"`
}

// Namespace is a grouping of symbol kinds that allow references among them.
// A variable can refer to other variables, but not to labels, for example.
type Namespace []string

// Namespaces is the full namespace table of a language.
type Namespaces []Namespace

// Name resolves the symbol-kind name of an id against the table. Returns ""
// for out-of-range ids.
func (n Namespaces) Name(id SymbolID) string {
	if id.NamespaceIdx < 0 || id.NamespaceIdx >= len(n) {
		return ""
	}
	ns := n[id.NamespaceIdx]
	if id.SymbolIdx < 0 || id.SymbolIdx >= len(ns) {
		return ""
	}
	return ns[id.SymbolIdx]
}

// SymbolIDOf finds the id for a symbol-kind name, scanning namespaces in
// order.
func (n Namespaces) SymbolIDOf(symbol string) (SymbolID, bool) {
	for namespaceIdx, ns := range n {
		for symbolIdx, s := range ns {
			if s == symbol {
				return SymbolID{NamespaceIdx: namespaceIdx, SymbolIdx: symbolIdx}, true
			}
		}
	}
	return SymbolID{}, false
}

// AllSymbols flattens the table into a list of symbol-kind names.
func (n Namespaces) AllSymbols() []string {
	var all []string
	for _, ns := range n {
		all = append(all, ns...)
	}
	return all
}

// Config describes one supported language.
type Config struct {
	// Names that identify this language, e.g. ["Go"] or ["Typescript", "TSX"].
	LanguageIDs []string

	// File extensions handled by this configuration: ".go", ".py".
	FileExtensions []string

	// Grammar returns the tree-sitter grammar.
	Grammar func() *sitter.Language

	// ScopeQuery is the tree-sitter query producing scope, definition,
	// import and reference captures. Empty when the language has no scope
	// support; such files index without scope-aware extraction.
	ScopeQuery string

	// Namespaces defined by this language.
	Namespaces Namespaces
}

// Supported reports whether the language can produce a scope graph.
func (c *Config) Supported() bool {
	return c != nil && c.ScopeQuery != ""
}

// All is the language registry. A ScopeGraph's lang_id is an index into this
// slice, so entries must never be reordered.
var All = []*Config{goConfig, javascriptConfig, pythonConfig}

// FromID finds a configuration by language identifier, case-insensitively.
func FromID(langID string) *Config {
	for _, cfg := range All {
		for _, id := range cfg.LanguageIDs {
			if strings.EqualFold(id, langID) {
				return cfg
			}
		}
	}
	return nil
}

// FromPath finds a configuration by file extension.
func FromPath(path string) *Config {
	ext := strings.ToLower(filepath.Ext(path))
	for _, cfg := range All {
		for _, e := range cfg.FileExtensions {
			if e == ext {
				return cfg
			}
		}
	}
	return nil
}

// IndexOf returns the registry index of a configuration, or -1.
func IndexOf(cfg *Config) int {
	for i, c := range All {
		if c == cfg {
			return i
		}
	}
	return -1
}

// ByIndex returns the configuration at a registry index, or nil.
func ByIndex(langID int) *Config {
	if langID < 0 || langID >= len(All) {
		return nil
	}
	return All[langID]
}

var goConfig = &Config{
	LanguageIDs:    []string{"Go"},
	FileExtensions: []string{".go"},
	Grammar:        golang.GetLanguage,
	ScopeQuery:     goScopeQuery,
	Namespaces: Namespaces{
		// values and types share a namespace in Go source
		{"variable", "constant", "function", "struct", "field"},
		{"module"},
		{"label"},
	},
}

var javascriptConfig = &Config{
	LanguageIDs:    []string{"JavaScript", "JSX"},
	FileExtensions: []string{".js", ".jsx", ".mjs", ".cjs"},
	Grammar:        javascript.GetLanguage,
	// No scope query yet: JavaScript files index without scope-aware
	// extraction.
	Namespaces: Namespaces{
		{"variable", "constant", "function", "struct", "field"},
		{"module"},
		{"label"},
	},
}

var pythonConfig = &Config{
	LanguageIDs:    []string{"Python"},
	FileExtensions: []string{".py"},
	Grammar:        python.GetLanguage,
	Namespaces: Namespaces{
		{"variable", "constant", "function", "struct", "field"},
		{"module"},
	},
}

// goScopeQuery drives the scope-graph builder for Go. Capture names follow
// the `<scoping>.<kind>[.<symbol>]` convention consumed by scopegraph.Build:
// scoping is one of local/hoist/global, kind is scope/definition/import/
// reference, and the optional trailing segment names a symbol kind from the
// namespace table.
const goScopeQuery = `
;; scopes
(block) @local.scope
(function_declaration) @local.scope
(method_declaration) @local.scope
(func_literal) @local.scope
(if_statement) @local.scope
(for_statement) @local.scope
(expression_switch_statement) @local.scope
(type_switch_statement) @local.scope
(select_statement) @local.scope
(communication_case) @local.scope

;; definitions
(function_declaration name: (identifier) @hoist.definition.function)
(method_declaration name: (field_identifier) @local.definition.function)
(type_spec name: (type_identifier) @global.definition.struct)
(field_declaration name: (field_identifier) @local.definition.field)
(var_spec name: (identifier) @local.definition.variable)
(const_spec name: (identifier) @local.definition.constant)
(short_var_declaration left: (expression_list (identifier) @local.definition.variable))
(parameter_declaration name: (identifier) @local.definition.variable)
(variadic_parameter_declaration name: (identifier) @local.definition.variable)
(range_clause left: (expression_list (identifier) @local.definition.variable))
(receive_statement left: (expression_list (identifier) @local.definition.variable))
(labeled_statement label: (label_name) @local.definition.label)

;; imports
(import_spec name: (package_identifier) @local.import)

;; references
(identifier) @local.reference
(type_identifier) @local.reference.struct
(package_identifier) @local.reference.module
(label_name) @local.reference.label
`
