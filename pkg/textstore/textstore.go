// Package textstore defines the full-text document store contract: exact
// per-field retrieval of indexed file documents and the token search that
// backs fuzzy path matching. The bleve implementation lives in bleve.go.
package textstore

import (
	"context"
	"errors"

	"github.com/codeatlas/codeatlas/pkg/textspan"
)

// ErrNotFound reports a lookup that matched no document.
var ErrNotFound = errors.New("document not found")

// ContentDocument is one indexed file with everything query time needs: the
// raw content, the packed line index and the serialized symbol locations.
type ContentDocument struct {
	RepoName     string `json:"repo_name"`
	RepoRef      string `json:"repo_ref"`
	RelativePath string `json:"relative_path"`
	Lang         string `json:"lang"`
	Content      string `json:"content"`
	Symbols      string `json:"symbols"`

	// LineEndIndices is the byte offset of each newline, packed as
	// little-endian u32s.
	LineEndIndices []byte `json:"line_end_indices"`

	// SymbolLocations is an opaque blob decoded by scopegraph.
	SymbolLocations []byte `json:"symbol_locations"`

	IsDirectory  bool   `json:"is_directory"`
	RepoDiskPath string `json:"repo_disk_path"`
	UniqueHash   string `json:"unique_hash"`
}

// FetchLineIndices unpacks the stored line index.
func (d *ContentDocument) FetchLineIndices() []int {
	return textspan.DecodeLineEnds(d.LineEndIndices)
}

// FileDocument is the slim projection used by path search.
type FileDocument struct {
	RelativePath string `json:"relative_path"`
	RepoName     string `json:"repo_name"`
	RepoRef      string `json:"repo_ref"`
	Lang         string `json:"lang"`
}

// Store is the full-text store contract.
type Store interface {
	// Index writes documents for a repository index.
	Index(ctx context.Context, index string, docs []ContentDocument) error

	// GetByField returns the first document whose field exactly equals
	// value, or ErrNotFound.
	GetByField(ctx context.Context, index, field, value string) (*ContentDocument, error)

	// SearchToken returns file documents whose path matches the token,
	// up to maxHits.
	SearchToken(ctx context.Context, index, token string, maxHits int) ([]FileDocument, error)

	Close() error
}
