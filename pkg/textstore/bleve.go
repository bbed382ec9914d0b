package textstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	bleveMapping "github.com/blevesearch/bleve/v2/mapping"
)

// tokensAnalyzer splits strictly on whitespace so tri-grams containing
// separators or digits survive as single terms.
const tokensAnalyzer = "whitespace_lower"

// BleveStore keeps one bleve index per repository under a root directory.
type BleveStore struct {
	root string

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

// NewBleveStore opens a store rooted at dir.
func NewBleveStore(dir string) (*BleveStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating text store root: %w", err)
	}
	return &BleveStore{root: dir, indexes: make(map[string]bleve.Index)}, nil
}

// indexedDoc is the shape actually handed to bleve: searchable projections
// of the document plus the full document as a stored blob.
type indexedDoc struct {
	RelativePath string `json:"relative_path"`
	RepoName     string `json:"repo_name"`
	Lang         string `json:"lang"`
	Content      string `json:"content"`
	Symbols      string `json:"symbols"`

	// PathTokens carries the tri-gram soup of the path so single tri-gram
	// term queries hit.
	PathTokens string `json:"path_tokens"`

	// Blob is the JSON-encoded ContentDocument, stored verbatim.
	Blob string `json:"blob"`
}

func indexMapping() (*bleveMapping.IndexMappingImpl, error) {
	docMapping := bleve.NewDocumentMapping()

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("relative_path", keywordField)
	docMapping.AddFieldMappingsAt("repo_name", keywordField)
	docMapping.AddFieldMappingsAt("lang", keywordField)

	contentField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("symbols", contentField)

	tokensField := bleve.NewTextFieldMapping()
	tokensField.Analyzer = tokensAnalyzer
	docMapping.AddFieldMappingsAt("path_tokens", tokensField)

	blobField := bleve.NewTextFieldMapping()
	blobField.Index = false
	blobField.Store = true
	blobField.IncludeInAll = false
	docMapping.AddFieldMappingsAt("blob", blobField)

	mapping := bleve.NewIndexMapping()
	if err := mapping.AddCustomAnalyzer(tokensAnalyzer, map[string]any{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []any{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("registering analyzer: %w", err)
	}
	mapping.DefaultMapping = docMapping
	return mapping, nil
}

func (s *BleveStore) index(name string) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}

	path := filepath.Join(s.root, name+".bleve")
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		var mapping *bleveMapping.IndexMappingImpl
		mapping, err = indexMapping()
		if err == nil {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", name, err)
	}

	s.indexes[name] = idx
	return idx, nil
}

// Index writes documents into the repository index.
func (s *BleveStore) Index(ctx context.Context, index string, docs []ContentDocument) error {
	idx, err := s.index(index)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		blob, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding document %s: %w", doc.RelativePath, err)
		}

		entry := indexedDoc{
			RelativePath: doc.RelativePath,
			RepoName:     doc.RepoName,
			Lang:         doc.Lang,
			Content:      doc.Content,
			Symbols:      doc.Symbols,
			PathTokens:   pathTokens(doc.RelativePath),
			Blob:         string(blob),
		}
		if err := batch.Index(doc.RelativePath, entry); err != nil {
			return fmt.Errorf("indexing document %s: %w", doc.RelativePath, err)
		}
	}

	slog.Debug("indexing documents", "index", index, "count", len(docs))
	return idx.Batch(batch)
}

// GetByField returns the first document whose field equals value exactly.
func (s *BleveStore) GetByField(ctx context.Context, index, field, value string) (*ContentDocument, error) {
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}

	query := bleve.NewTermQuery(value)
	query.SetField(field)

	req := bleve.NewSearchRequest(query)
	req.Size = 1
	req.Fields = []string{"blob"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching %s=%q: %w", field, value, err)
	}
	if len(res.Hits) == 0 {
		return nil, ErrNotFound
	}

	blob, _ := res.Hits[0].Fields["blob"].(string)
	var doc ContentDocument
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, fmt.Errorf("decoding stored document: %w", err)
	}
	return &doc, nil
}

// SearchToken finds file documents whose path tri-grams match the token.
func (s *BleveStore) SearchToken(ctx context.Context, index, token string, maxHits int) ([]FileDocument, error) {
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}

	query := bleve.NewTermQuery(strings.ToLower(token))
	query.SetField("path_tokens")

	req := bleve.NewSearchRequest(query)
	req.Size = maxHits
	req.Fields = []string{"blob"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching token %q: %w", token, err)
	}

	out := make([]FileDocument, 0, len(res.Hits))
	for _, hit := range res.Hits {
		blob, _ := hit.Fields["blob"].(string)
		var doc ContentDocument
		if err := json.Unmarshal([]byte(blob), &doc); err != nil {
			slog.Debug("skipping undecodable hit", "id", hit.ID, "error", err)
			continue
		}
		out = append(out, FileDocument{
			RelativePath: doc.RelativePath,
			RepoName:     doc.RepoName,
			RepoRef:      doc.RepoRef,
			Lang:         doc.Lang,
		})
	}
	return out, nil
}

// Close closes every open index.
func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.indexes, name)
	}
	return firstErr
}

// pathTokens builds the searchable token soup for a path: the lowercased
// path, its separator-split segments and their tri-grams.
func pathTokens(path string) string {
	lower := strings.ToLower(path)

	tokens := []string{lower}
	segments := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '/' || r == '.' || r == '_' || r == '-'
	})
	tokens = append(tokens, segments...)
	tokens = append(tokens, Trigrams(lower)...)

	return strings.Join(tokens, " ")
}
