package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/pkg/chat"
	"github.com/codeatlas/codeatlas/pkg/payload"
	"github.com/codeatlas/codeatlas/pkg/scopegraph"
	"github.com/codeatlas/codeatlas/pkg/semantic"
	"github.com/codeatlas/codeatlas/pkg/textspan"
	"github.com/codeatlas/codeatlas/pkg/textstore"
	"github.com/codeatlas/codeatlas/pkg/vectordb"
)

// fakeTextStore serves documents from memory.
type fakeTextStore struct {
	docs map[string]textstore.ContentDocument
}

func (s *fakeTextStore) Index(_ context.Context, _ string, docs []textstore.ContentDocument) error {
	for _, d := range docs {
		s.docs[d.RelativePath] = d
	}
	return nil
}

func (s *fakeTextStore) GetByField(_ context.Context, _, field, value string) (*textstore.ContentDocument, error) {
	if field == "relative_path" {
		if d, ok := s.docs[value]; ok {
			return &d, nil
		}
	}
	return nil, textstore.ErrNotFound
}

func (s *fakeTextStore) SearchToken(_ context.Context, _, token string, maxHits int) ([]textstore.FileDocument, error) {
	var out []textstore.FileDocument
	for path, d := range s.docs {
		if strings.Contains(strings.ToLower(path), strings.ToLower(token)) {
			out = append(out, textstore.FileDocument{
				RelativePath: path,
				RepoName:     d.RepoName,
				Lang:         d.Lang,
			})
		}
		if len(out) >= maxHits {
			break
		}
	}
	return out, nil
}

func (s *fakeTextStore) Close() error { return nil }

// fakeEmbedder returns a constant vector.
type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// newAgentWithCorpus builds an agent over one indexed Go-like file with a
// scope graph and one symbol payload pointing at its definition.
func newAgentWithCorpus(t *testing.T, p *scriptedProvider) *Agent {
	t.Helper()

	src := "func Widget() {\n    build()\n    ship()\n}\n"
	lineEnds := textspan.LineEndIndices([]byte(src))

	g := scopegraph.New(textspan.TextRange{
		Start: textspan.Point{},
		End:   textspan.Point{Byte: len(src), Line: 4},
	}, 0)
	// function body scope
	g.InsertLocalScope(textspan.TextRange{
		Start: textspan.Point{Byte: 14, Line: 0, Column: 14},
		End:   textspan.Point{Byte: 39, Line: 3, Column: 1},
	})
	// def of Widget
	g.InsertLocalDef(textspan.TextRange{
		Start: textspan.Point{Byte: 5, Line: 0, Column: 5},
		End:   textspan.Point{Byte: 11, Line: 0, Column: 11},
	}, nil)

	blob, err := scopegraph.TreeSitter(g).Encode()
	require.NoError(t, err)

	store := &fakeTextStore{docs: map[string]textstore.ContentDocument{}}
	require.NoError(t, store.Index(context.Background(), "widgets", []textstore.ContentDocument{{
		RepoName:        "acme/widgets",
		RelativePath:    "pkg/widget/widget.go",
		Lang:            "Go",
		Content:         src,
		LineEndIndices:  textspan.EncodeLineEnds(lineEnds),
		SymbolLocations: blob,
	}}))

	vectors, err := vectordb.OpenSQLite(t.TempDir() + "/vectors.db")
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	symbol := payload.SymbolPayload{
		RepoName:      "acme/widgets",
		Symbol:        "Widget",
		SymbolTypes:   []string{"function"},
		LangIDs:       []string{"Go"},
		IsGlobals:     []bool{true},
		StartBytes:    []int64{5},
		EndBytes:      []int64{11},
		RelativePaths: []string{"pkg/widget/widget.go"},
		NodeKinds:     []string{"def"},
	}
	namespace := "v1/acme/widgets"
	require.NoError(t, vectors.Upsert(context.Background(),
		vectordb.SymbolCollectionName(namespace),
		[]vectordb.Record{{ID: uuid.NewString(), Fields: symbol.ToRecord(), Embedding: []float32{1, 0}}}))

	sem := semantic.New(vectors, fakeEmbedder{}, namespace)

	return New(Deps{
		LLM:              p,
		Semantic:         sem,
		TextStore:        store,
		RepoName:         "acme/widgets",
		IndexName:        "widgets",
		MaxContextTokens: 100000,
		TokenHeadroom:    100,
	}, "what does Widget do", uuid.Nil)
}

func TestCodeSearch(t *testing.T) {
	a := newAgentWithCorpus(t, &scriptedProvider{})

	response, err := a.CodeSearch(context.Background(), "widget")
	require.NoError(t, err)

	assert.Contains(t, response, "pkg/widget/widget.go")
	assert.Contains(t, response, "func Widget()")

	// the exchange recorded the step and the chunks
	last := a.LastExchange()
	require.Len(t, last.SearchSteps, 1)
	assert.Equal(t, StepCode, last.SearchSteps[0].Kind)
	assert.Equal(t, response, last.SearchSteps[0].Response)
	assert.NotEmpty(t, last.CodeChunks)
	assert.Equal(t, 0, last.CodeChunks[0].Alias)
}

func TestCodeSearchNoHitsIsEmptyNotFatal(t *testing.T) {
	a := newAgentWithCorpus(t, &scriptedProvider{})

	// unknown repo filter produces zero hits
	a.deps.RepoName = "acme/gadgets"

	response, err := a.CodeSearch(context.Background(), "widget")
	require.NoError(t, err)
	assert.Empty(t, response)
}

func TestPathSearch(t *testing.T) {
	a := newAgentWithCorpus(t, &scriptedProvider{})

	response, err := a.PathSearch(context.Background(), "widget")
	require.NoError(t, err)

	assert.Contains(t, response, "pkg/widget/widget.go")
	assert.Equal(t, []string{"pkg/widget/widget.go"}, a.Paths())

	last := a.LastExchange()
	require.Len(t, last.SearchSteps, 1)
	assert.Equal(t, StepPath, last.SearchSteps[0].Kind)
}

func TestPathSearchRejectsNonMatches(t *testing.T) {
	a := newAgentWithCorpus(t, &scriptedProvider{})

	response, err := a.PathSearch(context.Background(), "zzzyyy")
	require.NoError(t, err)
	assert.Empty(t, response)
}

func TestProcessFiles(t *testing.T) {
	p := &scriptedProvider{responses: []chat.Message{
		chat.Assistant("A: [[1,2]]"),
	}}
	a := newAgentWithCorpus(t, p)

	alias := a.PathAlias("pkg/widget/widget.go")

	response, err := a.ProcessFiles(context.Background(), "what builds widgets", []int{alias})
	require.NoError(t, err)

	assert.Contains(t, response, "func Widget()")
	assert.Contains(t, response, "build()")

	last := a.LastExchange()
	require.Len(t, last.SearchSteps, 1)
	assert.Equal(t, StepProc, last.SearchSteps[0].Kind)
	assert.Equal(t, []string{"pkg/widget/widget.go"}, last.SearchSteps[0].Paths)
}

func TestProcessFilesSkipsFailingFile(t *testing.T) {
	p := &scriptedProvider{responses: []chat.Message{
		chat.Assistant("A: [[1,1]]"),
	}}
	a := newAgentWithCorpus(t, p)

	good := a.PathAlias("pkg/widget/widget.go")
	bad := a.PathAlias("no/such/file.go")

	_, err := a.ProcessFiles(context.Background(), "q", []int{bad, good})
	require.NoError(t, err)
}

func TestProcessFilesCapsAtFivePaths(t *testing.T) {
	a := newAgentWithCorpus(t, &scriptedProvider{})

	var aliases []int
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		aliases = append(aliases, a.PathAlias(p))
	}

	_, err := a.ProcessFiles(context.Background(), "q", aliases)
	require.NoError(t, err)

	last := a.LastExchange()
	require.NotEmpty(t, last.SearchSteps)
	assert.LessOrEqual(t, len(last.SearchSteps[0].Paths), 5)
}
