// Package server exposes the query surface over HTTP: endpoints for the code
// and path tools, a span lookup, and the full agent orchestration endpoint.
// The proc tool has no endpoint of its own.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/codeatlas/codeatlas/pkg/agent"
	"github.com/codeatlas/codeatlas/pkg/textspan"
	"github.com/codeatlas/codeatlas/pkg/textstore"
)

// Server routes HTTP requests onto fresh per-request agents.
type Server struct {
	e    *echo.Echo
	deps agent.Deps
}

// New builds the server around the shared agent dependencies.
func New(deps agent.Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())

	s := &Server{e: e, deps: deps}

	api := e.Group("/api")
	api.GET("/health", s.health)
	api.POST("/search/code", s.searchCode)
	api.POST("/search/path", s.searchPath)
	api.POST("/span", s.span)
	api.POST("/answer", s.answer)

	return s
}

// Start listens on addr until the listener fails or is shut down.
func (s *Server) Start(addr string) error {
	slog.Info("starting server", "address", addr)
	return s.e.Start(addr)
}

type queryRequest struct {
	Query string `json:"query"`
	Repo  string `json:"repo"`
	ID    string `json:"id,omitempty"`
}

func (r *queryRequest) validate(deps agent.Deps) error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query must not be empty")
	}
	if r.Repo != "" && r.Repo != deps.RepoName {
		return errors.New("unknown repo: " + r.Repo)
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// newAgent builds the per-request agent.
func (s *Server) newAgent(query, id string) (*agent.Agent, error) {
	queryID := uuid.New()
	if id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, errors.New("id must be a UUID")
		}
		queryID = parsed
	}
	return agent.New(s.deps, query, queryID), nil
}

func (s *Server) searchCode(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.validate(s.deps); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := s.newAgent(req.Query, req.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer a.Close()

	response, err := a.CodeSearch(c.Request().Context(), req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	a.Complete()

	return c.JSON(http.StatusOK, map[string]any{
		"response": response,
		"chunks":   a.LastExchange().CodeChunks,
	})
}

func (s *Server) searchPath(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.validate(s.deps); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := s.newAgent(req.Query, req.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer a.Close()

	response, err := a.PathSearch(c.Request().Context(), req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	a.Complete()

	return c.JSON(http.StatusOK, map[string]any{
		"response": response,
		"paths":    a.Paths(),
	})
}

type spanRequest struct {
	Repo   string   `json:"repo"`
	Path   string   `json:"path"`
	Ranges [][2]int `json:"ranges,omitempty"`
	ID     string   `json:"id,omitempty"`
}

type codeChunkResponse struct {
	Path      string `json:"path"`
	Snippet   string `json:"snippet"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// span returns the code covering the requested line ranges of one file, or
// the whole file when no ranges are given.
func (s *Server) span(c echo.Context) error {
	var req spanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path must not be empty")
	}

	ctx := c.Request().Context()
	doc, err := s.deps.TextStore.GetByField(ctx, s.deps.IndexName, "relative_path", req.Path)
	if err != nil {
		if errors.Is(err, textstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no content found for the file: "+req.Path)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if len(req.Ranges) == 0 {
		return c.JSON(http.StatusOK, []codeChunkResponse{{
			Path:      req.Path,
			Snippet:   doc.Content,
			StartLine: 1,
			EndLine:   strings.Count(doc.Content, "\n") + 1,
		}})
	}

	lineEnds := doc.FetchLineIndices()
	chunks := make([]codeChunkResponse, 0, len(req.Ranges))
	for _, r := range req.Ranges {
		snippet, err := textspan.PluckLines(doc.Content, lineEnds, r[0], r[1])
		if err != nil {
			slog.Debug("skipping bad range", "path", req.Path, "start", r[0], "end", r[1], "error", err)
			continue
		}
		chunks = append(chunks, codeChunkResponse{
			Path:      req.Path,
			Snippet:   snippet,
			StartLine: r[0],
			EndLine:   r[1],
		})
	}

	return c.JSON(http.StatusOK, chunks)
}

// answer runs the full agent loop to a grounded answer.
func (s *Server) answer(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.validate(s.deps); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := s.newAgent(req.Query, req.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer a.Close()

	if err := a.Run(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	answer, conclusion, _ := a.LastExchange().AnswerSummary()
	return c.JSON(http.StatusOK, map[string]any{
		"query_id":   a.QueryID,
		"answer":     answer,
		"conclusion": conclusion,
		"paths":      a.Paths(),
	})
}
