package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keonramses/cinephage/internal/indexer/search"
	"github.com/keonramses/cinephage/internal/indexer/types"
)

// searchRequest is the POST /search body. Option fields override the
// defaults only when present.
type searchRequest struct {
	types.SearchCriteria

	UseCache       *bool `json:"useCache,omitempty"`
	UseTiered      *bool `json:"useTieredSearch,omitempty"`
	RespectEnabled *bool `json:"respectEnabled,omitempty"`
	RespectBackoff *bool `json:"respectBackoff,omitempty"`
	Concurrency    int   `json:"concurrency,omitempty"`
	TimeoutSeconds int   `json:"timeoutSeconds,omitempty"`
}

func (r *searchRequest) options() search.Options {
	opts := search.DefaultOptions()
	if r.UseCache != nil {
		opts.UseCache = *r.UseCache
	}
	if r.UseTiered != nil {
		opts.UseTieredSearch = *r.UseTiered
	}
	if r.RespectEnabled != nil {
		opts.RespectEnabled = *r.RespectEnabled
	}
	if r.RespectBackoff != nil {
		opts.RespectBackoff = *r.RespectBackoff
	}
	if r.Concurrency > 0 {
		opts.Concurrency = r.Concurrency
	}
	if r.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(r.TimeoutSeconds) * time.Second
	}
	if r.Source != "" {
		opts.SearchSource = r.Source
	}
	return opts
}

func (s *Server) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "search type is required"})
	}

	result := s.deps.Orchestrator.Search(c.Request().Context(), req.SearchCriteria, req.options())
	return c.JSON(http.StatusOK, result)
}

func (s *Server) searchEnhanced(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "search type is required"})
	}

	result := s.deps.Orchestrator.SearchEnhanced(c.Request().Context(), req.SearchCriteria, req.options())
	return c.JSON(http.StatusOK, result)
}

func (s *Server) indexerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Tracker.Snapshot())
}
