package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/reranker"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SearchRequest is the body of the search endpoints. Filters use the
// filter expression syntax, e.g. "category = 'A' AND year >= 2000".
type SearchRequest struct {
	Query      string                 `json:"query"`
	N          int                    `json:"n"`
	Table      string                 `json:"table"`
	PreFilter  string                 `json:"pre_filter,omitempty"`
	PostFilter string                 `json:"post_filter,omitempty"`
	Params     map[string]any         `json:"params,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	SearchType vectorindex.SearchType `json:"search_type,omitempty"`
	// Rerank, when set, rescores the results by query term overlap.
	Rerank *RerankOptions `json:"rerank,omitempty"`
}

// RerankOptions configures term-overlap reranking of search results.
type RerankOptions struct {
	Weight float64 `json:"weight"`
}

// SearchResponse carries ranked results with decoded metadata.
type SearchResponse struct {
	Results []vectorindex.Result[map[string]any] `json:"results"`
}

// SearchIDsResponse carries ranked ids.
type SearchIDsResponse struct {
	Results []vectorindex.IDResult `json:"results"`
}

// CreateRequest is the body of POST /api/v1/records.
type CreateRequest struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdateRequest is the body of PUT /api/v1/tables/:table/records/:id. A
// missing vector keeps the stored one.
type UpdateRequest struct {
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// BatchUpdateRequest is the body of the batch update endpoint.
type BatchUpdateRequest struct {
	Updates []store.Update `json:"updates"`
}

// BatchDeleteRequest is the body of the batch delete endpoint.
type BatchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// AddDocumentsRequest is the body of the document ingestion endpoint.
type AddDocumentsRequest struct {
	Documents []vectorindex.Document `json:"documents"`
}

// AddDocumentsResponse lists the stored ids in input order.
type AddDocumentsResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.index.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// bind decodes the body, reporting malformed input as a validation error.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return vecerr.Invalid("body", "invalid request body: %v", err)
	}
	return nil
}

func (r SearchRequest) params() (vectorindex.SearchParams, error) {
	pre, err := filter.Parse(r.PreFilter)
	if err != nil {
		return vectorindex.SearchParams{}, err
	}
	post, err := filter.Parse(r.PostFilter)
	if err != nil {
		return vectorindex.SearchParams{}, err
	}
	return vectorindex.SearchParams{
		PreFilter:  pre,
		PostFilter: post,
		Params:     r.Params,
		Limit:      r.Limit,
		SearchType: r.SearchType,
	}, nil
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	params, err := req.params()
	if err != nil {
		return err
	}
	results, err := vectorindex.TopN[map[string]any](c.Request().Context(), s.index, req.Query, req.N, req.Table, params)
	if err != nil {
		return err
	}
	return s.respondResults(c, req, results)
}

func (s *Server) handleHybrid(c echo.Context) error {
	var req SearchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	params, err := req.params()
	if err != nil {
		return err
	}
	results, err := vectorindex.HybridSearch[map[string]any](c.Request().Context(), s.index, req.Query, req.N, req.Table, params)
	if err != nil {
		return err
	}
	return s.respondResults(c, req, results)
}

func (s *Server) respondResults(c echo.Context, req SearchRequest, results []vectorindex.Result[map[string]any]) error {
	if req.Rerank != nil {
		r, err := reranker.NewTermOverlap(req.Query, req.Rerank.Weight)
		if err != nil {
			return err
		}
		results = vectorindex.Rerank(results, reranker.MetadataScorer(r))
	}
	if results == nil {
		results = []vectorindex.Result[map[string]any]{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleSearchIDs(c echo.Context) error {
	var req SearchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Rerank != nil {
		return vecerr.Invalid("rerank", "id searches carry no text to rerank")
	}
	params, err := req.params()
	if err != nil {
		return err
	}
	results, err := s.index.TopNIDs(c.Request().Context(), req.Query, req.N, req.Table, params)
	if err != nil {
		return err
	}
	if results == nil {
		results = []vectorindex.IDResult{}
	}
	return c.JSON(http.StatusOK, SearchIDsResponse{Results: results})
}

func (s *Server) handleCreate(c echo.Context) error {
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.index.CreateVector(c.Request().Context(), req.ID, req.Vector, req.Metadata); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, store.Record{ID: req.ID, Metadata: req.Metadata})
}

func (s *Server) handleRead(c echo.Context) error {
	id := c.Param("id")
	rec, err := s.index.ReadVector(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if rec == nil {
		return &vecerr.MissingIDError{Table: s.index.Table(), ID: id}
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleEnsureTable(c echo.Context) error {
	if err := s.index.EnsureIndex(c.Request().Context(), c.Param("table")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddDocuments(c echo.Context) error {
	var req AddDocumentsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ids, err := s.index.AddDocuments(c.Request().Context(), c.Param("table"), req.Documents)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, AddDocumentsResponse{IDs: ids})
}

func (s *Server) handleUpdate(c echo.Context) error {
	var req UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	err := s.index.UpdateEmbedding(c.Request().Context(), c.Param("id"), c.Param("table"), req.Metadata, req.Vector)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDelete(c echo.Context) error {
	if err := s.index.DeleteEmbedding(c.Request().Context(), c.Param("id"), c.Param("table")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUpdateBatch(c echo.Context) error {
	var req BatchUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.index.UpdateBatch(c.Request().Context(), req.Updates, c.Param("table")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteBatch(c echo.Context) error {
	var req BatchDeleteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.index.DeleteBatch(c.Request().Context(), req.IDs, c.Param("table")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
