package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Aman-CERP/noterag/internal/search"
	"github.com/Aman-CERP/noterag/pkg/version"
)

// queryRequest is the body shared by the search and chat endpoints.
// LocalRatio defaults to the configured ratio when omitted.
type queryRequest struct {
	Query      string   `json:"query"`
	LocalRatio *float64 `json:"local_ratio"`
}

func (q *queryRequest) ratio() float64 {
	if q.LocalRatio == nil {
		return -1
	}
	return *q.LocalRatio
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Total   int             `json:"total"`
}

type statusResponse struct {
	IndexedFiles int     `json:"indexed_files"`
	TotalChunks  int     `json:"total_chunks"`
	LastUpdate   string  `json:"last_update"`
	IndexSizeMB  float64 `json:"index_size_mb"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "noterag",
		"status":  "running",
		"version": version.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.indexer.Stats(r.Context())
	if err != nil {
		s.logger.Error("status_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		IndexedFiles: stats.TotalFiles,
		TotalChunks:  stats.TotalChunks,
		LastUpdate:   stats.LastUpdate,
		IndexSizeMB:  stats.IndexSizeMB,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	results, err := s.searcher.HybridSearch(r.Context(), req.Query, req.ratio())
	if err != nil {
		s.logger.Error("search_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   req.Query,
		Results: results,
		Total:   len(results),
	})
}

func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Build(r.Context()); err != nil {
		s.logger.Error("index_rebuild_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "index rebuilt",
	})
}

// decodeQueryRequest parses and validates the shared request, writing
// the error response itself on failure. The query may arrive as URL
// parameters or as a JSON body.
func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (*queryRequest, bool) {
	var req queryRequest
	if q := r.URL.Query().Get("query"); q != "" {
		req.Query = q
		if raw := r.URL.Query().Get("local_ratio"); raw != "" {
			ratio, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "local_ratio must be a number"})
				return nil, false
			}
			req.LocalRatio = &ratio
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return nil, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query must not be empty"})
		return nil, false
	}
	if req.LocalRatio != nil && (*req.LocalRatio < 0 || *req.LocalRatio > 1) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "local_ratio must be between 0 and 1"})
		return nil, false
	}
	return &req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
