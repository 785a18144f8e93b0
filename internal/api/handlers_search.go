package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/alta-ny/chatbot/internal/chat"
	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/search"
	"github.com/alta-ny/chatbot/internal/vectorstore"
)

const (
	defaultTopK    = 5
	maxTopK        = 100
	maxSuggestions = 5
)

type SearchHandler struct {
	retriever *search.Retriever
	vectors   vectorstore.Store
	profile   *chat.Profile
}

func NewSearchHandler(retriever *search.Retriever, vectors vectorstore.Store, profile *chat.Profile) *SearchHandler {
	return &SearchHandler{retriever: retriever, vectors: vectors, profile: profile}
}

// decodeSearch reads and validates a search body. It writes the error
// response itself and returns false on failure.
func decodeSearch(w http.ResponseWriter, r *http.Request) (models.SearchRequest, bool) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return req, false
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	req.TopK = min(req.TopK, maxTopK)
	return req, true
}

// Semantic handles POST /search/semantic
func (h *SearchHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, models.SearchModeSemantic)
}

// Exact handles POST /search/exact
func (h *SearchHandler) Exact(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, models.SearchModeExact)
}

func (h *SearchHandler) run(w http.ResponseWriter, r *http.Request, mode models.SearchMode) {
	req, ok := decodeSearch(w, r)
	if !ok {
		return
	}

	results, err := h.retriever.Query(r.Context(), mode, req.Query, req.TopK, req.Filter)
	if err != nil {
		writeError(w, http.StatusBadGateway, string(mode)+" search failed")
		return
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{
		Success:      true,
		Query:        req.Query,
		Results:      results,
		TotalResults: len(results),
	})
}

// Hybrid handles POST /search/hybrid
func (h *SearchHandler) Hybrid(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearch(w, r)
	if !ok {
		return
	}

	weight := search.DefaultSemanticWeight
	if req.SemanticWeight != nil {
		weight = *req.SemanticWeight
	}
	if weight < 0 || weight > 1 {
		writeError(w, http.StatusBadRequest, "semanticWeight must be between 0 and 1")
		return
	}

	results, err := h.retriever.Hybrid(r.Context(), req.Query, req.TopK, weight, req.Filter)
	if err != nil {
		writeError(w, http.StatusBadGateway, "hybrid search failed")
		return
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{
		Success:        true,
		Query:          req.Query,
		Results:        results,
		TotalResults:   len(results),
		SearchType:     models.SearchTypeHybrid,
		SemanticWeight: weight,
	})
}

// Stats handles GET /search/stats
func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.vectors.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to get index stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"stats":             stats,
		"retrievalFailures": h.retriever.Failures(),
	})
}

// Suggestions handles GET /search/suggestions?q=
func (h *SearchHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := h.profile.Suggest(r.URL.Query().Get("q"), maxSuggestions)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "suggestions": suggestions})
}
