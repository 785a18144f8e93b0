package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alta-ny/chatbot/internal/embedding"
	"github.com/alta-ny/chatbot/internal/knowledge"
	"github.com/alta-ny/chatbot/internal/models"
)

// KnowledgeHandler handles document ingestion and seed sync endpoints.
type KnowledgeHandler struct {
	ingester *knowledge.Ingester
	syncSvc  *knowledge.SyncService
}

// NewKnowledgeHandler creates a KnowledgeHandler. syncSvc may be nil.
func NewKnowledgeHandler(ingester *knowledge.Ingester, syncSvc *knowledge.SyncService) *KnowledgeHandler {
	return &KnowledgeHandler{ingester: ingester, syncSvc: syncSvc}
}

// Ingest handles POST /knowledge
func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var doc models.Document
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.ingester.IngestDocument(r.Context(), doc)
	if err != nil {
		var ef *embedding.Failure
		switch {
		case errors.Is(err, knowledge.ErrEmptyDocument):
			writeError(w, http.StatusBadRequest, "content is required")
		case errors.As(err, &ef):
			writeError(w, http.StatusBadGateway, "failed to embed document")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store document")
		}
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Files handles GET /knowledge/files
func (h *KnowledgeHandler) Files(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	docs, err := h.ingester.ListDocuments(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "files": docs, "total": len(docs)})
}

// Delete handles DELETE /knowledge/{id}
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := h.ingester.DeleteDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to delete document")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id, "deleted": n})
}

// syncRequest is the optional body for POST /knowledge/sync.
type syncRequest struct {
	Dirs []string `json:"dirs"`
}

// Sync handles POST /knowledge/sync
func (h *KnowledgeHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.syncSvc == nil {
		writeError(w, http.StatusNotFound, "knowledge sync is not configured")
		return
	}

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var result *knowledge.SyncResult
	var err error

	if len(req.Dirs) > 0 {
		result, err = h.syncSvc.SyncDirs(r.Context(), req.Dirs)
	} else {
		result, err = h.syncSvc.Sync(r.Context())
	}

	if errors.Is(err, knowledge.ErrDirNotAllowed) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Sources handles GET /knowledge/sources
func (h *KnowledgeHandler) Sources(w http.ResponseWriter, r *http.Request) {
	if h.syncSvc == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sources": []knowledge.SourceInfo{}})
		return
	}

	sources, err := h.syncSvc.ListSources()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sources": sources})
}
