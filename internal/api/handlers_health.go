package api

import (
	"net/http"
	"time"

	"github.com/alta-ny/chatbot/internal/chat"
	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/search"
	"github.com/alta-ny/chatbot/internal/store"
	"github.com/alta-ny/chatbot/internal/vectorstore"
)

type HealthHandler struct {
	db        *store.DB
	orch      *chat.Orchestrator
	retriever *search.Retriever
	vectors   vectorstore.Store
}

// NewHealthHandler creates a HealthHandler. db may be nil when all state is
// held in memory.
func NewHealthHandler(db *store.DB, orch *chat.Orchestrator, retriever *search.Retriever, vectors vectorstore.Store) *HealthHandler {
	return &HealthHandler{db: db, orch: orch, retriever: retriever, vectors: vectors}
}

func mode(mock bool) string {
	if mock {
		return models.ModeMock
	}
	return models.ModeLive
}

// Health handles GET /health. Mock mode is reported but is not a failure.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC(),
		Services:          map[string]models.ServiceCheck{},
		RetrievalFailures: h.retriever.Failures(),
	}

	resp.Services["openai"] = models.ServiceCheck{Status: "ok", Mode: mode(h.orch.Mock())}

	tr := h.orch.TranslationStats(r.Context())
	resp.Services["translation"] = models.ServiceCheck{Status: "ok", Mode: mode(!tr.Configured)}

	// Check vector store
	stats, err := h.vectors.Stats(r.Context())
	if err != nil {
		resp.Services["vectorStore"] = models.ServiceCheck{Status: "error", Mode: mode(h.vectors.Mock()), Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Services["vectorStore"] = models.ServiceCheck{Status: "ok", Mode: mode(h.vectors.Mock())}
		resp.TotalVectors = stats.TotalVectors
	}

	sessions, err := h.orch.Sessions(r.Context())
	if err != nil {
		resp.Services["conversations"] = models.ServiceCheck{Status: "error", Mode: models.ModeLive, Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Services["conversations"] = models.ServiceCheck{Status: "ok", Mode: models.ModeLive}
		resp.Sessions = sessions
	}

	// Check DB
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			resp.Services["database"] = models.ServiceCheck{Status: "error", Mode: models.ModeLive, Message: err.Error()}
			resp.Status = "degraded"
		} else {
			resp.Services["database"] = models.ServiceCheck{Status: "ok", Mode: models.ModeLive}
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
