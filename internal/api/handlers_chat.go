package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alta-ny/chatbot/internal/chat"
	"github.com/alta-ny/chatbot/internal/models"
)

type ChatHandler struct {
	orch *chat.Orchestrator
}

func NewChatHandler(orch *chat.Orchestrator) *ChatHandler {
	return &ChatHandler{orch: orch}
}

// Message handles POST /chat/message
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req models.MessageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if req.SearchMode != "" && !req.SearchMode.IsChatMode() {
		writeError(w, http.StatusBadRequest, "searchMode must be semantic or exact")
		return
	}

	reply := h.orch.ProcessMessage(r.Context(), req)
	writeJSON(w, http.StatusOK, models.ChatMessageResponse{Success: true, Response: reply})
}

// History handles GET /chat/history/{sessionId}
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	history, err := h.orch.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get chat history")
		return
	}

	writeJSON(w, http.StatusOK, models.HistoryResponse{Success: true, History: history, SessionID: sessionID})
}

// ClearHistory handles DELETE /chat/history/{sessionId}
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	if err := h.orch.ClearHistory(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear chat history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Chat history cleared"})
}

// TranslationStats handles GET /chat/translation-stats
func (h *ChatHandler) TranslationStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   h.orch.TranslationStats(r.Context()),
	})
}
