// Package chat runs the retrieval-augmented reply pipeline: optional inbound
// translation, knowledge lookup, composition and history recording.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alta-ny/chatbot/internal/conversation"
	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/search"
	"github.com/alta-ny/chatbot/internal/translate"
)

// Error codes attached to fallback replies.
const (
	ErrorCodeComposition = "composition_failed"
	ErrorCodeInternal    = "internal_error"
)

// User-facing fallback messages.
const (
	fallbackInternal    = "I'm sorry, I encountered an error processing your request. Please try again."
	fallbackComposition = "I'm sorry, I'm having trouble generating a response right now. Please try again."
)

// DefaultTopK is the number of chunks retrieved per message.
const DefaultTopK = 5

// inboundLanguage is what user messages are translated into before lookup.
const inboundLanguage = "en"

// Orchestrator ties retrieval, composition and history together for one
// inbound message at a time per session.
type Orchestrator struct {
	retriever  *search.Retriever
	composer   Composer
	translator translate.Translator
	history    conversation.Store
	logger     *slog.Logger
	topK       int

	locks *keyedMutex
	now   func() time.Time
}

func NewOrchestrator(
	retriever *search.Retriever,
	composer Composer,
	translator translate.Translator,
	history conversation.Store,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		retriever:  retriever,
		composer:   composer,
		translator: translator,
		history:    history,
		logger:     logger,
		topK:       DefaultTopK,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// ProcessMessage produces a reply for req. It never returns an error: any
// failure becomes a fallback reply carrying an ErrorCode. Messages for the
// same session are processed one at a time, so stored history follows
// request order.
func (o *Orchestrator) ProcessMessage(ctx context.Context, req models.MessageRequest) (reply models.ChatReply) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	mode := req.SearchMode
	if mode == "" {
		mode = models.SearchModeSemantic
	}

	unlock := o.locks.Lock(sessionID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("chat pipeline panic", "session_id", sessionID, "panic", fmt.Sprint(r))
			reply = o.internalError(sessionID, mode)
		}
	}()

	reply, err := o.process(ctx, sessionID, mode, req)
	if err != nil {
		o.logger.Error("chat pipeline failed", "session_id", sessionID, "error", err)
		return o.internalError(sessionID, mode)
	}
	return reply
}

func (o *Orchestrator) process(ctx context.Context, sessionID string, mode models.SearchMode, req models.MessageRequest) (models.ChatReply, error) {
	query := req.Message
	translationUsed := false
	if req.TranslationEnabled && o.translator.Configured() {
		translated, err := o.translator.Translate(ctx, req.Message, inboundLanguage)
		if err != nil {
			o.logger.Warn("inbound translation failed, using original", "session_id", sessionID, "error", err)
		} else {
			query = translated
			translationUsed = true
		}
	}

	retrieval := o.retriever.Search(ctx, query, mode, o.topK)

	history, err := o.history.History(ctx, sessionID)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("load history: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = AutoLanguage
	}
	reply := models.ChatReply{
		SearchMode:      mode,
		TranslationUsed: translationUsed,
		ConversationID:  sessionID,
	}

	comp, err := o.composer.Compose(ctx, ComposeRequest{
		Query:     query,
		Retrieval: retrieval,
		History:   history,
		Translate: req.TranslationEnabled,
		Language:  lang,
	})
	switch {
	case err == nil:
		reply.Message = comp.Message
		reply.Sources = comp.Sources
	case errors.Is(err, ErrComposition):
		o.logger.Error("composition failed", "session_id", sessionID, "error", err)
		reply.Message = fallbackComposition
		reply.Sources = retrieval.Sources
		reply.ErrorCode = ErrorCodeComposition
	default:
		return models.ChatReply{}, err
	}
	if reply.Sources == nil {
		reply.Sources = []string{}
	}

	now := o.now()
	err = o.history.Append(ctx, sessionID,
		models.Turn{Role: models.RoleUser, Content: req.Message, Timestamp: now},
		models.Turn{Role: models.RoleAssistant, Content: reply.Message, Timestamp: now},
	)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("record history: %w", err)
	}

	o.logger.Info("message processed",
		"session_id", sessionID,
		"mode", string(mode),
		"results", len(retrieval.Results),
		"translated", translationUsed,
		"error_code", reply.ErrorCode,
	)
	return reply, nil
}

func (o *Orchestrator) internalError(sessionID string, mode models.SearchMode) models.ChatReply {
	return models.ChatReply{
		Message:        fallbackInternal,
		Sources:        []string{},
		SearchMode:     mode,
		ConversationID: sessionID,
		ErrorCode:      ErrorCodeInternal,
	}
}

// History returns the stored turns for a session, oldest first.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	return o.history.History(ctx, sessionID)
}

// ClearHistory drops a session's history. Unknown sessions are a no-op.
func (o *Orchestrator) ClearHistory(ctx context.Context, sessionID string) error {
	unlock := o.locks.Lock(sessionID)
	defer unlock()
	return o.history.Clear(ctx, sessionID)
}

func (o *Orchestrator) TranslationStats(ctx context.Context) models.TranslationStats {
	return o.translator.Stats(ctx)
}

// Sessions returns the number of sessions with stored history.
func (o *Orchestrator) Sessions(ctx context.Context) (int, error) {
	return o.history.Count(ctx)
}

// Mock reports whether replies come from canned responses.
func (o *Orchestrator) Mock() bool { return o.composer.Mock() }
