package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alta-ny/chatbot/internal/chat"
	"github.com/alta-ny/chatbot/internal/knowledge"
	"github.com/alta-ny/chatbot/internal/search"
	"github.com/alta-ny/chatbot/internal/store"
	"github.com/alta-ny/chatbot/internal/vectorstore"
)

// Deps are the services the HTTP surface exposes. DB and Sync may be nil.
type Deps struct {
	DB           *store.DB
	Orchestrator *chat.Orchestrator
	Retriever    *search.Retriever
	Vectors      vectorstore.Store
	Ingester     *knowledge.Ingester
	Sync         *knowledge.SyncService
	Profile      *chat.Profile
}

// Options configures the middleware chain.
type Options struct {
	APIKey            string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(deps Deps, opts Options, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /api/health)
	r.Use(middleware.RealIP)
	r.Use(CORS(opts.AllowedOrigins))
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(RateLimit(opts.RateLimitRequests, opts.RateLimitWindow))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Handlers
	healthH := NewHealthHandler(deps.DB, deps.Orchestrator, deps.Retriever, deps.Vectors)
	chatH := NewChatHandler(deps.Orchestrator)
	searchH := NewSearchHandler(deps.Retriever, deps.Vectors, deps.Profile)
	knowledgeH := NewKnowledgeHandler(deps.Ingester, deps.Sync)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthH.Health)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/message", chatH.Message)
			r.Get("/history/{sessionId}", chatH.History)
			r.Delete("/history/{sessionId}", chatH.ClearHistory)
			r.Get("/translation-stats", chatH.TranslationStats)
		})

		r.Route("/search", func(r chi.Router) {
			r.Post("/semantic", searchH.Semantic)
			r.Post("/exact", searchH.Exact)
			r.Post("/hybrid", searchH.Hybrid)
			r.Get("/stats", searchH.Stats)
			r.Get("/suggestions", searchH.Suggestions)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/files", knowledgeH.Files)
			r.Get("/sources", knowledgeH.Sources)

			// Authenticated routes
			r.Group(func(r chi.Router) {
				r.Use(BearerAuth(opts.APIKey))
				r.Post("/", knowledgeH.Ingest)
				r.Post("/sync", knowledgeH.Sync)
				r.Delete("/{id}", knowledgeH.Delete)
			})
		})
	})

	return r
}
