package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"

	"github.com/alta-ny/chatbot/internal/api"
	"github.com/alta-ny/chatbot/internal/chat"
	"github.com/alta-ny/chatbot/internal/config"
	"github.com/alta-ny/chatbot/internal/conversation"
	"github.com/alta-ny/chatbot/internal/embedding"
	"github.com/alta-ny/chatbot/internal/knowledge"
	"github.com/alta-ny/chatbot/internal/search"
	"github.com/alta-ny/chatbot/internal/store"
	"github.com/alta-ny/chatbot/internal/translate"
	"github.com/alta-ny/chatbot/internal/vectorstore"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SQLite
	var db *store.DB
	if cfg.UsesSQLite() {
		db, err = store.Open(cfg.DBPath)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	profile, err := chat.LoadProfile(cfg.ProfilePath)
	if err != nil {
		logger.Error("failed to load profile", "path", cfg.ProfilePath, "error", err)
		os.Exit(1)
	}

	// Vector store
	vectors, closeVectors, err := openVectorStore(rootCtx, cfg, logger)
	if errors.Is(err, vectorstore.ErrIndexTimeout) {
		logger.Error("vector index did not become ready", "index", cfg.PineconeIndex, "timeout", cfg.IndexReadyTimeout)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open vector store", "backend", cfg.VectorBackend, "error", err)
		os.Exit(1)
	}
	defer closeVectors()

	// OpenAI-backed services, or their mock counterparts
	var (
		embedder   embedding.Embedder
		translator translate.Translator = translate.Passthrough{}
		composer   chat.Composer        = chat.NewMockComposer(profile, nil)
	)
	if cfg.OpenAIConfigured() {
		oaCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" {
			oaCfg.BaseURL = cfg.OpenAIBaseURL
		}
		client := openai.NewClientWithConfig(oaCfg)

		embedder = embedding.NewOpenAIEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim)
		if cfg.EmbeddingCache && db != nil {
			embCache := store.NewEmbeddingCacheStore(db)
			if n, err := embCache.Count(); err == nil {
				logger.Info("embedding cache enabled", "entries", n)
			}
			embedder = embedding.NewCachedEmbedder(embedder, embCache, cfg.EmbeddingModel, logger)
		}

		var cache translate.Cache = translate.NewMemoryCache(cfg.TranslationCacheSize)
		if cfg.TranslationBackend == config.BackendSQLite {
			cache = translate.NewSQLCache(db, cfg.TranslationCacheSize)
		}
		translator = translate.NewOpenAITranslator(client, cfg.ChatModel, cache, logger)
		composer = chat.NewOpenAIComposer(client, cfg.ChatModel, profile, translator, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set, running embedding, completion and translation in mock mode")
	}

	// Retrieval
	var searcher search.Searcher = search.MockSearcher{}
	if embedder != nil && !vectors.Mock() {
		searcher = search.NewVectorSearcher(embedder, vectors)
	}
	retriever := search.NewRetriever(searcher, logger)

	// Conversation history
	var history conversation.Store = conversation.NewMemoryStore(cfg.HistoryLimit)
	if cfg.SessionBackend == config.BackendSQLite {
		history = conversation.NewSQLStore(db, cfg.HistoryLimit)
	}

	orch := chat.NewOrchestrator(retriever, composer, translator, history, logger)

	// Knowledge ingestion
	var docs *store.DocumentStore
	if db != nil {
		docs = store.NewDocumentStore(db)
	}
	ingester := knowledge.NewIngester(embedder, vectors, docs, logger)

	var knowledgeSync *knowledge.SyncService
	if len(cfg.KnowledgeDirs) > 0 {
		knowledgeSync = knowledge.NewSyncService(ingester, cfg.KnowledgeDirs, logger)
	}

	// Router
	router := api.NewRouter(api.Deps{
		DB:           db,
		Orchestrator: orch,
		Retriever:    retriever,
		Vectors:      vectors,
		Ingester:     ingester,
		Sync:         knowledgeSync,
		Profile:      profile,
	}, api.Options{
		APIKey:            cfg.APIKey,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("chatbot server starting",
			"addr", addr,
			"vector_backend", cfg.VectorBackend,
			"vector_mock", vectors.Mock(),
			"completion_mock", composer.Mock(),
			"session_backend", cfg.SessionBackend,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Auto-sync knowledge on startup
	if cfg.KnowledgeAutoSync && knowledgeSync != nil {
		go func() {
			result, err := knowledgeSync.Sync(rootCtx)
			if err != nil {
				logger.Error("knowledge auto-sync failed", "error", err)
				return
			}
			logger.Info("knowledge auto-sync complete",
				"found", result.Found,
				"stored", result.Stored,
				"errors", result.Errors,
			)
		}()
	}

	<-rootCtx.Done()
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// openVectorStore builds the configured backend. An unconfigured Pinecone
// backend falls back to the mock store.
func openVectorStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vectorstore.Store, func(), error) {
	noop := func() {}

	switch cfg.VectorBackend {
	case config.VectorBackendBolt:
		s, err := vectorstore.OpenBoltStore(cfg.BoltPath, cfg.EmbeddingDim)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { s.Close() }, nil

	case config.VectorBackendQdrant:
		s := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDim, logger)
		if err := s.HealthCheck(ctx); err != nil {
			logger.Warn("qdrant not available at startup, will retry on first use", "error", err)
		}
		return s, noop, nil

	default:
		if !cfg.VectorConfigured() {
			logger.Warn("PINECONE_API_KEY not set, using mock vector store")
			return vectorstore.NewMockStore(), noop, nil
		}
		s := vectorstore.NewPineconeStore(vectorstore.PineconeConfig{
			APIKey:       cfg.PineconeAPIKey,
			IndexName:    cfg.PineconeIndex,
			ControlURL:   cfg.PineconeControlURL,
			Cloud:        cfg.PineconeCloud,
			Region:       cfg.PineconeRegion,
			Dimension:    cfg.EmbeddingDim,
			PollInterval: cfg.IndexPollInterval,
			ReadyTimeout: cfg.IndexReadyTimeout,
		}, logger)
		if err := s.EnsureIndex(ctx); err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}
