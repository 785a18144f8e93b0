package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Vector store backends.
const (
	VectorBackendPinecone = "pinecone"
	VectorBackendQdrant   = "qdrant"
	VectorBackendBolt     = "bolt"
)

// State backends for sessions and translation memory.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	Port     int
	DBPath   string
	LogLevel string
	// State
	SessionBackend       string
	TranslationBackend   string
	HistoryLimit         int
	TranslationCacheSize int
	// OpenAI
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int
	EmbeddingCache bool
	// Vector store
	VectorBackend      string
	PineconeAPIKey     string
	PineconeIndex      string
	PineconeControlURL string
	PineconeCloud      string
	PineconeRegion     string
	QdrantURL          string
	QdrantCollection   string
	BoltPath           string
	IndexReadyTimeout  time.Duration
	IndexPollInterval  time.Duration
	// HTTP
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
	APIKey            string
	// Knowledge
	KnowledgeDirs     []string
	KnowledgeAutoSync bool
	ProfilePath       string
	// MCP adapter
	ServerURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                 envInt("PORT", 5001),
		DBPath:               envStr("DB_PATH", "./data/chatbot.db"),
		LogLevel:             envStr("LOG_LEVEL", "info"),
		SessionBackend:       envStr("SESSION_BACKEND", BackendMemory),
		TranslationBackend:   envStr("TRANSLATION_BACKEND", BackendMemory),
		HistoryLimit:         envInt("HISTORY_LIMIT", 20),
		TranslationCacheSize: envInt("TRANSLATION_CACHE_SIZE", 1000),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        os.Getenv("OPENAI_BASE_URL"),
		ChatModel:            envStr("CHAT_MODEL", "gpt-3.5-turbo"),
		EmbeddingModel:       envStr("EMBEDDING_MODEL", "text-embedding-ada-002"),
		EmbeddingDim:         envInt("EMBEDDING_DIM", 1024),
		EmbeddingCache:       envBool("EMBEDDING_CACHE", true),
		VectorBackend:        envStr("VECTOR_BACKEND", VectorBackendPinecone),
		PineconeAPIKey:       os.Getenv("PINECONE_API_KEY"),
		PineconeIndex:        envStr("PINECONE_INDEX_NAME", "alta-ny-knowledge-base"),
		PineconeControlURL:   envStr("PINECONE_CONTROL_URL", "https://api.pinecone.io"),
		PineconeCloud:        envStr("PINECONE_CLOUD", "aws"),
		PineconeRegion:       envStr("PINECONE_REGION", "us-east-1"),
		QdrantURL:            envStr("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:     envStr("QDRANT_COLLECTION", "alta_ny_knowledge"),
		BoltPath:             envStr("BOLT_PATH", "./data/vectors.db"),
		IndexReadyTimeout:    envDuration("INDEX_READY_TIMEOUT", 5*time.Minute),
		IndexPollInterval:    envDuration("INDEX_POLL_INTERVAL", 5*time.Second),
		RateLimitRequests:    envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:      envDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		AllowedOrigins:       envList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		APIKey:               os.Getenv("API_KEY"),
		KnowledgeDirs:        envList("KNOWLEDGE_DIRS", []string{"./content"}),
		KnowledgeAutoSync:    envBool("KNOWLEDGE_AUTO_SYNC", false),
		ProfilePath:          os.Getenv("PROFILE_PATH"),
		ServerURL:            envStr("CHATBOT_SERVER_URL", "http://localhost:5001"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// OpenAIConfigured reports whether completion, embedding and translation
// calls can reach a real provider.
func (c *Config) OpenAIConfigured() bool {
	return c.OpenAIAPIKey != ""
}

// VectorConfigured reports whether the selected vector backend has what it
// needs to run live. Only Pinecone requires credentials.
func (c *Config) VectorConfigured() bool {
	if c.VectorBackend == VectorBackendPinecone {
		return c.PineconeAPIKey != ""
	}
	return true
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	// History is trimmed a whole user/assistant pair at a time.
	if c.HistoryLimit < 2 || c.HistoryLimit%2 != 0 {
		return fmt.Errorf("HISTORY_LIMIT must be an even number of at least 2, got %d", c.HistoryLimit)
	}
	if c.TranslationCacheSize < 1 {
		return fmt.Errorf("TRANSLATION_CACHE_SIZE must be positive, got %d", c.TranslationCacheSize)
	}
	switch c.VectorBackend {
	case VectorBackendPinecone, VectorBackendQdrant, VectorBackendBolt:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be pinecone, qdrant or bolt, got %q", c.VectorBackend)
	}
	for name, v := range map[string]string{
		"SESSION_BACKEND":     c.SessionBackend,
		"TRANSLATION_BACKEND": c.TranslationBackend,
	} {
		if v != BackendMemory && v != BackendSQLite {
			return fmt.Errorf("%s must be memory or sqlite, got %q", name, v)
		}
	}
	if c.UsesSQLite() && c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.IndexPollInterval <= 0 || c.IndexReadyTimeout < c.IndexPollInterval {
		return fmt.Errorf("INDEX_READY_TIMEOUT (%s) must be >= INDEX_POLL_INTERVAL (%s) > 0",
			c.IndexReadyTimeout, c.IndexPollInterval)
	}
	if c.RateLimitRequests < 1 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// UsesSQLite reports whether any component needs the SQLite file.
func (c *Config) UsesSQLite() bool {
	return c.SessionBackend == BackendSQLite ||
		c.TranslationBackend == BackendSQLite ||
		c.EmbeddingCache
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
