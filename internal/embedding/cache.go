package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/store"
	"github.com/alta-ny/chatbot/internal/vectorstore"
)

// CachedEmbedder wraps an Embedder with content-hash caching via SQLite.
type CachedEmbedder struct {
	next   Embedder
	cache  *store.EmbeddingCacheStore
	model  string
	logger *slog.Logger
}

func NewCachedEmbedder(next Embedder, cache *store.EmbeddingCacheStore, model string, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		next:   next,
		cache:  cache,
		model:  model,
		logger: logger,
	}
}

func (e *CachedEmbedder) Dimension() int { return e.next.Dimension() }

// Embed returns the embedding for text, using the cache when available.
// Cache errors are logged and never fail the call.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)
	dim := e.next.Dimension()

	entry, err := e.cache.Get(hash, e.model, dim)
	if err != nil {
		e.logger.Warn("embedding cache lookup failed", "error", err)
	} else if entry != nil {
		if vec, err := vectorstore.DecodeVector(entry.Embedding); err == nil && len(vec) == dim {
			return vec, nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	cacheEntry := &models.EmbeddingCacheEntry{
		ContentHash: hash,
		Embedding:   vectorstore.EncodeVector(vec),
		Dimension:   dim,
		Model:       e.model,
	}
	if err := e.cache.Put(cacheEntry); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}

	return vec, nil
}

// ContentHash computes a SHA-256 hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
