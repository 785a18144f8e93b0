package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/alta-ny/chatbot/internal/models"
)

// EmbeddingCacheStore persists embeddings keyed by content hash, model and
// target dimension, so a model or dimension change never serves stale vectors.
type EmbeddingCacheStore struct {
	db *DB
}

func NewEmbeddingCacheStore(db *DB) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: db}
}

// Get returns a cached embedding, or nil if not found.
func (s *EmbeddingCacheStore) Get(contentHash, model string, dimension int) (*models.EmbeddingCacheEntry, error) {
	var e models.EmbeddingCacheEntry
	err := s.db.QueryRow(`
		SELECT content_hash, embedding, dimension, model, updated_at
		FROM embedding_cache
		WHERE content_hash = ? AND model = ? AND dimension = ?
	`, contentHash, model, dimension).Scan(&e.ContentHash, &e.Embedding, &e.Dimension, &e.Model, &e.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding cache: %w", err)
	}
	return &e, nil
}

// Put upserts an embedding cache entry.
func (s *EmbeddingCacheStore) Put(entry *models.EmbeddingCacheEntry) error {
	entry.UpdatedAt = time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO embedding_cache (content_hash, model, dimension, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, model, dimension) DO UPDATE SET
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, entry.ContentHash, entry.Model, entry.Dimension, entry.Embedding, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put embedding cache: %w", err)
	}
	return nil
}

// Count returns the number of cached embeddings.
func (s *EmbeddingCacheStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM embedding_cache`).Scan(&n)
	return n, err
}
