// Package translate provides the translation sub-call used around chat
// composition, backed by a bounded translation memory.
package translate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alta-ny/chatbot/internal/store"
)

// DefaultCacheSize bounds the translation memory.
const DefaultCacheSize = 1000

// Cache is a bounded translation memory keyed by (text, target language).
// Eviction is insertion-order FIFO: reading an entry or re-putting an
// existing key never changes its position.
type Cache interface {
	Get(ctx context.Context, text, lang string) (string, bool, error)
	Put(ctx context.Context, text, lang, translated string) error
	Len(ctx context.Context) (int, error)
}

type cacheKey struct {
	text string
	lang string
}

// MemoryCache is a process-local FIFO Cache.
type MemoryCache struct {
	capacity int

	mu      sync.Mutex
	entries map[cacheKey]string
	order   []cacheKey
}

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &MemoryCache{
		capacity: capacity,
		entries:  make(map[cacheKey]string, capacity),
	}
}

func (c *MemoryCache) Get(_ context.Context, text, lang string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[cacheKey{text, lang}]
	return v, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, text, lang, translated string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := cacheKey{text, lang}
	if _, ok := c.entries[k]; ok {
		c.entries[k] = translated
		return nil
	}
	c.entries[k] = translated
	c.order = append(c.order, k)
	for len(c.order) > c.capacity {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	return nil
}

func (c *MemoryCache) Len(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), nil
}

// SQLCache keeps the translation memory in SQLite. Row ids record insertion
// order, and an upsert on an existing key keeps its row id.
type SQLCache struct {
	db       *store.DB
	capacity int
}

func NewSQLCache(db *store.DB, capacity int) *SQLCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &SQLCache{db: db, capacity: capacity}
}

func (c *SQLCache) Get(ctx context.Context, text, lang string) (string, bool, error) {
	var v string
	err := c.db.QueryRowContext(ctx, `
		SELECT translated_text FROM translations
		WHERE source_text = ? AND target_language = ?
	`, text, lang).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get translation: %w", err)
	}
	return v, true, nil
}

func (c *SQLCache) Put(ctx context.Context, text, lang, translated string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO translations (source_text, target_language, translated_text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_text, target_language) DO UPDATE SET
			translated_text = excluded.translated_text
	`, text, lang, translated, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put translation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM translations WHERE id NOT IN (
			SELECT id FROM translations ORDER BY id DESC LIMIT ?
		)
	`, c.capacity)
	if err != nil {
		return fmt.Errorf("evict translations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	return nil
}

func (c *SQLCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count translations: %w", err)
	}
	return n, nil
}
