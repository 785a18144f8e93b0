package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alta-ny/chatbot/internal/models"
)

var vectorsBucket = []byte("vectors")

// BoltStore is a single-file local vector index. Queries are brute-force
// cosine scans, which is fine for a knowledge base of a few thousand chunks.
type BoltStore struct {
	db        *bbolt.DB
	dimension int
}

type boltEntry struct {
	Vector   []byte         `json:"v"`
	Metadata map[string]any `json:"m,omitempty"`
}

// OpenBoltStore opens or creates the index file at path.
func OpenBoltStore(path string, dimension int) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create vector directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(vectorsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db, dimension: dimension}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Upsert(_ context.Context, records []models.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vectorsBucket)
		for _, r := range records {
			if s.dimension > 0 && len(r.Vector) != s.dimension {
				return fmt.Errorf("record %s: dimension %d, index expects %d", r.ID, len(r.Vector), s.dimension)
			}
			data, err := json.Marshal(boltEntry{Vector: EncodeVector(r.Vector), Metadata: r.Metadata})
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", r.ID, err)
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return fmt.Errorf("put record %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]models.SearchResult, error) {
	var results []models.SearchResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(vectorsBucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e boltEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			if len(filter) > 0 && !matchesFilter(e.Metadata, filter) {
				return nil
			}
			vec, err := DecodeVector(e.Vector)
			if err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}
			results = append(results, models.SearchResult{
				ID:       string(k),
				Score:    CosineSimilarity(vector, vec),
				Metadata: e.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sortAndLimit(results, topK), nil
}

func (s *BoltStore) DeleteByID(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(vectorsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) Stats(_ context.Context) (*models.IndexStats, error) {
	stats := &models.IndexStats{Dimension: s.dimension}
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.TotalVectors = tx.Bucket(vectorsBucket).Stats().KeyN
		return nil
	})
	return stats, err
}

func (s *BoltStore) Mock() bool { return false }
