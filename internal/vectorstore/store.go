// Package vectorstore wraps the vector databases the knowledge base can live
// in. Every backend satisfies Store; the backend and its mode (live or mock)
// are chosen once at startup.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/alta-ny/chatbot/internal/models"
)

// Store is the contract every vector backend implements.
type Store interface {
	// Upsert writes records, overwriting any existing record with the same id.
	Upsert(ctx context.Context, records []models.Record) error
	// Query returns up to topK results ordered by descending score. A nil or
	// empty filter means no filtering; otherwise every field must match exactly.
	Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]models.SearchResult, error)
	DeleteByID(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.IndexStats, error)
	// Mock reports whether the store returns canned data.
	Mock() bool
}

// ErrIndexTimeout is returned when a newly created index does not become
// ready within the configured wait. It is fatal at startup.
var ErrIndexTimeout = errors.New("index creation timeout")

// ProviderError is a non-2xx response from a vector provider.
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.Status, e.Body)
}

// matchesFilter applies exact-match AND semantics across filter fields.
func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// sortAndLimit orders results by descending score, breaking ties by id so
// results are stable, and truncates to topK.
func sortAndLimit(results []models.SearchResult, topK int) []models.SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
