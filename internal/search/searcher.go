// Package search answers "which knowledge chunks are relevant to this
// query" on top of an embedder and a vector store.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/alta-ny/chatbot/internal/embedding"
	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/vectorstore"
)

// Retrieval stages reported on failures.
const (
	StageEmbed = "embed"
	StageQuery = "query"
)

// minExactSuperset is the smallest candidate pool fetched for exact mode.
const minExactSuperset = 10

// Searcher runs a single-mode lookup. Implementations return errors; the
// Retriever decides whether to surface or absorb them.
type Searcher interface {
	Semantic(ctx context.Context, query string, topK int, filter map[string]any) ([]models.SearchResult, error)
	Exact(ctx context.Context, query string, topK int, filter map[string]any) ([]models.SearchResult, error)
	Mock() bool
}

// StageError records which step of a lookup failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// VectorSearcher embeds the query and ranks chunks in the vector store.
type VectorSearcher struct {
	embedder embedding.Embedder
	store    vectorstore.Store
}

func NewVectorSearcher(embedder embedding.Embedder, store vectorstore.Store) *VectorSearcher {
	return &VectorSearcher{embedder: embedder, store: store}
}

func (s *VectorSearcher) Mock() bool { return false }

// Semantic returns the store's raw cosine ranking.
func (s *VectorSearcher) Semantic(ctx context.Context, query string, topK int, filter map[string]any) ([]models.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &StageError{Stage: StageEmbed, Err: err}
	}
	results, err := s.store.Query(ctx, vec, topK, filter)
	if err != nil {
		return nil, &StageError{Stage: StageQuery, Err: err}
	}
	return results, nil
}

// Exact fetches a larger semantic candidate pool and keeps only chunks whose
// content contains the query, case-insensitively. It can return fewer than
// topK results, or none, even when related chunks exist.
func (s *VectorSearcher) Exact(ctx context.Context, query string, topK int, filter map[string]any) ([]models.SearchResult, error) {
	candidates, err := s.Semantic(ctx, query, ExactSupersetK(topK), filter)
	if err != nil {
		return nil, err
	}
	return FilterExact(candidates, query, topK), nil
}

// ExactSupersetK is the candidate pool size for an exact lookup of topK.
func ExactSupersetK(topK int) int {
	return max(2*topK, minExactSuperset)
}

// FilterExact keeps results whose content contains query (case-insensitive),
// preserving order, capped at topK.
func FilterExact(results []models.SearchResult, query string, topK int) []models.SearchResult {
	needle := strings.ToLower(query)
	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		if strings.Contains(strings.ToLower(r.Content()), needle) {
			out = append(out, r)
			if topK > 0 && len(out) == topK {
				break
			}
		}
	}
	return out
}

// MockSearcher returns canned, clearly marked results so the chat pipeline
// works without any provider configured.
type MockSearcher struct{}

func (MockSearcher) Mock() bool { return true }

func (MockSearcher) Semantic(_ context.Context, query string, _ int, _ map[string]any) ([]models.SearchResult, error) {
	return []models.SearchResult{{
		ID:    "mock-1",
		Score: 0.95,
		Metadata: map[string]any{
			"content":  "Mock result for: " + query,
			"filename": "mock-document.txt",
			"mock":     true,
		},
	}}, nil
}

func (MockSearcher) Exact(_ context.Context, query string, _ int, _ map[string]any) ([]models.SearchResult, error) {
	return []models.SearchResult{{
		ID:    "mock-exact-1",
		Score: 1.0,
		Metadata: map[string]any{
			"content":  "Exact match for: " + query,
			"filename": "mock-document.txt",
			"mock":     true,
		},
	}}, nil
}
