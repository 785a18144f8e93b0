package vectorstore

import (
	"context"

	"github.com/alta-ny/chatbot/internal/models"
)

// MockStore stands in for the index when no provider is configured. Writes
// are accepted and discarded; queries return a single canned hit.
type MockStore struct{}

func NewMockStore() *MockStore { return &MockStore{} }

func (MockStore) Upsert(context.Context, []models.Record) error { return nil }

func (MockStore) Query(_ context.Context, _ []float32, _ int, _ map[string]any) ([]models.SearchResult, error) {
	return []models.SearchResult{{
		ID:    "mock-1",
		Score: 0.95,
		Metadata: map[string]any{
			"content":  "Mock knowledge base entry",
			"filename": "mock-document.txt",
		},
	}}, nil
}

func (MockStore) DeleteByID(context.Context, string) error { return nil }

func (MockStore) Stats(context.Context) (*models.IndexStats, error) {
	return &models.IndexStats{Mock: true}, nil
}

func (MockStore) Mock() bool { return true }
