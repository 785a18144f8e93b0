package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alta-ny/chatbot/internal/models"
)

// recordIDField holds the caller's string id in the point payload. Qdrant
// only accepts unsigned integers or UUIDs as point ids.
const recordIDField = "record_id"

// pointNamespace seeds the UUIDv5 derivation of point ids.
var pointNamespace = uuid.MustParse("6f1c2a4e-8d3b-5a7f-9e21-0c4b7d8e1f35")

// QdrantStore keeps the knowledge base in a single Qdrant collection. The
// collection is created on first use.
type QdrantStore struct {
	baseURL    string
	collection string
	dimension  int
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	ready bool
}

func NewQdrantStore(baseURL, collection string, dimension int, logger *slog.Logger) *QdrantStore {
	return &QdrantStore{
		baseURL:    baseURL,
		collection: collection,
		dimension:  dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// HealthCheck verifies Qdrant connectivity.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant health check: status %d", resp.StatusCode)
	}
	return nil
}

// ensureCollection creates the collection once per process.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.RLock()
	if s.ready {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	status, _, err := s.send(ctx, http.MethodGet, "/collections/"+s.collection, nil)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if status != http.StatusOK {
		s.logger.Info("creating qdrant collection", "collection", s.collection, "dimension", s.dimension)
		body := map[string]any{
			"vectors": map[string]any{
				"size":     s.dimension,
				"distance": "Cosine",
			},
		}
		if err := s.expect(ctx, http.MethodPut, "/collections/"+s.collection, "create collection", body, nil); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

func pointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func (s *QdrantStore) Upsert(ctx context.Context, records []models.Record) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	points := make([]qdrantPoint, len(records))
	for i, r := range records {
		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[recordIDField] = r.ID
		points[i] = qdrantPoint{ID: pointID(r.ID), Vector: r.Vector, Payload: payload}
	}
	body := map[string]any{"points": points}
	return s.expect(ctx, http.MethodPut, "/collections/"+s.collection+"/points?wait=true", "upsert", body, nil)
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]models.SearchResult, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for k, v := range filter {
			must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
		}
		body["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.expect(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", "search", body, &resp); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, len(resp.Result))
	for i, r := range resp.Result {
		id, _ := r.Payload[recordIDField].(string)
		if id == "" {
			id = fmt.Sprint(r.ID)
		}
		delete(r.Payload, recordIDField)
		results[i] = models.SearchResult{ID: id, Score: r.Score, Metadata: r.Payload}
	}
	return sortAndLimit(results, topK), nil
}

func (s *QdrantStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	body := map[string]any{"points": []string{pointID(id)}}
	return s.expect(ctx, http.MethodPost, "/collections/"+s.collection+"/points/delete?wait=true", "delete", body, nil)
}

func (s *QdrantStore) Stats(ctx context.Context) (*models.IndexStats, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	if err := s.expect(ctx, http.MethodGet, "/collections/"+s.collection, "collection info", nil, &resp); err != nil {
		return nil, err
	}
	return &models.IndexStats{TotalVectors: resp.Result.PointsCount, Dimension: s.dimension}, nil
}

func (s *QdrantStore) Mock() bool { return false }

// expect sends a request, fails on any status >= 400 and decodes the body
// into out when out is non-nil.
func (s *QdrantStore) expect(ctx context.Context, method, path, op string, body, out any) error {
	status, respBody, err := s.send(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	if status >= 400 {
		return &ProviderError{Provider: "qdrant", Op: op, Status: status, Body: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}

func (s *QdrantStore) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
