package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alta-ny/chatbot/internal/models"
)

const (
	pineconeAPIVersion  = "2024-07"
	pineconeUpsertBatch = 100
)

// PineconeConfig configures a PineconeStore.
type PineconeConfig struct {
	APIKey       string
	IndexName    string
	ControlURL   string
	Cloud        string
	Region       string
	Dimension    int
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// PineconeStore talks to a Pinecone serverless index over its REST API.
// EnsureIndex must succeed before any data-plane call.
type PineconeStore struct {
	cfg        PineconeConfig
	host       string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewPineconeStore(cfg PineconeConfig, logger *slog.Logger) *PineconeStore {
	if cfg.ControlURL == "" {
		cfg.ControlURL = "https://api.pinecone.io"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Minute
	}
	return &PineconeStore{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type pineconeIndex struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// EnsureIndex connects to the named index, creating it with a cosine metric
// when it does not exist and polling until ready. Exceeding the ready
// timeout returns ErrIndexTimeout.
func (s *PineconeStore) EnsureIndex(ctx context.Context) error {
	idx, err := s.describeIndex(ctx)
	if err != nil {
		return err
	}

	if idx == nil {
		s.logger.Info("pinecone index not found, creating", "index", s.cfg.IndexName, "dimension", s.cfg.Dimension)
		body := map[string]any{
			"name":      s.cfg.IndexName,
			"dimension": s.cfg.Dimension,
			"metric":    "cosine",
			"spec": map[string]any{
				"serverless": map[string]any{
					"cloud":  s.cfg.Cloud,
					"region": s.cfg.Region,
				},
			},
		}
		if _, err := s.do(ctx, http.MethodPost, s.cfg.ControlURL+"/indexes", "create index", body); err != nil {
			return err
		}
	} else if idx.Status.Ready {
		s.host = normalizeHost(idx.Host)
		return nil
	}

	return s.waitForReady(ctx)
}

func (s *PineconeStore) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ReadyTimeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		idx, err := s.describeIndex(ctx)
		if err != nil {
			// Index may not be visible yet; keep polling.
			s.logger.Debug("describe index while waiting", "error", err)
		}
		if idx != nil && idx.Status.Ready {
			s.host = normalizeHost(idx.Host)
			s.logger.Info("pinecone index ready", "index", s.cfg.IndexName, "host", s.host)
			return nil
		}

		if !time.Now().Add(s.cfg.PollInterval).Before(deadline) {
			return fmt.Errorf("pinecone index %s: %w", s.cfg.IndexName, ErrIndexTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// describeIndex returns nil, nil when the index does not exist.
func (s *PineconeStore) describeIndex(ctx context.Context) (*pineconeIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ControlURL+"/indexes/"+s.cfg.IndexName, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone describe index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read describe response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &ProviderError{Provider: "pinecone", Op: "describe index", Status: resp.StatusCode, Body: string(body)}
	}

	var idx pineconeIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("decode describe response: %w", err)
	}
	return &idx, nil
}

// Upsert writes records in batches of 100.
func (s *PineconeStore) Upsert(ctx context.Context, records []models.Record) error {
	if err := s.requireHost(); err != nil {
		return err
	}
	for start := 0; start < len(records); start += pineconeUpsertBatch {
		end := min(start+pineconeUpsertBatch, len(records))
		body := map[string]any{"vectors": records[start:end]}
		if _, err := s.do(ctx, http.MethodPost, s.host+"/vectors/upsert", "upsert", body); err != nil {
			return err
		}
	}
	return nil
}

// Query searches the index. An empty filter is omitted from the request body
// entirely; Pinecone rejects an empty filter object.
func (s *PineconeStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]models.SearchResult, error) {
	if err := s.requireHost(); err != nil {
		return nil, err
	}
	body := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	respBody, err := s.do(ctx, http.MethodPost, s.host+"/query", "query", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	results := make([]models.SearchResult, len(resp.Matches))
	for i, m := range resp.Matches {
		results[i] = models.SearchResult{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return results, nil
}

func (s *PineconeStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.requireHost(); err != nil {
		return err
	}
	_, err := s.do(ctx, http.MethodPost, s.host+"/vectors/delete", "delete", map[string]any{"ids": []string{id}})
	return err
}

func (s *PineconeStore) Stats(ctx context.Context) (*models.IndexStats, error) {
	if err := s.requireHost(); err != nil {
		return nil, err
	}
	respBody, err := s.do(ctx, http.MethodPost, s.host+"/describe_index_stats", "describe stats", map[string]any{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Dimension        int `json:"dimension"`
		TotalVectorCount int `json:"totalVectorCount"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	return &models.IndexStats{TotalVectors: resp.TotalVectorCount, Dimension: resp.Dimension}, nil
}

func (s *PineconeStore) Mock() bool { return false }

func (s *PineconeStore) requireHost() error {
	if s.host == "" {
		return fmt.Errorf("pinecone index %s not initialized", s.cfg.IndexName)
	}
	return nil
}

func (s *PineconeStore) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", s.cfg.APIKey)
	req.Header.Set("X-Pinecone-API-Version", pineconeAPIVersion)
	req.Header.Set("Accept", "application/json")
}

func (s *PineconeStore) do(ctx context.Context, method, url, op string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &ProviderError{Provider: "pinecone", Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// normalizeHost adds a scheme to the bare hostname Pinecone reports.
func normalizeHost(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}
