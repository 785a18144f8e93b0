package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alta-ny/chatbot/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeVectorRejectsBadLength(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for 3-byte blob")
	}
	v, err := DecodeVector(EncodeVector([]float32{0.5, -2}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(v) != 2 || v[0] != 0.5 || v[1] != -2 {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestMatchesFilter(t *testing.T) {
	meta := map[string]any{"filename": "neighborhoods.txt", "chunkIndex": float64(2)}
	tests := []struct {
		name   string
		filter map[string]any
		want   bool
	}{
		{"empty", nil, true},
		{"string match", map[string]any{"filename": "neighborhoods.txt"}, true},
		{"number compared loosely", map[string]any{"chunkIndex": 2}, true},
		{"mismatch", map[string]any{"filename": "other.txt"}, false},
		{"missing field", map[string]any{"borough": "Queens"}, false},
		{"all fields must match", map[string]any{"filename": "neighborhoods.txt", "chunkIndex": 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(meta, tt.filter); got != tt.want {
				t.Errorf("matchesFilter = %v, want %v", got, tt.want)
			}
		})
	}
}

func openTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "vectors.db"), 2)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)

	records := []models.Record{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"filename": "a.txt"}},
		{ID: "b", Vector: []float32{0.7, 0.7}, Metadata: map[string]any{"filename": "b.txt"}},
		{ID: "c", Vector: []float32{0, 1}, Metadata: map[string]any{"filename": "b.txt"}},
	}
	if err := s.Upsert(ctx, records); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	t.Run("query orders by score", func(t *testing.T) {
		res, err := s.Query(ctx, []float32{1, 0}, 2, nil)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(res) != 2 || res[0].ID != "a" || res[1].ID != "b" {
			t.Fatalf("unexpected results %+v", res)
		}
		if res[0].Score < res[1].Score {
			t.Fatal("results not sorted by descending score")
		}
	})

	t.Run("filter", func(t *testing.T) {
		res, err := s.Query(ctx, []float32{1, 0}, 10, map[string]any{"filename": "b.txt"})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(res) != 2 {
			t.Fatalf("expected 2 filtered results, got %d", len(res))
		}
		for _, r := range res {
			if r.Filename() != "b.txt" {
				t.Errorf("unexpected filename %q", r.Filename())
			}
		}
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		if err := s.Upsert(ctx, records[:1]); err != nil {
			t.Fatalf("re-upsert: %v", err)
		}
		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.TotalVectors != 3 {
			t.Fatalf("expected 3 vectors, got %d", stats.TotalVectors)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := s.Upsert(ctx, []models.Record{{ID: "bad", Vector: []float32{1, 2, 3}}})
		if err == nil {
			t.Fatal("expected dimension error")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.DeleteByID(ctx, "a"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.DeleteByID(ctx, "a"); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		stats, _ := s.Stats(ctx)
		if stats.TotalVectors != 2 {
			t.Fatalf("expected 2 vectors after delete, got %d", stats.TotalVectors)
		}
	})
}

func TestMockStore(t *testing.T) {
	s := NewMockStore()
	if !s.Mock() {
		t.Fatal("expected mock store to report mock mode")
	}
	res, err := s.Query(context.Background(), nil, 5, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res) != 1 || res[0].ID != "mock-1" || res[0].Score != 0.95 {
		t.Fatalf("unexpected mock result %+v", res)
	}
}

// fakePinecone serves both the control and data plane from one server.
type fakePinecone struct {
	mu         sync.Mutex
	exists     bool
	readyAfter int // describe calls after creation before ready
	describes  int
	created    map[string]any
	lastQuery  map[string]any
	upserted   int
	srv        *httptest.Server
}

func newFakePinecone(t *testing.T) *fakePinecone {
	f := &fakePinecone{readyAfter: 1}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePinecone) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Api-Key") != "test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var body map[string]any
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/indexes/kb":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.describes++
		ready := f.readyAfter >= 0 && f.describes > f.readyAfter
		json.NewEncoder(w).Encode(map[string]any{
			"name":   "kb",
			"host":   f.srv.URL,
			"status": map[string]any{"ready": ready},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/indexes":
		f.exists = true
		f.created = body
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	case r.URL.Path == "/vectors/upsert":
		vecs, _ := body["vectors"].([]any)
		f.upserted += len(vecs)
		w.Write([]byte(`{"upsertedCount":1}`))
	case r.URL.Path == "/query":
		f.lastQuery = body
		json.NewEncoder(w).Encode(map[string]any{
			"matches": []any{
				map[string]any{"id": "neighborhoods.txt-0", "score": 0.91, "metadata": map[string]any{"filename": "neighborhoods.txt"}},
			},
		})
	case r.URL.Path == "/describe_index_stats":
		w.Write([]byte(`{"dimension":1024,"totalVectorCount":42}`))
	case r.URL.Path == "/vectors/delete":
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePinecone) store(timeout time.Duration) *PineconeStore {
	return NewPineconeStore(PineconeConfig{
		APIKey:       "test-key",
		IndexName:    "kb",
		ControlURL:   f.srv.URL,
		Cloud:        "aws",
		Region:       "us-east-1",
		Dimension:    1024,
		PollInterval: 5 * time.Millisecond,
		ReadyTimeout: timeout,
	}, discardLogger())
}

func TestPineconeEnsureIndexCreatesAndWaits(t *testing.T) {
	f := newFakePinecone(t)
	s := f.store(time.Second)

	if err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	f.mu.Lock()
	created := f.created
	f.mu.Unlock()
	if created == nil {
		t.Fatal("expected index to be created")
	}
	if created["metric"] != "cosine" || created["dimension"] != float64(1024) {
		t.Fatalf("unexpected create body %v", created)
	}
	spec, _ := created["spec"].(map[string]any)
	serverless, _ := spec["serverless"].(map[string]any)
	if serverless["cloud"] != "aws" || serverless["region"] != "us-east-1" {
		t.Fatalf("unexpected serverless spec %v", spec)
	}

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalVectors != 42 {
		t.Fatalf("expected 42 vectors, got %d", stats.TotalVectors)
	}
}

func TestPineconeEnsureIndexTimeout(t *testing.T) {
	f := newFakePinecone(t)
	f.readyAfter = 1 << 30
	s := f.store(30 * time.Millisecond)

	err := s.EnsureIndex(context.Background())
	if !errors.Is(err, ErrIndexTimeout) {
		t.Fatalf("expected ErrIndexTimeout, got %v", err)
	}
}

func TestPineconeQuery(t *testing.T) {
	f := newFakePinecone(t)
	f.exists = true
	f.readyAfter = 0
	s := f.store(time.Second)
	ctx := context.Background()

	if err := s.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	res, err := s.Query(ctx, []float32{0.1, 0.2}, 5, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res) != 1 || res[0].Filename() != "neighborhoods.txt" {
		t.Fatalf("unexpected results %+v", res)
	}

	f.mu.Lock()
	_, hasFilter := f.lastQuery["filter"]
	topK := f.lastQuery["topK"]
	f.mu.Unlock()
	if hasFilter {
		t.Error("empty filter must be omitted from the request")
	}
	if topK != float64(5) {
		t.Errorf("expected topK 5, got %v", topK)
	}

	if _, err := s.Query(ctx, []float32{0.1}, 3, map[string]any{"filename": "a.txt"}); err != nil {
		t.Fatalf("filtered query: %v", err)
	}
	f.mu.Lock()
	filter, _ := f.lastQuery["filter"].(map[string]any)
	f.mu.Unlock()
	if filter["filename"] != "a.txt" {
		t.Errorf("expected filter to be forwarded, got %v", f.lastQuery)
	}
}

func TestPineconeRequiresEnsureIndex(t *testing.T) {
	f := newFakePinecone(t)
	s := f.store(time.Second)
	if _, err := s.Query(context.Background(), []float32{1}, 1, nil); err == nil {
		t.Fatal("expected error before EnsureIndex")
	}
}

func TestPineconeProviderError(t *testing.T) {
	f := newFakePinecone(t)
	s := f.store(time.Second)
	s.cfg.APIKey = "wrong"

	err := s.EnsureIndex(context.Background())
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 provider error, got %v", err)
	}
}

func TestNormalizeHost(t *testing.T) {
	if got := normalizeHost("kb-abc.svc.pinecone.io"); got != "https://kb-abc.svc.pinecone.io" {
		t.Errorf("got %q", got)
	}
	if got := normalizeHost("http://127.0.0.1:9000/"); got != "http://127.0.0.1:9000" {
		t.Errorf("got %q", got)
	}
}

func TestQdrantStore(t *testing.T) {
	var (
		mu         sync.Mutex
		created    bool
		points     = map[string]map[string]any{}
		lastSearch map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/kb":
			if !created {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points_count": len(points)}})
		case r.Method == http.MethodPut && r.URL.Path == "/collections/kb":
			created = true
			w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/kb/points":
			for _, p := range body["points"].([]any) {
				pm := p.(map[string]any)
				points[pm["id"].(string)] = pm["payload"].(map[string]any)
			}
			w.Write([]byte(`{"result":{"status":"completed"}}`))
		case r.URL.Path == "/collections/kb/points/search":
			lastSearch = body
			var result []any
			for id, payload := range points {
				result = append(result, map[string]any{"id": id, "score": 0.8, "payload": payload})
			}
			json.NewEncoder(w).Encode(map[string]any{"result": result})
		case r.URL.Path == "/collections/kb/points/delete":
			for _, id := range body["points"].([]any) {
				delete(points, id.(string))
			}
			w.Write([]byte(`{"result":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s := NewQdrantStore(srv.URL, "kb", 2, discardLogger())

	err := s.Upsert(ctx, []models.Record{{ID: "neighborhoods.txt-0", Vector: []float32{1, 0}, Metadata: map[string]any{"filename": "neighborhoods.txt"}}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	res, err := s.Query(ctx, []float32{1, 0}, 3, map[string]any{"filename": "neighborhoods.txt"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res) != 1 || res[0].ID != "neighborhoods.txt-0" {
		t.Fatalf("expected original record id, got %+v", res)
	}
	if _, leaked := res[0].Metadata[recordIDField]; leaked {
		t.Error("record id field should be stripped from metadata")
	}

	mu.Lock()
	filter, _ := lastSearch["filter"].(map[string]any)
	mu.Unlock()
	if must, _ := filter["must"].([]any); len(must) != 1 {
		t.Fatalf("expected one must clause, got %v", filter)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalVectors != 1 {
		t.Fatalf("expected 1 point, got %d", stats.TotalVectors)
	}

	if err := s.DeleteByID(ctx, "neighborhoods.txt-0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stats, _ = s.Stats(ctx)
	if stats.TotalVectors != 0 {
		t.Fatalf("expected 0 points after delete, got %d", stats.TotalVectors)
	}
}
