package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alta-ny/chatbot/internal/store"
)

// fakeOpenAI returns a fixed 6-dimensional embedding, or a 500 when fail is set.
func fakeOpenAI(t *testing.T, calls *atomic.Int32, fail bool) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-ada-002",
			"data": []any{
				map[string]any{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestOpenAIEmbedderTruncates(t *testing.T) {
	var calls atomic.Int32
	e := NewOpenAIEmbedder(fakeOpenAI(t, &calls, false), "text-embedding-ada-002", 4)

	vec, err := e.Embed(context.Background(), "five boroughs")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	want := []float32{0.1, 0.2, 0.3, 0.4}
	if len(vec) != len(want) {
		t.Fatalf("expected %d dims, got %d", len(want), len(vec))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("component %d: got %v, want %v (first N kept, not re-normalized)", i, vec[i], want[i])
		}
	}
}

func TestOpenAIEmbedderNeverPads(t *testing.T) {
	var calls atomic.Int32
	e := NewOpenAIEmbedder(fakeOpenAI(t, &calls, false), "m", 8)

	_, err := e.Embed(context.Background(), "short vector")
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
}

func TestOpenAIEmbedderFailures(t *testing.T) {
	t.Run("empty text is rejected before calling the provider", func(t *testing.T) {
		var calls atomic.Int32
		e := NewOpenAIEmbedder(fakeOpenAI(t, &calls, false), "m", 4)
		_, err := e.Embed(context.Background(), "   ")
		var f *Failure
		if !errors.As(err, &f) {
			t.Fatalf("expected *Failure, got %v", err)
		}
		if calls.Load() != 0 {
			t.Fatalf("expected no provider calls, got %d", calls.Load())
		}
	})

	t.Run("provider error carries provider message", func(t *testing.T) {
		var calls atomic.Int32
		e := NewOpenAIEmbedder(fakeOpenAI(t, &calls, true), "m", 4)
		_, err := e.Embed(context.Background(), "hello")
		var f *Failure
		if !errors.As(err, &f) {
			t.Fatalf("expected *Failure, got %v", err)
		}
		if !strings.Contains(f.Message, "upstream exploded") {
			t.Fatalf("expected provider message, got %q", f.Message)
		}
		if calls.Load() != 1 {
			t.Fatalf("expected exactly one call (no retry), got %d", calls.Load())
		}
	})
}

func TestCachedEmbedder(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var calls atomic.Int32
	inner := NewOpenAIEmbedder(fakeOpenAI(t, &calls, false), "text-embedding-ada-002", 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewCachedEmbedder(inner, store.NewEmbeddingCacheStore(db), "text-embedding-ada-002", logger)

	first, err := e.Embed(context.Background(), "Upper East Side")
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}
	second, err := e.Embed(context.Background(), "Upper East Side")
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one provider call, got %d", calls.Load())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
	if e.Dimension() != 4 {
		t.Fatalf("expected dimension 4, got %d", e.Dimension())
	}
}

func TestContentHashIsStable(t *testing.T) {
	if ContentHash("a") != ContentHash("a") {
		t.Fatal("hash not deterministic")
	}
	if ContentHash("a") == ContentHash("b") {
		t.Fatal("different inputs collided")
	}
	if len(ContentHash("a")) != 64 {
		t.Fatal("expected hex sha256")
	}
}
