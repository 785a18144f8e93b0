package search

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alta-ny/chatbot/internal/models"
)

// DefaultSemanticWeight is the hybrid blend used when the caller gives none.
const DefaultSemanticWeight = 0.7

// UnknownSource labels results without a filename.
const UnknownSource = "Unknown source"

// Retriever runs lookups for the chat pipeline and the search API. Every
// failure is counted and emitted as a structured event.
type Retriever struct {
	searcher Searcher
	logger   *slog.Logger
	failures atomic.Int64
}

func NewRetriever(searcher Searcher, logger *slog.Logger) *Retriever {
	return &Retriever{searcher: searcher, logger: logger}
}

// Failures returns the number of failed lookups since startup.
func (r *Retriever) Failures() int64 { return r.failures.Load() }

// Mock reports whether lookups return canned data.
func (r *Retriever) Mock() bool { return r.searcher.Mock() }

// Search is the chat-facing lookup. It never fails: any embedding or store
// error yields an empty Retrieval.
func (r *Retriever) Search(ctx context.Context, query string, mode models.SearchMode, topK int) models.Retrieval {
	var (
		results []models.SearchResult
		err     error
	)
	if mode == models.SearchModeHybrid {
		results, err = r.Hybrid(ctx, query, topK, DefaultSemanticWeight, nil)
	} else {
		results, err = r.Query(ctx, mode, query, topK, nil)
	}
	if err != nil {
		return models.Retrieval{Results: []models.SearchResult{}, Sources: []string{}}
	}
	return models.Retrieval{Results: results, Sources: Sources(results)}
}

// Query runs a semantic or exact lookup and returns its error to the caller.
func (r *Retriever) Query(ctx context.Context, mode models.SearchMode, query string, topK int, filter map[string]any) ([]models.SearchResult, error) {
	var (
		results []models.SearchResult
		err     error
	)
	switch mode {
	case models.SearchModeExact:
		results, err = r.searcher.Exact(ctx, query, topK, filter)
	default:
		mode = models.SearchModeSemantic
		results, err = r.searcher.Semantic(ctx, query, topK, filter)
	}
	if err != nil {
		r.recordFailure(mode, err)
		return nil, err
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}

// Hybrid blends a semantic lookup of ceil(topK*w) with an exact lookup of
// ceil(topK*(1-w)). Scores are weighted by their branch; a chunk found by
// both keeps the higher weighted score and is tagged hybrid. A failing branch
// is dropped; the call fails only when both branches fail.
func (r *Retriever) Hybrid(ctx context.Context, query string, topK int, semanticWeight float64, filter map[string]any) ([]models.SearchResult, error) {
	semanticK := int(math.Ceil(float64(topK) * semanticWeight))
	exactK := int(math.Ceil(float64(topK) * (1 - semanticWeight)))

	var (
		wg                    sync.WaitGroup
		semantic, exact       []models.SearchResult
		semanticErr, exactErr error
	)
	if semanticK > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semantic, semanticErr = r.Query(ctx, models.SearchModeSemantic, query, semanticK, filter)
		}()
	}
	if exactK > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exact, exactErr = r.Query(ctx, models.SearchModeExact, query, exactK, filter)
		}()
	}
	wg.Wait()

	switch {
	case semanticErr != nil && exactErr != nil:
		return nil, errors.Join(semanticErr, exactErr)
	case semanticErr != nil && exactK == 0:
		return nil, semanticErr
	case exactErr != nil && semanticK == 0:
		return nil, exactErr
	}

	merged := make(map[string]*models.SearchResult, len(semantic)+len(exact))
	for _, res := range semantic {
		res.Score *= semanticWeight
		res.SearchType = models.SearchTypeSemantic
		merged[res.ID] = &res
	}
	for _, res := range exact {
		score := res.Score * (1 - semanticWeight)
		if existing, ok := merged[res.ID]; ok {
			existing.Score = math.Max(existing.Score, score)
			existing.SearchType = models.SearchTypeHybrid
			continue
		}
		res.Score = score
		res.SearchType = models.SearchTypeExact
		merged[res.ID] = &res
	}

	results := make([]models.SearchResult, 0, len(merged))
	for _, res := range merged {
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *Retriever) recordFailure(mode models.SearchMode, err error) {
	r.failures.Add(1)

	stage := "unknown"
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	r.logger.Error("retrieval failed",
		"event", "retrieval_failed",
		"stage", stage,
		"mode", string(mode),
		"error", err,
	)
}

// Sources returns the distinct filenames across results in first-seen order.
// Results without a filename are reported as UnknownSource.
func Sources(results []models.SearchResult) []string {
	seen := make(map[string]bool, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		name := r.Filename()
		if name == "" {
			name = UnknownSource
		}
		if !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
	}
	return sources
}
