package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alta-ny/chatbot/internal/conversation"
	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/search"
	"github.com/alta-ny/chatbot/internal/translate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLLM serves chat completions. Translation requests are answered with a
// language-tagged echo; everything else with "Reply to: <query>".
type fakeLLM struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	fail     bool
	srv      *httptest.Server
}

func newFakeLLM(t *testing.T) *fakeLLM {
	f := &fakeLLM{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.requests = append(f.requests, req)
		fail := f.fail
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		system, user := req.Messages[0].Content, req.Messages[1].Content

		var content string
		switch {
		case strings.HasPrefix(system, "Translate the following text to "):
			lang := strings.TrimSuffix(strings.Fields(system)[5], ".")
			content = strings.ToUpper(lang) + ": " + user
		case fail:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"completion backend down"}}`))
			return
		default:
			content = "Reply to: " + user
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl",
			"object": "chat.completion",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLLM) client() *openai.Client {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = f.srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func (f *fakeLLM) completions() []openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []openai.ChatCompletionRequest
	for _, r := range f.requests {
		if !strings.HasPrefix(r.Messages[0].Content, "Translate") {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeLLM) translations() []openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []openai.ChatCompletionRequest
	for _, r := range f.requests {
		if strings.HasPrefix(r.Messages[0].Content, "Translate") {
			out = append(out, r)
		}
	}
	return out
}

type fakeSearcher struct {
	results []models.SearchResult
	err     error
}

func (s fakeSearcher) Mock() bool { return false }

func (s fakeSearcher) Semantic(context.Context, string, int, map[string]any) ([]models.SearchResult, error) {
	return s.results, s.err
}

func (s fakeSearcher) Exact(ctx context.Context, q string, k int, f map[string]any) ([]models.SearchResult, error) {
	return s.Semantic(ctx, q, k, f)
}

var neighborhoodsChunk = models.SearchResult{
	ID:    "neighborhoods.txt-0",
	Score: 0.92,
	Metadata: map[string]any{
		"filename": "neighborhoods.txt",
		"content":  "Alta New York covers all five boroughs: Manhattan, Brooklyn, Queens, the Bronx and Staten Island.",
	},
}

type harness struct {
	llm   *fakeLLM
	store *conversation.MemoryStore
	orch  *Orchestrator
	retr  *search.Retriever
}

func newHarness(t *testing.T, searcher search.Searcher) *harness {
	llm := newFakeLLM(t)
	logger := discardLogger()
	tr := translate.NewOpenAITranslator(llm.client(), "gpt-3.5-turbo", translate.NewMemoryCache(100), logger)
	composer := NewOpenAIComposer(llm.client(), "gpt-3.5-turbo", DefaultProfile(), tr, logger)
	store := conversation.NewMemoryStore(conversation.DefaultLimit)
	retr := search.NewRetriever(searcher, logger)
	return &harness{
		llm:   llm,
		store: store,
		retr:  retr,
		orch:  NewOrchestrator(retr, composer, tr, store, logger),
	}
}

func TestNeighborhoodsScenario(t *testing.T) {
	h := newHarness(t, fakeSearcher{results: []models.SearchResult{neighborhoodsChunk}})

	reply := h.orch.ProcessMessage(context.Background(), models.MessageRequest{
		Message:   "What neighborhoods do you cover?",
		SessionID: "s1",
	})

	assert.Empty(t, reply.ErrorCode)
	assert.Contains(t, reply.Sources, "neighborhoods.txt")
	assert.Equal(t, "Reply to: What neighborhoods do you cover?", reply.Message)
	assert.Equal(t, models.SearchModeSemantic, reply.SearchMode)
	assert.Equal(t, "s1", reply.ConversationID)

	reqs := h.llm.completions()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[0].Content, "five boroughs")
	assert.Equal(t, 500, reqs[0].MaxTokens)
	assert.InDelta(t, 0.7, reqs[0].Temperature, 1e-6)
}

func TestSecondMessageSeesPriorTurns(t *testing.T) {
	h := newHarness(t, fakeSearcher{results: []models.SearchResult{neighborhoodsChunk}})
	ctx := context.Background()

	first := h.orch.ProcessMessage(ctx, models.MessageRequest{Message: "Do you handle rentals?", SessionID: "s2"})
	require.Empty(t, first.ErrorCode)
	h.orch.ProcessMessage(ctx, models.MessageRequest{Message: "And in Queens?", SessionID: "s2"})

	reqs := h.llm.completions()
	require.Len(t, reqs, 2)
	wantBlock := "Previous conversation:\nuser: Do you handle rentals?\nassistant: " + first.Message
	assert.True(t, strings.HasSuffix(reqs[1].Messages[0].Content, wantBlock),
		"history block missing from prompt:\n%s", reqs[1].Messages[0].Content)
	assert.True(t, strings.HasSuffix(reqs[0].Messages[0].Content, "Previous conversation:\n"))
}

func TestEmbeddingFailureStillReplies(t *testing.T) {
	h := newHarness(t, fakeSearcher{err: &search.StageError{Stage: search.StageEmbed, Err: errors.New("embed down")}})

	var reply models.ChatReply
	require.NotPanics(t, func() {
		reply = h.orch.ProcessMessage(context.Background(), models.MessageRequest{Message: "Hello", SessionID: "s3"})
	})
	assert.Empty(t, reply.ErrorCode)
	assert.NotEmpty(t, reply.Message)
	assert.Empty(t, reply.Sources)
	assert.NotNil(t, reply.Sources)
	assert.EqualValues(t, 1, h.retr.Failures())
}

func TestHistoryBoundThroughOrchestrator(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	ctx := context.Background()

	for n := 1; n <= 13; n++ {
		h.orch.ProcessMessage(ctx, models.MessageRequest{Message: fmt.Sprintf("message %d", n), SessionID: "bound"})
		hist, err := h.orch.History(ctx, "bound")
		require.NoError(t, err)
		assert.Len(t, hist, min(2*n, 20))
	}
	hist, _ := h.orch.History(ctx, "bound")
	assert.Equal(t, "message 4", hist[0].Content)
}

func TestCompositionFailure(t *testing.T) {
	h := newHarness(t, fakeSearcher{results: []models.SearchResult{neighborhoodsChunk}})
	h.llm.mu.Lock()
	h.llm.fail = true
	h.llm.mu.Unlock()

	reply := h.orch.ProcessMessage(context.Background(), models.MessageRequest{Message: "Hi", SessionID: "s4"})
	assert.Equal(t, ErrorCodeComposition, reply.ErrorCode)
	assert.Equal(t, fallbackComposition, reply.Message)
	assert.Equal(t, []string{"neighborhoods.txt"}, reply.Sources)

	hist, err := h.orch.History(context.Background(), "s4")
	require.NoError(t, err)
	require.Len(t, hist, 2, "fallback replies are still recorded")
	assert.Equal(t, fallbackComposition, hist[1].Content)
}

type brokenStore struct{ conversation.Store }

func (brokenStore) History(context.Context, string) ([]models.Turn, error) {
	return nil, errors.New("disk on fire")
}

func TestInternalErrorIsNotRecorded(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	h.orch.history = brokenStore{h.store}

	reply := h.orch.ProcessMessage(context.Background(), models.MessageRequest{Message: "Hi", SessionID: "s5"})
	assert.Equal(t, ErrorCodeInternal, reply.ErrorCode)
	assert.Equal(t, fallbackInternal, reply.Message)
	assert.Equal(t, "s5", reply.ConversationID)

	hist, _ := h.store.History(context.Background(), "s5")
	assert.Empty(t, hist)
}

type panickingComposer struct{}

func (panickingComposer) Mock() bool { return false }
func (panickingComposer) Compose(context.Context, ComposeRequest) (Composition, error) {
	panic("unexpected nil")
}

func TestPanicBecomesInternalError(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	h.orch.composer = panickingComposer{}

	reply := h.orch.ProcessMessage(context.Background(), models.MessageRequest{Message: "Hi", SessionID: "s6"})
	assert.Equal(t, ErrorCodeInternal, reply.ErrorCode)
	assert.Zero(t, h.orch.locks.size(), "session lock must be released after a panic")
}

func TestMissingSessionGetsID(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	a := h.orch.ProcessMessage(context.Background(), models.MessageRequest{Message: "Hi"})
	b := h.orch.ProcessMessage(context.Background(), models.MessageRequest{Message: "Hi"})
	assert.NotEmpty(t, a.ConversationID)
	assert.NotEqual(t, a.ConversationID, b.ConversationID)
}

func TestTranslationRoundTrip(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	ctx := context.Background()

	reply := h.orch.ProcessMessage(ctx, models.MessageRequest{
		Message:            "¿Qué barrios cubren?",
		SessionID:          "s7",
		TranslationEnabled: true,
	})
	assert.True(t, reply.TranslationUsed)
	assert.Equal(t, "AUTO: Reply to: EN: ¿Qué barrios cubren?", reply.Message)

	trs := h.llm.translations()
	require.Len(t, trs, 2)
	assert.Contains(t, trs[0].Messages[0].Content, "to en.")
	assert.Contains(t, trs[1].Messages[0].Content, "to auto.")

	hist, _ := h.orch.History(ctx, "s7")
	require.Len(t, hist, 2)
	assert.Equal(t, "¿Qué barrios cubren?", hist[0].Content, "the original message is recorded")

	// Same text again: both translations come from memory.
	h.orch.ProcessMessage(ctx, models.MessageRequest{Message: "¿Qué barrios cubren?", SessionID: "s7", TranslationEnabled: true})
	assert.Len(t, h.llm.translations(), 2)
	assert.Len(t, h.llm.completions(), 2)
	assert.Equal(t, 2, h.orch.TranslationStats(ctx).Size)
}

func TestReplyTranslationUsesRequestLanguage(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	reply := h.orch.ProcessMessage(context.Background(), models.MessageRequest{
		Message: "Hola", SessionID: "s8", TranslationEnabled: true, Language: "es",
	})
	assert.True(t, strings.HasPrefix(reply.Message, "ES: "))
}

func TestMockMode(t *testing.T) {
	logger := discardLogger()
	profile := DefaultProfile()
	composer := NewMockComposer(profile, rand.NewPCG(1, 2))
	orch := NewOrchestrator(
		search.NewRetriever(fakeSearcher{}, logger),
		composer,
		translate.Passthrough{},
		conversation.NewMemoryStore(0),
		logger,
	)

	for i := 0; i < 10; i++ {
		reply := orch.ProcessMessage(context.Background(), models.MessageRequest{Message: "Hi", SessionID: "m", TranslationEnabled: true})
		assert.Empty(t, reply.ErrorCode)
		assert.Contains(t, profile.MockReplies, reply.Message)
		assert.Equal(t, []string{"Alta New York Knowledge Base"}, reply.Sources)
		assert.False(t, reply.TranslationUsed)
	}
	assert.True(t, composer.Mock())
}

func TestMockComposerKeepsRetrievedSources(t *testing.T) {
	c := NewMockComposer(DefaultProfile(), nil)
	comp, err := c.Compose(context.Background(), ComposeRequest{
		Retrieval: models.Retrieval{Sources: []string{"mock-document.txt"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mock-document.txt"}, comp.Sources)
}

func TestConcurrentSameSessionStaysPaired(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.orch.ProcessMessage(ctx, models.MessageRequest{Message: fmt.Sprintf("q%d", i), SessionID: "race"})
		}(i)
	}
	wg.Wait()

	hist, err := h.orch.History(ctx, "race")
	require.NoError(t, err)
	require.Len(t, hist, 16)
	for i := 0; i < len(hist); i += 2 {
		assert.Equal(t, models.RoleUser, hist[i].Role)
		assert.Equal(t, "Reply to: "+hist[i].Content, hist[i+1].Content)
	}
	assert.Zero(t, h.orch.locks.size())
}

func TestClearHistory(t *testing.T) {
	h := newHarness(t, fakeSearcher{})
	ctx := context.Background()
	h.orch.ProcessMessage(ctx, models.MessageRequest{Message: "Hi", SessionID: "c"})

	require.NoError(t, h.orch.ClearHistory(ctx, "c"))
	hist, _ := h.orch.History(ctx, "c")
	assert.Empty(t, hist)
	require.NoError(t, h.orch.ClearHistory(ctx, "never-existed"))
}

func TestBuildSystemPrompt(t *testing.T) {
	p := DefaultProfile()
	retrieval := models.Retrieval{Results: []models.SearchResult{
		{Metadata: map[string]any{"content": "first chunk"}},
		{Metadata: map[string]any{"content": "second chunk"}},
		{Metadata: map[string]any{"content": "first chunk"}},
	}}
	var history []models.Turn
	for i := 0; i < 8; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history = append(history, models.Turn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	got := BuildSystemPrompt(p, retrieval, history)
	assert.Equal(t, got, BuildSystemPrompt(p, retrieval, history), "must be deterministic")

	assert.True(t, strings.HasPrefix(got, p.Intro))
	assert.Contains(t, got, "- We have over 15 years of experience and 500+ successful transactions\n")
	assert.Contains(t, got, "Context from knowledge base:\nfirst chunk\n\nsecond chunk\n\nfirst chunk\n\n")
	assert.NotContains(t, got, "turn 1\n")
	assert.True(t, strings.HasSuffix(got, "Previous conversation:\nuser: turn 2\nassistant: turn 3\nuser: turn 4\nassistant: turn 5\nuser: turn 6\nassistant: turn 7"))
}

func TestProfile(t *testing.T) {
	p := DefaultProfile()
	assert.Len(t, p.MockReplies, 3)
	assert.Equal(t, "Alta New York Knowledge Base", p.DefaultSource)

	assert.Empty(t, p.Suggest("s", 5))
	assert.NotNil(t, p.Suggest("", 5))
	assert.Equal(t, []string{"Steps to buying in NYC", "Steps to renting in NYC"}, p.Suggest("steps", 5))
	assert.Len(t, p.Suggest("in", 2), 2)
	assert.Equal(t, []string{"Closing costs in NYC"}, p.Suggest("CLOSING", 5))

	custom, err := ParseProfile([]byte("name: Test Realty\nsuggestions: [Lofts]\n"))
	require.NoError(t, err)
	custom.fillFrom(p)
	assert.Equal(t, "Test Realty", custom.Name)
	assert.Equal(t, []string{"Lofts"}, custom.Suggestions)
	assert.Equal(t, p.Facts, custom.Facts)
}
