package chat

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/translate"
)

const (
	completionMaxTokens   = 500
	completionTemperature = 0.7
)

// AutoLanguage asks the translator to answer in the conversation's language.
const AutoLanguage = "auto"

// ErrComposition marks a failed completion call.
var ErrComposition = errors.New("response composition failed")

// ComposeRequest is everything a Composer needs for one reply.
type ComposeRequest struct {
	Query     string
	Retrieval models.Retrieval
	History   []models.Turn
	// Translate passes the reply through the translator into Language.
	Translate bool
	Language  string
}

// Composition is a generated reply and the sources it drew from.
type Composition struct {
	Message string
	Sources []string
}

// Composer generates an assistant reply.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (Composition, error)
	Mock() bool
}

// OpenAIComposer generates replies with chat completions.
type OpenAIComposer struct {
	client     *openai.Client
	model      string
	profile    *Profile
	translator translate.Translator
	logger     *slog.Logger
}

func NewOpenAIComposer(client *openai.Client, model string, profile *Profile, translator translate.Translator, logger *slog.Logger) *OpenAIComposer {
	return &OpenAIComposer{
		client:     client,
		model:      model,
		profile:    profile,
		translator: translator,
		logger:     logger,
	}
}

func (c *OpenAIComposer) Mock() bool { return false }

// Compose returns an error wrapping ErrComposition when the completion
// fails. Reply translation is fail-open.
func (c *OpenAIComposer) Compose(ctx context.Context, req ComposeRequest) (Composition, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(c.profile, req.Retrieval, req.History)},
			{Role: openai.ChatMessageRoleUser, Content: req.Query},
		},
		MaxTokens:   completionMaxTokens,
		Temperature: completionTemperature,
	})
	if err != nil {
		return Composition{}, errors.Join(ErrComposition, err)
	}
	if len(resp.Choices) == 0 {
		return Composition{}, errors.Join(ErrComposition, errors.New("no choices returned"))
	}

	message := resp.Choices[0].Message.Content
	if req.Translate {
		lang := req.Language
		if lang == "" {
			lang = AutoLanguage
		}
		translated, err := c.translator.Translate(ctx, message, lang)
		if err != nil {
			c.logger.Warn("reply translation failed, using original", "lang", lang, "error", err)
		} else {
			message = translated
		}
	}

	return Composition{Message: message, Sources: req.Retrieval.Sources}, nil
}

// MockComposer picks a canned reply when no completion provider is
// configured.
type MockComposer struct {
	profile *Profile

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockComposer uses src for reply selection; nil seeds from the clock.
func NewMockComposer(profile *Profile, src rand.Source) *MockComposer {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1)
	}
	return &MockComposer{profile: profile, rng: rand.New(src)}
}

func (c *MockComposer) Mock() bool { return true }

func (c *MockComposer) Compose(_ context.Context, req ComposeRequest) (Composition, error) {
	replies := c.profile.MockReplies
	if len(replies) == 0 {
		return Composition{}, errors.Join(ErrComposition, errors.New("profile has no mock replies"))
	}

	c.mu.Lock()
	i := c.rng.IntN(len(replies))
	c.mu.Unlock()

	sources := req.Retrieval.Sources
	if len(sources) == 0 {
		sources = []string{c.profile.DefaultSource}
	}
	return Composition{Message: replies[i], Sources: sources}, nil
}
