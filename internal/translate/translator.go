package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alta-ny/chatbot/internal/models"
)

const (
	translateMaxTokens   = 200
	translateTemperature = 0.3
)

// Translator translates text into a target language. "auto" lets the model
// pick the language the conversation is in.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
	Stats(ctx context.Context) models.TranslationStats
	Configured() bool
}

// Failure wraps a translation provider error.
type Failure struct {
	Lang string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("translate to %s: %v", f.Lang, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// OpenAITranslator translates through chat completions, consulting the
// translation memory first.
type OpenAITranslator struct {
	client *openai.Client
	model  string
	cache  Cache
	logger *slog.Logger
}

func NewOpenAITranslator(client *openai.Client, model string, cache Cache, logger *slog.Logger) *OpenAITranslator {
	return &OpenAITranslator{client: client, model: model, cache: cache, logger: logger}
}

func (t *OpenAITranslator) Configured() bool { return true }

func (t *OpenAITranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	if v, ok, err := t.cache.Get(ctx, text, targetLang); err != nil {
		t.logger.Warn("translation cache lookup failed", "error", err)
	} else if ok {
		return v, nil
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("Translate the following text to %s. Return only the translation without any additional text or explanations.", targetLang),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   translateMaxTokens,
		Temperature: translateTemperature,
	})
	if err != nil {
		return "", &Failure{Lang: targetLang, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Failure{Lang: targetLang, Err: fmt.Errorf("no choices returned")}
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := t.cache.Put(ctx, text, targetLang, translated); err != nil {
		t.logger.Warn("translation cache write failed", "error", err)
	}
	return translated, nil
}

func (t *OpenAITranslator) Stats(ctx context.Context) models.TranslationStats {
	n, err := t.cache.Len(ctx)
	if err != nil {
		t.logger.Warn("translation cache size failed", "error", err)
	}
	return models.TranslationStats{Size: n, Configured: true}
}

// Passthrough is the unconfigured Translator: text comes back unchanged.
type Passthrough struct{}

func (Passthrough) Translate(_ context.Context, text, _ string) (string, error) { return text, nil }

func (Passthrough) Stats(context.Context) models.TranslationStats {
	return models.TranslationStats{}
}

func (Passthrough) Configured() bool { return false }
