package embedding

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(client *openai.Client, model string, dim int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model, dim: dim}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// Embed returns the embedding for text, truncated to the index dimension.
// There is no retry; callers decide how to degrade.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &Failure{Provider: "openai", Message: "text must not be empty"}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, &Failure{Provider: "openai", Message: err.Error(), Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &Failure{Provider: "openai", Message: "no embeddings returned"}
	}

	vec, err := truncate(resp.Data[0].Embedding, e.dim)
	if err != nil {
		return nil, &Failure{Provider: "openai", Message: err.Error(), Err: err}
	}
	return vec, nil
}
