// Package embed builds the embedding providers the vectorize pipeline uses.
// Every provider satisfies langchaingo's embeddings.Embedder.
package embed

import (
	"errors"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const DefaultOpenAIModel = "text-embedding-ada-002"

// NewOpenAI returns an embedder backed by the OpenAI embeddings API.
func NewOpenAI(apiKey, model string) (embeddings.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedder: api key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}

	return embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(512),
	)
}
