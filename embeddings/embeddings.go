// Package embeddings provides adapters for embedding models. All chunk
// and query vectors in one index must come from the same adapter
// configuration; mixing embedding models within an index is a
// configuration error, not something callers can recover from.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabfab/knowledge-copilot/config"
)

// ErrDimensionMismatch reports a vector whose length differs from the
// configured embedding dimension. It is fatal: the model serving the
// process no longer matches the model that built the index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector length this embedder produces.
	Dimensions() int
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}
