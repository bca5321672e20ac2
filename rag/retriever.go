package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/knowledge-copilot/embeddings"
	"github.com/fabfab/knowledge-copilot/index"
)

// Retriever embeds a query and ranks indexed chunks by similarity.
// It must share its Embedder instance with the index so query vectors
// and chunk vectors come from the identical model.
type Retriever struct {
	idx      index.Index
	embedder embeddings.Embedder
}

func NewRetriever(idx index.Index, embedder embeddings.Embedder) *Retriever {
	return &Retriever{idx: idx, embedder: embedder}
}

// Retrieve returns up to k chunks ranked by cosine similarity to the
// query. An empty index yields zero results and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]index.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", index.ErrInvalidArgument)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", index.ErrInvalidArgument, k)
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	if dim := r.embedder.Dimensions(); dim > 0 && len(vectors[0]) != dim {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index expects %d", embeddings.ErrDimensionMismatch, len(vectors[0]), dim)
	}

	return r.idx.Search(ctx, vectors[0], k)
}
