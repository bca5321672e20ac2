package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/fabfab/knowledge-copilot/embeddings"
)

type storedChunk struct {
	chunk  Chunk
	vector []float32
}

// Memory is a brute-force cosine-similarity index held in process.
// Writers replace a source's chunk set in one step under the write
// lock, so readers never see a partially ingested document.
type Memory struct {
	embedder embeddings.Embedder

	mu        sync.RWMutex
	documents map[string]document
	chunks    map[string][]storedChunk
}

func NewMemory(embedder embeddings.Embedder) *Memory {
	return &Memory{
		embedder:  embedder,
		documents: make(map[string]document),
		chunks:    make(map[string][]storedChunk),
	}
}

func (m *Memory) Upsert(ctx context.Context, source string, chunks []Chunk) error {
	if source == "" {
		return fmt.Errorf("%w: source must not be empty", ErrInvalidArgument)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	// Embedding happens outside the lock; only the swap is serialized.
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks for %s: %w", source, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	stored := make([]storedChunk, len(chunks))
	for i := range chunks {
		if dim := m.embedder.Dimensions(); dim > 0 && len(vectors[i]) != dim {
			return fmt.Errorf("%w: expected %d, got %d", embeddings.ErrDimensionMismatch, dim, len(vectors[i]))
		}
		stored[i] = storedChunk{chunk: chunks[i], vector: vectors[i]}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[source] = document{source: source, ingestedAt: time.Now()}
	m.chunks[source] = stored
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", ErrInvalidArgument)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, k)
	for source, stored := range m.chunks {
		for i := range stored {
			results = append(results, Result{
				Source:     source,
				ChunkIndex: stored[i].chunk.Index,
				Content:    stored[i].chunk.Text,
				Score:      cosine(vector, stored[i].vector),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return lessResult(results[i], results[j]) })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, stored := range m.chunks {
		total += len(stored)
	}
	return Stats{Documents: len(m.documents), Chunks: total}, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = make(map[string]document)
	m.chunks = make(map[string][]storedChunk)
	return nil
}

func (m *Memory) Close() {}

var _ Index = (*Memory)(nil)

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
