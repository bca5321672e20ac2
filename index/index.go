// Package index stores chunk embeddings and answers similarity
// searches. It is the only stateful part of the retrieval pipeline:
// every other component is constructed per process and holds no data.
//
// Two backends are provided. Memory keeps everything in process and is
// the default for small corpora; Postgres persists chunks and vectors
// through pgvector. Both embed chunks at upsert time through the
// configured Embedder, so a stored chunk always carries a vector from
// the same model that will embed queries against it.
package index

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidArgument reports caller input that fails validation, such
// as a non-positive k or an empty query.
var ErrInvalidArgument = errors.New("invalid argument")

// Chunk is a bounded, possibly overlapping segment of a source
// document. Index values are zero-based and contiguous per source.
type Chunk struct {
	ID     string
	Source string
	Index  int
	Text   string
}

// Result is one similarity hit. Score is cosine similarity, so it is
// comparable across queries as long as the embedding model is fixed.
type Result struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Stats reports index size.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Index owns all Document and Chunk records.
//
// Upsert atomically replaces every chunk previously stored for the
// source: concurrent searches observe either the old set or the new
// set, never a mix. Search returns up to k results ordered by
// descending score, ties broken by ascending chunk index then source;
// an empty index yields zero results and no error.
type Index interface {
	Upsert(ctx context.Context, source string, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
	Close()
}

// document tracks per-source bookkeeping shared by the backends.
type document struct {
	source     string
	ingestedAt time.Time
}

// lessResult is the deterministic result ordering: descending score,
// then ascending chunk index, then ascending source.
func lessResult(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.ChunkIndex != b.ChunkIndex {
		return a.ChunkIndex < b.ChunkIndex
	}
	return a.Source < b.Source
}
