package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/knowledge-copilot/embeddings"
)

// Postgres persists chunks and vectors through pgvector. The whole
// replace-and-insert for one source runs in a single transaction, so a
// failed ingest of one document never leaves a partial chunk set
// behind.
type Postgres struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
}

func NewPostgres(pool *pgxpool.Pool, embedder embeddings.Embedder) *Postgres {
	return &Postgres{pool: pool, embedder: embedder}
}

func (p *Postgres) Upsert(ctx context.Context, source string, chunks []Chunk) error {
	if source == "" {
		return fmt.Errorf("%w: source must not be empty", ErrInvalidArgument)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks for %s: %w", source, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	docID := uuid.New().String()
	if err := tx.QueryRow(ctx, `
        INSERT INTO rag_documents (id, source_path)
        VALUES ($1, $2)
        ON CONFLICT (source_path) DO UPDATE SET updated_at = NOW()
        RETURNING id
    `, docID, source).Scan(&docID); err != nil {
		return fmt.Errorf("upsert document %s: %w", source, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM rag_chunks WHERE document_id = $1", docID); err != nil {
		return fmt.Errorf("delete stale chunks for %s: %w", source, err)
	}

	for i := range chunks {
		id := chunks[i].ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO rag_chunks (id, document_id, chunk_index, content, embedding)
            VALUES ($1, $2, $3, $4, $5)
        `, id, docID, chunks[i].Index, chunks[i].Text, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", chunks[i].Index, source, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert for %s: %w", source, err)
	}
	return nil
}

func (p *Postgres) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", ErrInvalidArgument)
	}

	rows, err := p.pool.Query(ctx, `
        SELECT
            rd.source_path,
            rc.chunk_index,
            rc.content,
            (rc.embedding <=> $1::vector) AS distance
        FROM rag_chunks rc
        JOIN rag_documents rd ON rd.id = rc.document_id
        ORDER BY rc.embedding <=> $1::vector ASC, rc.chunk_index ASC, rd.source_path ASC
        LIMIT $2
    `, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, k)
	for rows.Next() {
		var item Result
		var distance float64
		if err := rows.Scan(&item.Source, &item.ChunkIndex, &item.Content, &distance); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		// pgvector's <=> is cosine distance in [0, 2].
		item.Score = 1 - distance
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := p.pool.QueryRow(ctx, `
        SELECT
            (SELECT COUNT(*) FROM rag_documents),
            (SELECT COUNT(*) FROM rag_chunks)
    `).Scan(&stats.Documents, &stats.Chunks); err != nil {
		return Stats{}, fmt.Errorf("query index stats: %w", err)
	}
	return stats, nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "TRUNCATE rag_chunks, rag_documents"); err != nil {
		return fmt.Errorf("truncate index tables: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

var _ Index = (*Postgres)(nil)
