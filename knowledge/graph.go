// Package knowledge maintains an optional Neo4j graph of indexed
// documents. The graph is an enrichment layer: when no driver is
// configured every caller skips it, and graph failures never fail an
// ingest or a query.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Document is the graph projection of one indexed source.
type Document struct {
	ID         string
	Source     string
	Folder     string
	ChunkCount int
}

// Graph wraps a Neo4j driver for document bookkeeping.
type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

// SyncDocument upserts the document node and its folder relation.
// Re-ingesting a source updates the existing node in place.
func (g *Graph) SyncDocument(ctx context.Context, doc Document) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":         doc.ID,
		"source":     doc.Source,
		"folder":     doc.Folder,
		"chunkCount": doc.ChunkCount,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {source: $source})
			SET d.id = $id,
			    d.chunk_count = $chunkCount,
			    d.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {source: $source})-[r:IN_FOLDER]->(f:Folder)
			DELETE r
			WITH f
			WHERE NOT (f)<-[:IN_FOLDER]-(:Document)
			DETACH DELETE f
		`, params); err != nil {
			return nil, fmt.Errorf("remove stale folder relation: %w", err)
		}

		if doc.Folder != "" {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {source: $source})
				MERGE (f:Folder {name: $folder})
				MERGE (d)-[:IN_FOLDER]->(f)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert folder relation: %w", err)
			}
		}

		return nil, nil
	})
	return err
}

// Clear removes every document and folder node.
func (g *Graph) Clear(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (d:Document) DETACH DELETE d",
		"MATCH (f:Folder) DETACH DELETE f",
	}
	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if _, err := result.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}
