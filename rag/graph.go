package rag

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// SourceGraph resolves documents related to the retrieved sources.
// Implementations are read-only; the ingestion side owns graph writes.
type SourceGraph interface {
	RelatedDocuments(ctx context.Context, sources []string) (map[string][]RelatedDocument, error)
}

type Neo4jSourceGraph struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jSourceGraph(driver neo4j.DriverWithContext) *Neo4jSourceGraph {
	return &Neo4jSourceGraph{driver: driver}
}

// RelatedDocuments returns, per source, the other documents that share
// its folder. Sources without graph nodes are simply absent from the
// result.
func (g *Neo4jSourceGraph) RelatedDocuments(ctx context.Context, sources []string) (map[string][]RelatedDocument, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(sources) == 0 {
		return map[string][]RelatedDocument{}, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document)
		WHERE d.source IN $sources
		OPTIONAL MATCH (d)-[:IN_FOLDER]->(f:Folder)<-[:IN_FOLDER]-(other:Document)
		WHERE other.source <> d.source
		RETURN d.source AS source,
		       collect(DISTINCT {source: other.source, folder: f.name}) AS related
	`, map[string]any{"sources": sources})
	if err != nil {
		return nil, fmt.Errorf("query related documents: %w", err)
	}

	related := make(map[string][]RelatedDocument)
	for result.Next(ctx) {
		record := result.Record()
		source, _ := record.Get("source")
		sourceName, ok := source.(string)
		if !ok {
			continue
		}
		rawRelated, _ := record.Get("related")
		related[sourceName] = convertRelated(rawRelated)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read related documents: %w", err)
	}
	return related, nil
}

var _ SourceGraph = (*Neo4jSourceGraph)(nil)

func convertRelated(value any) []RelatedDocument {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}

	docs := make([]RelatedDocument, 0, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source, _ := data["source"].(string)
		if source == "" {
			continue
		}
		folder, _ := data["folder"].(string)
		docs = append(docs, RelatedDocument{Source: source, Folder: folder})
	}
	return docs
}
