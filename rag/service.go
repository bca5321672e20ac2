package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fabfab/knowledge-copilot/index"
	"github.com/fabfab/knowledge-copilot/llm"
)

const answerMaxTokens = 1000

// NoContextAnswer is returned when retrieval finds nothing; the
// generation backend is not called in that case so nothing can be
// hallucinated against an empty context.
const NoContextAnswer = "No relevant documents found in the knowledge base. " +
	"Please try rephrasing your question or ensure documents have been ingested."

// Service synthesizes grounded answers from retrieved context.
type Service struct {
	retriever *Retriever
	registry  *llm.Registry
	graph     SourceGraph
	logger    *log.Logger
}

// NewService wires the answer pipeline. graph may be nil; source
// enrichment is skipped without one.
func NewService(retriever *Retriever, registry *llm.Registry, graph SourceGraph, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		retriever: retriever,
		registry:  registry,
		graph:     graph,
		logger:    logger,
	}
}

// Answer retrieves the top-k chunks for the query and asks the
// selected provider for an answer grounded only in them. Processing
// time covers the whole call including retrieval.
func (s *Service) Answer(ctx context.Context, query string, k int, provider string) (Answer, error) {
	start := time.Now()

	client, err := s.registry.Get(provider)
	if err != nil {
		return Answer{}, err
	}

	results, err := s.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return Answer{}, err
	}

	if len(results) == 0 {
		return Answer{
			Content:        NoContextAnswer,
			Sources:        []Source{},
			Provider:       client.Provider(),
			ProcessingTime: time.Since(start),
		}, nil
	}

	content, err := client.Generate(ctx, buildAnswerPrompt(query, results), answerMaxTokens)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	return Answer{
		Content:        strings.TrimSpace(content),
		Sources:        s.enrichSources(ctx, results),
		Provider:       client.Provider(),
		ProcessingTime: time.Since(start),
	}, nil
}

// enrichSources attaches related documents from the knowledge graph.
// Graph failures degrade to plain sources; they never fail the answer.
func (s *Service) enrichSources(ctx context.Context, results []index.Result) []Source {
	sources := make([]Source, len(results))
	for i, result := range results {
		sources[i] = Source{Result: result}
	}

	if s.graph == nil {
		return sources
	}

	seen := make(map[string]struct{}, len(results))
	lookup := make([]string, 0, len(results))
	for _, result := range results {
		if _, ok := seen[result.Source]; ok {
			continue
		}
		seen[result.Source] = struct{}{}
		lookup = append(lookup, result.Source)
	}

	related, err := s.graph.RelatedDocuments(ctx, lookup)
	if err != nil {
		s.logger.Printf("graph enrichment error: %v", err)
		return sources
	}

	for i := range sources {
		sources[i].Related = related[sources[i].Source]
	}
	return sources
}

func buildAnswerPrompt(query string, results []index.Result) string {
	var sb strings.Builder
	sb.WriteString("You are a technical support assistant for an internal knowledge base.\n")
	sb.WriteString("Answer the question using only the context below. ")
	sb.WriteString("Cite the context entries you used by their bracketed labels, for example [guide.md chunk 2]. ")
	sb.WriteString("Do not cite entries that are not listed. ")
	sb.WriteString("If the context does not contain the answer, say so instead of guessing.\n\n")
	sb.WriteString("Context:\n")
	for _, result := range results {
		fmt.Fprintf(&sb, "[%s chunk %d]\n%s\n\n", result.Source, result.ChunkIndex, result.Content)
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}
