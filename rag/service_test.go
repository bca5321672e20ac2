package rag_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/fabfab/knowledge-copilot/embeddings"
	"github.com/fabfab/knowledge-copilot/index"
	"github.com/fabfab/knowledge-copilot/llm"
	"github.com/fabfab/knowledge-copilot/rag"
)

type stubIndex struct {
	results []index.Result
	err     error
}

func (s *stubIndex) Upsert(ctx context.Context, source string, chunks []index.Chunk) error {
	return nil
}

func (s *stubIndex) Search(ctx context.Context, vector []float32, k int) ([]index.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > k {
		return s.results[:k], nil
	}
	return s.results, nil
}

func (s *stubIndex) Stats(ctx context.Context) (index.Stats, error) { return index.Stats{}, nil }
func (s *stubIndex) Clear(ctx context.Context) error                { return nil }
func (s *stubIndex) Close()                                         {}

var _ index.Index = (*stubIndex)(nil)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.vector) }

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubClient struct {
	provider string
	answer   string
	err      error
	prompts  []string
}

func (s *stubClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubClient) Probe(ctx context.Context) (llm.ProbeResult, error) {
	if s.err != nil {
		return llm.ProbeResult{}, s.err
	}
	return llm.ProbeResult{Model: "stub-model", Latency: time.Millisecond}, nil
}

func (s *stubClient) Provider() string { return s.provider }
func (s *stubClient) Model() string    { return "stub-model" }

var _ llm.Client = (*stubClient)(nil)

type stubGraph struct {
	related map[string][]rag.RelatedDocument
	err     error
	queried []string
}

func (s *stubGraph) RelatedDocuments(ctx context.Context, sources []string) (map[string][]rag.RelatedDocument, error) {
	s.queried = append(s.queried, sources...)
	if s.err != nil {
		return nil, s.err
	}
	return s.related, nil
}

var _ rag.SourceGraph = (*stubGraph)(nil)

func testRegistry(t *testing.T, client llm.Client) *llm.Registry {
	t.Helper()
	registry, err := llm.NewRegistryFromClients(client.Provider(), client)
	if err != nil {
		t.Fatal(err)
	}
	return registry
}

func testService(t *testing.T, idx index.Index, client llm.Client, graph rag.SourceGraph) *rag.Service {
	t.Helper()
	retriever := rag.NewRetriever(idx, &stubEmbedder{vector: []float32{0.1, 0.2}})
	return rag.NewService(retriever, testRegistry(t, client), graph, log.New(io.Discard, "", 0))
}

func TestAnswerGroundsPromptInRetrievedChunks(t *testing.T) {
	client := &stubClient{provider: "ollama", answer: "Use the restart command [guide.md chunk 2]."}
	idx := &stubIndex{results: []index.Result{
		{Source: "guide.md", ChunkIndex: 2, Content: "Restart with ctl restart.", Score: 0.91},
		{Source: "faq.md", ChunkIndex: 0, Content: "Common questions.", Score: 0.52},
	}}

	svc := testService(t, idx, client, nil)

	answer, err := svc.Answer(context.Background(), "how do I restart?", 3, "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	if answer.Content != client.answer {
		t.Fatalf("unexpected answer content: %q", answer.Content)
	}
	if answer.Provider != "ollama" {
		t.Fatalf("unexpected provider: %q", answer.Provider)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("sources must mirror the retrieval set, got %d", len(answer.Sources))
	}
	if answer.Sources[0].Source != "guide.md" || answer.Sources[0].ChunkIndex != 2 {
		t.Fatalf("unexpected first source: %+v", answer.Sources[0])
	}
	if answer.ProcessingTime <= 0 {
		t.Fatal("processing time should be recorded")
	}

	if len(client.prompts) != 1 {
		t.Fatalf("expected exactly one generation call, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	if !strings.Contains(prompt, "[guide.md chunk 2]") {
		t.Fatalf("prompt is missing the chunk label:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Restart with ctl restart.") {
		t.Fatalf("prompt is missing retrieved content:\n%s", prompt)
	}
	if !strings.Contains(prompt, "how do I restart?") {
		t.Fatalf("prompt is missing the question:\n%s", prompt)
	}
}

func TestAnswerWithoutResultsSkipsGeneration(t *testing.T) {
	client := &stubClient{provider: "ollama", answer: "should never be used"}
	svc := testService(t, &stubIndex{}, client, nil)

	answer, err := svc.Answer(context.Background(), "anything", 3, "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	if answer.Content != rag.NoContextAnswer {
		t.Fatalf("expected the no-context answer, got %q", answer.Content)
	}
	if len(answer.Sources) != 0 {
		t.Fatalf("expected no sources, got %d", len(answer.Sources))
	}
	if len(client.prompts) != 0 {
		t.Fatal("generation backend must not be called with an empty retrieval set")
	}
}

func TestAnswerRejectsEmptyQuery(t *testing.T) {
	svc := testService(t, &stubIndex{}, &stubClient{provider: "ollama"}, nil)

	if _, err := svc.Answer(context.Background(), "   ", 3, ""); !errors.Is(err, index.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAnswerRejectsUnknownProvider(t *testing.T) {
	svc := testService(t, &stubIndex{}, &stubClient{provider: "ollama"}, nil)

	if _, err := svc.Answer(context.Background(), "question", 3, "nonexistent"); !errors.Is(err, llm.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestAnswerPropagatesGenerationFailure(t *testing.T) {
	client := &stubClient{provider: "ollama", err: fmt.Errorf("%w: backend down", llm.ErrUnavailable)}
	idx := &stubIndex{results: []index.Result{{Source: "a.md", Content: "text", Score: 0.8}}}
	svc := testService(t, idx, client, nil)

	if _, err := svc.Answer(context.Background(), "question", 3, ""); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAnswerEnrichesSourcesFromGraph(t *testing.T) {
	client := &stubClient{provider: "ollama", answer: "answer"}
	idx := &stubIndex{results: []index.Result{
		{Source: "a.md", ChunkIndex: 0, Content: "one", Score: 0.9},
		{Source: "a.md", ChunkIndex: 1, Content: "two", Score: 0.8},
	}}
	graph := &stubGraph{related: map[string][]rag.RelatedDocument{
		"a.md": {{Source: "b.md", Folder: "guides"}},
	}}

	svc := testService(t, idx, client, graph)

	answer, err := svc.Answer(context.Background(), "question", 3, "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	// Duplicate sources are looked up once.
	if len(graph.queried) != 1 || graph.queried[0] != "a.md" {
		t.Fatalf("expected one deduplicated lookup, got %v", graph.queried)
	}
	for _, source := range answer.Sources {
		if len(source.Related) != 1 || source.Related[0].Source != "b.md" {
			t.Fatalf("expected related document on every hit: %+v", source)
		}
	}
}

func TestAnswerSurvivesGraphFailure(t *testing.T) {
	client := &stubClient{provider: "ollama", answer: "answer"}
	idx := &stubIndex{results: []index.Result{{Source: "a.md", Content: "one", Score: 0.9}}}
	graph := &stubGraph{err: errors.New("neo4j down")}

	svc := testService(t, idx, client, graph)

	answer, err := svc.Answer(context.Background(), "question", 3, "")
	if err != nil {
		t.Fatalf("graph failure must not fail the answer: %v", err)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("expected plain sources, got %d", len(answer.Sources))
	}
}

func TestFollowUpsParsesNumberedList(t *testing.T) {
	client := &stubClient{provider: "ollama", answer: "1. How do I configure it?\n2. What about scaling?\n3. Where are the logs?"}
	svc := testService(t, &stubIndex{}, client, nil)

	followUps := svc.FollowUps(context.Background(), "question", "answer", "")
	if len(followUps) != 3 {
		t.Fatalf("expected 3 follow-ups, got %d: %v", len(followUps), followUps)
	}
	if followUps[0] != "How do I configure it?" {
		t.Fatalf("numbering not stripped: %q", followUps[0])
	}
}

func TestFollowUpsCapsAndDeduplicates(t *testing.T) {
	client := &stubClient{provider: "ollama", answer: "1. Same question?\n2. same question?\n3. Second question?\n4. Third question?\n5. Fourth question?"}
	svc := testService(t, &stubIndex{}, client, nil)

	followUps := svc.FollowUps(context.Background(), "question", "answer", "")
	if len(followUps) != rag.FollowUpCount {
		t.Fatalf("expected %d follow-ups, got %d: %v", rag.FollowUpCount, len(followUps), followUps)
	}
	if followUps[1] != "Second question?" {
		t.Fatalf("case-insensitive duplicate not dropped: %v", followUps)
	}
}

func TestFollowUpsSwallowsBackendFailure(t *testing.T) {
	client := &stubClient{provider: "ollama", err: fmt.Errorf("%w: down", llm.ErrUnavailable)}
	svc := testService(t, &stubIndex{}, client, nil)

	if followUps := svc.FollowUps(context.Background(), "question", "answer", ""); len(followUps) != 0 {
		t.Fatalf("expected empty set on failure, got %v", followUps)
	}
}
