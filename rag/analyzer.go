package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fabfab/knowledge-copilot/llm"
)

const analyzeMaxTokens = 500

// Analyzer summarizes, tags, and rates the complexity of an arbitrary
// text passage. It is stateless; every call is independent.
type Analyzer struct {
	registry *llm.Registry
	maxChars int
	logger   *log.Logger
}

func NewAnalyzer(registry *llm.Registry, maxChars int, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{
		registry: registry,
		maxChars: maxChars,
		logger:   logger,
	}
}

// Analyze produces a structured analysis of the text. Input beyond the
// configured limit fails with ErrInputTooLong before any backend call.
// Unparsable backend output degrades to a summary-only result; the
// operation only fails on input validation or backend unavailability.
func (a *Analyzer) Analyze(ctx context.Context, text, provider string) (Analysis, error) {
	start := time.Now()

	if a.maxChars > 0 && len(text) > a.maxChars {
		return Analysis{}, fmt.Errorf("%w: text is %d chars, limit is %d", ErrInputTooLong, len(text), a.maxChars)
	}

	client, err := a.registry.Get(provider)
	if err != nil {
		return Analysis{}, err
	}

	// Empty input is valid; there is nothing to send to the backend,
	// so the degraded shape comes back directly.
	if strings.TrimSpace(text) == "" {
		return Analysis{
			Tags:           []string{},
			Complexity:     ComplexityUnknown,
			ProcessingTime: time.Since(start),
		}, nil
	}

	raw, err := client.Generate(ctx, buildAnalysisPrompt(text), analyzeMaxTokens)
	if err != nil {
		return Analysis{}, fmt.Errorf("generate analysis: %w", err)
	}

	analysis := parseAnalysis(raw)
	analysis.ProcessingTime = time.Since(start)
	return analysis, nil
}

func buildAnalysisPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following text and respond in exactly this format:\n\n")
	sb.WriteString("SUMMARY: <two or three sentences>\n")
	sb.WriteString("TAGS: <comma-separated topic keywords>\n")
	sb.WriteString("COMPLEXITY: <one of beginner, intermediate, advanced>\n\n")
	sb.WriteString("Text:\n")
	sb.WriteString(text)
	return sb.String()
}
