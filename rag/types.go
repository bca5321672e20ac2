// Package rag implements the retrieval-and-generation pipeline:
// retrieving indexed chunks for a query, synthesizing a grounded
// answer with citations, generating follow-up questions, and ad-hoc
// text analysis.
package rag

import (
	"errors"
	"time"

	"github.com/fabfab/knowledge-copilot/index"
)

// ErrInputTooLong reports analyzer input beyond the configured limit.
var ErrInputTooLong = errors.New("input too long")

// Source is one retrieval hit used as answer evidence, optionally
// enriched with related documents from the knowledge graph.
type Source struct {
	index.Result
	Related []RelatedDocument
}

// RelatedDocument points at another indexed document connected to a
// source through the knowledge graph.
type RelatedDocument struct {
	Source string `json:"source"`
	Folder string `json:"folder,omitempty"`
}

// Answer is a synthesized response. Sources always hold the actual
// retrieval set the prompt was built from; they are never re-derived
// from the generated text.
type Answer struct {
	Content        string
	Sources        []Source
	Provider       string
	ProcessingTime time.Duration
}

// Analysis is the result of ad-hoc text analysis. Complexity is one of
// beginner, intermediate, advanced, or "unknown" when the backend
// output could not be classified.
type Analysis struct {
	Summary        string
	Tags           []string
	Complexity     string
	ProcessingTime time.Duration
}

// ComplexityUnknown marks an analysis whose complexity could not be
// parsed from the backend output.
const ComplexityUnknown = "unknown"
