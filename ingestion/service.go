package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	stdpath "path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/fabfab/knowledge-copilot/index"
	"github.com/fabfab/knowledge-copilot/knowledge"
)

// FileError records one document that failed to index.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Report summarises a bulk ingest. A report with failures is still a
// success for the remaining documents; the batch never aborts early.
type Report struct {
	DocumentsIndexed int         `json:"documents_indexed"`
	ChunksIndexed    int         `json:"chunks_indexed"`
	Failures         []FileError `json:"failures,omitempty"`
}

// Service runs the ingest pipeline: load, normalize, chunk, and upsert
// each document into the index. The optional graph receives one
// document node per indexed source.
type Service struct {
	idx     index.Index
	chunker *Chunker
	graph   *knowledge.Graph
	logger  *log.Logger
}

func NewService(idx index.Index, chunker *Chunker, graph *knowledge.Graph, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		idx:     idx,
		chunker: chunker,
		graph:   graph,
		logger:  logger,
	}
}

// IngestDirectory walks dir and ingests every supported document under
// it. Unsupported extensions are skipped silently; per-document
// failures land in the report and the batch continues.
func (s *Service) IngestDirectory(ctx context.Context, dir string) (Report, error) {
	if _, err := os.Stat(dir); err != nil {
		return Report{}, fmt.Errorf("data directory: %w", err)
	}

	entries := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(path) != FormatUnknown {
			entries = append(entries, path)
		}
		return nil
	}); err != nil {
		return Report{}, fmt.Errorf("walk data directory: %w", err)
	}

	if len(entries) == 0 {
		s.logger.Printf("no supported documents found in %s", dir)
		return Report{}, nil
	}

	return s.ingest(ctx, dir, entries), nil
}

// IngestFiles ingests an explicit list of paths. Source identifiers
// are the file base names.
func (s *Service) IngestFiles(ctx context.Context, paths []string) Report {
	return s.ingest(ctx, "", paths)
}

func (s *Service) ingest(ctx context.Context, root string, paths []string) Report {
	var report Report
	for _, path := range paths {
		chunks, err := s.ingestFile(ctx, root, path)
		if err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
			report.Failures = append(report.Failures, FileError{Path: path, Error: err.Error()})
			continue
		}
		report.DocumentsIndexed++
		report.ChunksIndexed += chunks
	}
	return report
}

func (s *Service) ingestFile(ctx context.Context, root, path string) (int, error) {
	raw, err := ExtractText(path)
	if err != nil {
		return 0, err
	}

	source := sourceID(root, path)
	content := NormalizeText(raw)

	texts := s.chunker.Split(content)
	chunks := make([]index.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = index.Chunk{
			ID:     uuid.New().String(),
			Source: source,
			Index:  i,
			Text:   text,
		}
	}

	if err := s.idx.Upsert(ctx, source, chunks); err != nil {
		return 0, err
	}

	if s.graph != nil {
		folder := stdpath.Dir(source)
		if folder == "." || folder == "/" {
			folder = ""
		}
		doc := knowledge.Document{
			ID:         uuid.New().String(),
			Source:     source,
			Folder:     folder,
			ChunkCount: len(chunks),
		}
		if err := s.graph.SyncDocument(ctx, doc); err != nil {
			s.logger.Printf("graph sync failed for %s: %v", source, err)
		}
	}

	return len(chunks), nil
}

// sourceID derives the stable source identifier for a path: the path
// relative to the ingest root in slash form, or the base name when no
// root applies.
func sourceID(root, path string) string {
	if root == "" {
		return filepath.Base(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
