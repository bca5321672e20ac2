package ingestion_test

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/fabfab/knowledge-copilot/index"
	"github.com/fabfab/knowledge-copilot/ingestion"
)

type recordingIndex struct {
	upserts map[string][]index.Chunk
	err     error
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{upserts: make(map[string][]index.Chunk)}
}

func (r *recordingIndex) Upsert(ctx context.Context, source string, chunks []index.Chunk) error {
	if r.err != nil {
		return r.err
	}
	r.upserts[source] = chunks
	return nil
}

func (r *recordingIndex) Search(ctx context.Context, vector []float32, k int) ([]index.Result, error) {
	return nil, nil
}

func (r *recordingIndex) Stats(ctx context.Context) (index.Stats, error) {
	return index.Stats{}, nil
}

func (r *recordingIndex) Clear(ctx context.Context) error { return nil }

func (r *recordingIndex) Close() {}

var _ index.Index = (*recordingIndex)(nil)

func newTestService(t *testing.T, idx index.Index) *ingestion.Service {
	t.Helper()
	chunker, err := ingestion.NewChunker(50, 10)
	if err != nil {
		t.Fatal(err)
	}
	return ingestion.NewService(idx, chunker, nil, log.New(io.Discard, "", 0))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestDirectoryIndexesSupportedDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Title\n\nSome markdown content worth indexing.")
	writeFile(t, dir, "guides/setup.txt", "Plain text setup instructions.")
	writeFile(t, dir, "image.png", "not a document")

	idx := newRecordingIndex()
	svc := newTestService(t, idx)

	report, err := svc.IngestDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest directory: %v", err)
	}

	if report.DocumentsIndexed != 2 {
		t.Fatalf("expected 2 documents indexed, got %d", report.DocumentsIndexed)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("expected no failures, got %v", report.Failures)
	}
	if _, ok := idx.upserts["notes.md"]; !ok {
		t.Fatalf("notes.md was not upserted; got sources %v", sources(idx))
	}
	if _, ok := idx.upserts["guides/setup.txt"]; !ok {
		t.Fatalf("nested source id should be slash-relative; got sources %v", sources(idx))
	}
}

func TestIngestDirectoryNormalizesBeforeChunking(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.txt", "first   line\n\nsecond\tline\n")

	idx := newRecordingIndex()
	svc := newTestService(t, idx)

	if _, err := svc.IngestDirectory(context.Background(), dir); err != nil {
		t.Fatalf("ingest directory: %v", err)
	}

	chunks := idx.upserts["doc.txt"]
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "first line second line" {
		t.Fatalf("chunk text not normalized: %q", chunks[0].Text)
	}
	if chunks[0].Index != 0 {
		t.Fatalf("chunk index should be zero-based, got %d", chunks[0].Index)
	}
	if chunks[0].ID == "" {
		t.Fatal("chunk id should be assigned")
	}
}

func TestIngestDirectoryContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.md", "valid markdown content")
	writeFile(t, dir, "broken.pdf", "this is not a real pdf payload")

	idx := newRecordingIndex()
	svc := newTestService(t, idx)

	report, err := svc.IngestDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("batch should not abort on a single bad file: %v", err)
	}

	if report.DocumentsIndexed != 1 {
		t.Fatalf("expected 1 document indexed, got %d", report.DocumentsIndexed)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	if report.Failures[0].Error == "" {
		t.Fatal("failure should carry an error message")
	}
}

func TestIngestDirectoryMissingDir(t *testing.T) {
	idx := newRecordingIndex()
	svc := newTestService(t, idx)

	if _, err := svc.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestIngestFilesUsesBaseNameAsSource(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "standalone.md", "standalone content")

	idx := newRecordingIndex()
	svc := newTestService(t, idx)

	report := svc.IngestFiles(context.Background(), []string{path})
	if report.DocumentsIndexed != 1 {
		t.Fatalf("expected 1 document, got %d", report.DocumentsIndexed)
	}
	if _, ok := idx.upserts["standalone.md"]; !ok {
		t.Fatalf("expected base-name source id; got %v", sources(idx))
	}
}

func sources(idx *recordingIndex) []string {
	out := make([]string, 0, len(idx.upserts))
	for source := range idx.upserts {
		out = append(out, source)
	}
	return out
}
