package ingestion_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/fabfab/knowledge-copilot/ingestion"
)

func TestChunkerRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 10},
		{"negative size", -1, 10},
		{"zero overlap", 100, 0},
		{"negative overlap", 100, -5},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingestion.NewChunker(tc.size, tc.overlap); !errors.Is(err, ingestion.ErrInvalidChunkConfig) {
				t.Fatalf("expected ErrInvalidChunkConfig, got %v", err)
			}
		})
	}
}

func TestChunkerShortDocumentYieldsOneChunk(t *testing.T) {
	chunker, err := ingestion.NewChunker(800, 150)
	if err != nil {
		t.Fatal(err)
	}

	chunks := chunker.Split("short document")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "short document" {
		t.Fatalf("unexpected chunk text: %q", chunks[0])
	}
}

func TestChunkerEmptyInputYieldsNoChunks(t *testing.T) {
	chunker, err := ingestion.NewChunker(800, 150)
	if err != nil {
		t.Fatal(err)
	}

	if chunks := chunker.Split(""); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunkerWindowOffsets(t *testing.T) {
	chunker, err := ingestion.NewChunker(800, 150)
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("a", 650) + strings.Repeat("b", 650) + strings.Repeat("c", 600)
	chunks := chunker.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for 1900 chars, got %d", len(chunks))
	}
	if len(chunks[0]) != 800 || len(chunks[1]) != 800 {
		t.Fatalf("expected full windows of 800, got %d and %d", len(chunks[0]), len(chunks[1]))
	}
	if len(chunks[2]) != 600 {
		t.Fatalf("expected trailing partial window of 600, got %d", len(chunks[2]))
	}

	// Window i starts at offset i*(size-overlap), so chunk 1 begins at
	// 650 and repeats chunk 0's last 150 runes.
	if chunks[0][650:] != chunks[1][:150] {
		t.Fatal("adjacent windows do not overlap by 150 runes")
	}
	if chunks[1][0] != 'b' {
		t.Fatalf("chunk 1 should start at offset 650, starts with %q", chunks[1][0])
	}
}

func TestChunkerExactMultipleProducesNoEmptyTail(t *testing.T) {
	chunker, err := ingestion.NewChunker(10, 4)
	if err != nil {
		t.Fatal(err)
	}

	// 16 runes: windows [0,10) and [6,16); the second ends exactly at
	// the text end, so no third window is emitted.
	chunks := chunker.Split(strings.Repeat("x", 16))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}

func TestChunkerCoversEveryRune(t *testing.T) {
	chunker, err := ingestion.NewChunker(7, 3)
	if err != nil {
		t.Fatal(err)
	}

	text := "the quick brown fox jumps over the lazy dog"
	chunks := chunker.Split(text)

	// Concatenating each window's fresh portion reproduces the text.
	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if len(runes) > 3 {
			sb.WriteString(string(runes[3:]))
		}
	}
	if sb.String() != text {
		t.Fatalf("windows do not cover the text:\nwant %q\ngot  %q", text, sb.String())
	}
}

func TestNormalizeTextCollapsesWhitespace(t *testing.T) {
	in := "  line one\n\n\tline\ttwo   line three  \r\n"
	want := "line one line two line three"
	if got := ingestion.NormalizeText(in); got != want {
		t.Fatalf("NormalizeText(%q) = %q, want %q", in, got, want)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]ingestion.DocumentFormat{
		"notes.md":        ingestion.FormatMarkdown,
		"notes.MARKDOWN":  ingestion.FormatMarkdown,
		"readme.txt":      ingestion.FormatPlaintext,
		"paper.pdf":       ingestion.FormatPDF,
		"analysis.ipynb":  ingestion.FormatNotebook,
		"archive.tar.gz":  ingestion.FormatUnknown,
		"no-extension":    ingestion.FormatUnknown,
		"image.extra.png": ingestion.FormatUnknown,
	}

	for path, want := range cases {
		if got := ingestion.DetectFormat(path); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", path, got, want)
		}
	}
}
