package ingestion

import (
	"errors"
	"fmt"
)

// ErrInvalidChunkConfig reports a chunk size/overlap pair that cannot
// produce a valid window sequence.
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

// Chunker splits document text into fixed-size overlapping windows.
// Window i starts at rune offset i*(size-overlap) and spans up to size
// runes; the trailing partial window is kept. A document shorter than
// one window yields exactly one chunk.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap <= 0 {
		return nil, fmt.Errorf("%w: size and overlap must be positive (size=%d overlap=%d)", ErrInvalidChunkConfig, size, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunkConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the chunk texts in source order. Empty input yields no
// chunks.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	estimated := (len(runes) - c.overlap + stride - 1) / stride
	if estimated < 1 {
		estimated = 1
	}
	chunks := make([]string, 0, estimated)

	for start := 0; ; start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
