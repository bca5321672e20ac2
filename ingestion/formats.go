// Package ingestion handles document loading, chunking, and indexing.
package ingestion

import (
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported document payload formats.
type DocumentFormat string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown DocumentFormat = ""
	// FormatMarkdown represents Markdown documents.
	FormatMarkdown DocumentFormat = "markdown"
	// FormatPlaintext represents plain text documents.
	FormatPlaintext DocumentFormat = "plaintext"
	// FormatPDF represents PDF documents.
	FormatPDF DocumentFormat = "pdf"
	// FormatNotebook represents Jupyter notebooks.
	FormatNotebook DocumentFormat = "notebook"
)

// DetectFormat infers a document format from the provided path's extension.
func DetectFormat(path string) DocumentFormat {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text":
		return FormatPlaintext
	case ".pdf":
		return FormatPDF
	case ".ipynb":
		return FormatNotebook
	default:
		return FormatUnknown
	}
}
