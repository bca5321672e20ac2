package ingestion

import "strings"

// NormalizeText collapses all whitespace runs to single spaces and
// trims the result. Chunk offsets are computed over the normalized
// text, so the same document always chunks the same way regardless of
// its original line wrapping.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
