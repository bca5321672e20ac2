package rag

import "strings"

// This file is the single home for the best-effort parsing of model
// output into structured fields. Parsers here never fail: malformed
// output degrades the result's richness, not its availability.

// parseQuestionList extracts up to max distinct questions from a
// numbered, bulleted, or newline-delimited list.
func parseQuestionList(raw string, max int) []string {
	seen := make(map[string]struct{})
	questions := make([]string, 0, max)

	for _, line := range strings.Split(raw, "\n") {
		question := stripListMarker(line)
		if question == "" {
			continue
		}
		key := strings.ToLower(question)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		questions = append(questions, question)
		if len(questions) == max {
			break
		}
	}
	return questions
}

// stripListMarker removes leading numbering ("1.", "2)") or bullet
// characters and surrounding whitespace.
func stripListMarker(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*• \t")

	for i := 0; i < len(line); i++ {
		if line[i] >= '0' && line[i] <= '9' {
			continue
		}
		if line[i] == '.' || line[i] == ')' || line[i] == ':' {
			if i > 0 {
				line = line[i+1:]
			}
		}
		break
	}
	return strings.TrimSpace(line)
}

// parseAnalysis applies a strict-then-lenient strategy: the labeled
// SUMMARY/TAGS/COMPLEXITY sections are parsed when present; otherwise
// the whole output becomes the summary with no tags and unknown
// complexity.
func parseAnalysis(raw string) Analysis {
	analysis := Analysis{
		Tags:       []string{},
		Complexity: ComplexityUnknown,
	}

	structured := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		switch {
		case strings.HasPrefix(upper, "SUMMARY:"):
			analysis.Summary = strings.TrimSpace(trimmed[len("SUMMARY:"):])
			structured = true
		case strings.HasPrefix(upper, "TAGS:"):
			analysis.Tags = splitTags(trimmed[len("TAGS:"):])
			structured = true
		case strings.HasPrefix(upper, "COMPLEXITY:"):
			analysis.Complexity = normalizeComplexity(trimmed[len("COMPLEXITY:"):])
			structured = true
		default:
			// Continuation lines extend the summary once a structured
			// block has started.
			if structured && analysis.Summary != "" && trimmed != "" &&
				!strings.Contains(trimmed, ":") {
				analysis.Summary += " " + trimmed
			}
		}
	}

	if !structured || analysis.Summary == "" {
		analysis.Summary = strings.TrimSpace(raw)
	}
	return analysis
}

func splitTags(raw string) []string {
	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(strings.Trim(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func normalizeComplexity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "."))) {
	case "beginner":
		return "beginner"
	case "intermediate":
		return "intermediate"
	case "advanced":
		return "advanced"
	default:
		return ComplexityUnknown
	}
}
