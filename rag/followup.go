package rag

import (
	"context"
	"fmt"
	"strings"
)

// FollowUpCount is the number of follow-up questions requested per
// answer. Fewer may be returned when the backend output parses to
// fewer distinct questions; the set is never padded.
const FollowUpCount = 3

const followUpMaxTokens = 200

// FollowUps asks the selected provider for questions related to a
// query/answer pair. Follow-ups are a non-critical feature: any
// backend failure returns an empty set instead of an error.
func (s *Service) FollowUps(ctx context.Context, query, answer, provider string) []string {
	client, err := s.registry.Get(provider)
	if err != nil {
		return nil
	}

	raw, err := client.Generate(ctx, buildFollowUpPrompt(query, answer), followUpMaxTokens)
	if err != nil {
		s.logger.Printf("follow-up generation skipped: %v", err)
		return nil
	}

	return parseQuestionList(raw, FollowUpCount)
}

func buildFollowUpPrompt(query, answer string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A user asked: %s\n\n", strings.TrimSpace(query))
	fmt.Fprintf(&sb, "They received this answer:\n%s\n\n", strings.TrimSpace(answer))
	fmt.Fprintf(&sb, "Suggest exactly %d short follow-up questions the user might ask next. ", FollowUpCount)
	sb.WriteString("Return them as a numbered list, one question per line, with no other text.")
	return sb.String()
}
