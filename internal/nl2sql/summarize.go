package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tablechat/tablechat/internal/observability"
)

const summaryPreviewRows = 5

type Summarizer struct {
	completer Completer
}

func NewSummarizer(completer Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Summarize explains the result of sqlText in prose from its first few records.
func (s *Summarizer) Summarize(ctx context.Context, sqlText string, records []map[string]any) (string, error) {
	start := time.Now()
	preview := records
	ellipsis := ""
	if len(preview) > summaryPreviewRows {
		preview = preview[:summaryPreviewRows]
		ellipsis = "..."
	}
	encoded, err := json.Marshal(preview)
	if err != nil {
		return "", fmt.Errorf("encode result preview: %w", err)
	}
	prompt := fmt.Sprintf(`Based on the following SQL query and its results, provide a natural language summary:
Query: %s
Results: %s %s
Number of results: %d`, sqlText, string(encoded), ellipsis, len(records))

	reply, err := s.completer.Complete(ctx,
		"You are a helpful assistant that explains SQL query results in natural language. Be concise but informative.",
		prompt,
	)
	if err != nil {
		observability.ObserveCompletion("summarize", "error", time.Since(start))
		return "", fmt.Errorf("summarize result: %w", err)
	}
	observability.ObserveCompletion("summarize", "ok", time.Since(start))
	return reply, nil
}
