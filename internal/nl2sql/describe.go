package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/observability"
)

// DescriptionFallback replaces a description the model failed to produce.
const DescriptionFallback = "Description generation failed. Please add a manual description."

// DescriptionPlaceholder is stored while a description is being generated.
const DescriptionPlaceholder = "Analyzing table structure..."

type Describer struct {
	completer Completer
	logger    *slog.Logger
}

func NewDescriber(completer Completer, logger *slog.Logger) *Describer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Describer{completer: completer, logger: logger}
}

// Describe never fails: any error yields DescriptionFallback.
func (d *Describer) Describe(ctx context.Context, tableName string, columns []string, sampleRows []map[string]any) string {
	start := time.Now()
	sample, err := json.MarshalIndent(sampleRows, "", "  ")
	if err != nil {
		sample = []byte("[]")
	}
	prompt := fmt.Sprintf(`Analyze this database table and provide a concise description:
Table name: %s
Columns: %s
Sample data:
%s

Please provide a brief description covering:
1. The likely purpose of this table
2. Key columns and their meaning
3. Notable data patterns
4. Potential use cases`, tableName, strings.Join(columns, ", "), string(sample))

	reply, err := d.completer.Complete(ctx,
		"You are a data analyst who writes short, precise descriptions of database tables.",
		prompt,
	)
	if err != nil || strings.TrimSpace(reply) == "" {
		observability.ObserveCompletion("describe", "error", time.Since(start))
		if err != nil {
			d.logger.ErrorContext(ctx, "table description failed",
				slog.String("table", tableName),
				slog.String("error", err.Error()),
			)
		}
		return DescriptionFallback
	}
	observability.ObserveCompletion("describe", "ok", time.Since(start))
	return strings.TrimSpace(reply)
}
