// Package nl2sql talks to the text-completion service: it turns questions
// into SQL, describes tables and summarizes query results.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/observability"
)

// Completer is the text-completion capability.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// UnanswerablePrefix starts every reply the model gives when the selected
// tables cannot answer the question.
const UnanswerablePrefix = "ERROR:"

const unanswerableReply = "ERROR: Cannot answer this question with the selected tables"

// UnanswerableError carries the model's refusal verbatim.
type UnanswerableError struct {
	Text string
}

func (e *UnanswerableError) Error() string {
	return e.Text
}

// ErrEmptySQL is returned when the model replies with nothing usable.
var ErrEmptySQL = errors.New("model returned empty SQL")

type Origin string

const (
	OriginPersistent Origin = "persistent"
	OriginEphemeral  Origin = "ephemeral"
)

type SchemaColumn struct {
	Name         string
	OriginalName string
	Type         string
}

// TableSchema is the schema context for one table. Ephemeral columns carry
// their original name next to the normalized one the SQL must use.
type TableSchema struct {
	Name    string
	Origin  Origin
	Columns []SchemaColumn
}

type Translator struct {
	completer Completer
}

func NewTranslator(completer Completer) *Translator {
	return &Translator{completer: completer}
}

// Translate returns SQL for question restricted to tables. A refusal by the
// model is returned as *UnanswerableError.
func (t *Translator) Translate(ctx context.Context, question string, tables []TableSchema) (string, error) {
	start := time.Now()
	reply, err := t.completer.Complete(ctx, translationSystemPrompt(tables), translationUserPrompt(question, tables))
	if err != nil {
		observability.ObserveCompletion("translate", "error", time.Since(start))
		return "", fmt.Errorf("translate question: %w", err)
	}

	sqlText := stripMarkdownSQL(reply)
	switch {
	case strings.HasPrefix(sqlText, UnanswerablePrefix):
		observability.ObserveCompletion("translate", "unanswerable", time.Since(start))
		return "", &UnanswerableError{Text: sqlText}
	case sqlText == "":
		observability.ObserveCompletion("translate", "empty", time.Since(start))
		return "", ErrEmptySQL
	}
	observability.ObserveCompletion("translate", "ok", time.Since(start))
	return sqlText, nil
}

func translationSystemPrompt(tables []TableSchema) string {
	var b strings.Builder
	b.WriteString("You are a SQL expert. Generate only the SQL query without any explanation.\n")
	b.WriteString("Available tables and their schemas:\n")
	b.WriteString(SchemaContext(tables))
	b.WriteString("\nRules:\n")
	rules := []string{
		"Use proper SQL syntax",
		"Ensure the query is safe",
		"Use JOIN operations when querying multiple tables",
		"Use table aliases for better readability",
		"ONLY use the tables that are provided above - do not reference any tables not listed",
		"For uploaded tables (starting with 'upload_'), treat them as regular SQL tables",
		"Use the EXACT column names as shown in the schema (the cleaned names, not the original ones)",
		fmt.Sprintf("If the question can't be answered with the available tables and columns, return '%s'", unanswerableReply),
		"Do not assume any columns exist that are not explicitly shown in the schema",
		"Do not assume any relationships between tables unless explicitly stated in the question",
		"For uploaded tables, use the cleaned column names (shown before 'was:' in the schema)",
	}
	for i, rule := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	return b.String()
}

func translationUserPrompt(question string, tables []TableSchema) string {
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		names = append(names, table.Name)
	}
	return fmt.Sprintf("Using ONLY the tables listed above (%s), %s", strings.Join(names, ", "), strings.TrimSpace(question))
}

// SchemaContext renders tables the way the translation prompt lists them.
func SchemaContext(tables []TableSchema) string {
	blocks := make([]string, 0, len(tables))
	for _, table := range tables {
		var b strings.Builder
		if table.Origin == OriginEphemeral {
			fmt.Fprintf(&b, "Table: %s (uploaded)\nColumns:\n", table.Name)
			for _, column := range table.Columns {
				fmt.Fprintf(&b, "- %s (was: %s) (%s)\n", column.Name, column.OriginalName, column.Type)
			}
		} else {
			fmt.Fprintf(&b, "Table: %s\nColumns:\n", table.Name)
			for _, column := range table.Columns {
				fmt.Fprintf(&b, "- %s (%s)\n", column.Name, column.Type)
			}
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
