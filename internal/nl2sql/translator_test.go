package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.system = systemPrompt
	f.user = userPrompt
	return f.reply, f.err
}

func schemas() []TableSchema {
	return []TableSchema{
		{Name: "customers", Origin: OriginPersistent, Columns: []SchemaColumn{{Name: "name", Type: "text"}}},
		{Name: "upload_sales_0a1b2c3d", Origin: OriginEphemeral, Columns: []SchemaColumn{
			{Name: "revenue", OriginalName: "Revenue ($)", Type: "float64"},
		}},
	}
}

func TestTranslateBuildsPromptAndStripsFences(t *testing.T) {
	completer := &fakeCompleter{reply: "```sql\nSELECT revenue FROM upload_sales_0a1b2c3d\n```"}
	sqlText, err := NewTranslator(completer).Translate(context.Background(), " total revenue? ", schemas())
	require.NoError(t, err)
	assert.Equal(t, "SELECT revenue FROM upload_sales_0a1b2c3d", sqlText)

	assert.Contains(t, completer.system, "Table: customers\nColumns:\n- name (text)\n")
	assert.Contains(t, completer.system, "- revenue (was: Revenue ($)) (float64)")
	assert.Contains(t, completer.system, "8. If the question can't be answered with the available tables and columns, return 'ERROR: Cannot answer this question with the selected tables'")
	assert.Equal(t, "Using ONLY the tables listed above (customers, upload_sales_0a1b2c3d), total revenue?", completer.user)
}

func TestTranslateReturnsSentinelVerbatim(t *testing.T) {
	completer := &fakeCompleter{reply: "ERROR: Cannot answer this question with the selected tables"}
	_, err := NewTranslator(completer).Translate(context.Background(), "weather?", schemas())

	var unanswerable *UnanswerableError
	require.ErrorAs(t, err, &unanswerable)
	assert.Equal(t, "ERROR: Cannot answer this question with the selected tables", unanswerable.Text)
}

func TestTranslateWrapsCompleterFailure(t *testing.T) {
	cause := errors.New("connection reset")
	_, err := NewTranslator(&fakeCompleter{err: cause}).Translate(context.Background(), "q", schemas())
	require.ErrorIs(t, err, cause)

	_, err = NewTranslator(&fakeCompleter{reply: "  "}).Translate(context.Background(), "q", schemas())
	require.ErrorIs(t, err, ErrEmptySQL)
}

func TestDescribeFallsBackOnError(t *testing.T) {
	describer := NewDescriber(&fakeCompleter{err: errors.New("boom")}, nil)
	got := describer.Describe(context.Background(), "orders", []string{"id"}, nil)
	assert.Equal(t, DescriptionFallback, got)
}

func TestDescribeIncludesColumnsAndSample(t *testing.T) {
	completer := &fakeCompleter{reply: " Orders placed by customers. "}
	got := NewDescriber(completer, nil).Describe(context.Background(), "orders", []string{"id", "total"}, []map[string]any{{"id": 1, "total": 9.5}})
	assert.Equal(t, "Orders placed by customers.", got)
	assert.Contains(t, completer.user, "Table name: orders")
	assert.Contains(t, completer.user, "Columns: id, total")
	assert.Contains(t, completer.user, `"total": 9.5`)
}

func TestSummarizePreviewsFirstFiveRecords(t *testing.T) {
	records := make([]map[string]any, 7)
	for i := range records {
		records[i] = map[string]any{"n": i}
	}
	completer := &fakeCompleter{reply: "Seven rows."}
	answer, err := NewSummarizer(completer).Summarize(context.Background(), "SELECT n FROM t", records)
	require.NoError(t, err)
	assert.Equal(t, "Seven rows.", answer)
	assert.Contains(t, completer.user, `Results: [{"n":0},{"n":1},{"n":2},{"n":3},{"n":4}] ...`)
	assert.Contains(t, completer.user, "Number of results: 7")
	assert.False(t, strings.Contains(completer.user, `{"n":5}`))
}
