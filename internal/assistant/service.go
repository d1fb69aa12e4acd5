// Package assistant implements the caller-facing operations: managing the
// persistent tables offered for questions, uploading ephemeral tables and
// answering natural-language questions over both.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/ephemeral"
	"github.com/tablechat/tablechat/internal/federation"
	"github.com/tablechat/tablechat/internal/ingest"
	"github.com/tablechat/tablechat/internal/nl2sql"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/storage"
)

const (
	defaultSampleRows  = 5
	defaultPreviewRows = 5
)

// UploadRegistry is the part of the ephemeral table registry the service uses.
type UploadRegistry interface {
	Add(data dataset.Dataset, sourceLabel, description string) string
	Get(name string) (dataset.Dataset, bool)
	Contains(name string) bool
	Describe(name string) (ephemeral.Summary, bool)
	List() []ephemeral.Summary
	Remove(name string) bool
}

type QueryExecutor interface {
	Execute(ctx context.Context, request federation.Request) (federation.Result, error)
}

type Translator interface {
	Translate(ctx context.Context, question string, tables []nl2sql.TableSchema) (string, error)
}

type Describer interface {
	Describe(ctx context.Context, tableName string, columns []string, sampleRows []map[string]any) string
}

type Summarizer interface {
	Summarize(ctx context.Context, sqlText string, records []map[string]any) (string, error)
}

// DocumentArchive keeps the raw documents behind ephemeral tables.
type DocumentArchive interface {
	Save(ctx context.Context, tableName, filename string, body []byte) error
	Open(ctx context.Context, tableName string) (storage.Document, error)
	Remove(ctx context.Context, tableName string) error
}

type Dependencies struct {
	Store      catalog.Store
	Metadata   catalog.MetadataStore
	Uploads    UploadRegistry
	Executor   QueryExecutor
	Translator Translator
	Describer  Describer
	Summarizer Summarizer
	// Archive is optional; uploads are not archived when nil.
	Archive     DocumentArchive
	Logger      *slog.Logger
	SampleRows  int
	PreviewRows int
}

type Service struct {
	deps Dependencies
}

// ConfiguredTable is a registered persistent table as offered to callers.
type ConfiguredTable struct {
	Name        string           `json:"name"`
	Columns     []catalog.Column `json:"columns"`
	Description string           `json:"description"`
	SampleData  []map[string]any `json:"sample_data"`
}

// Upload is the outcome of ingesting one document.
type Upload struct {
	Name        string           `json:"name"`
	Columns     []string         `json:"columns"`
	Collisions  []string         `json:"collisions,omitempty"`
	PreviewData []map[string]any `json:"preview_data"`
	Archived    bool             `json:"archived"`
}

// Answer is the reply to a question.
type Answer struct {
	Answer  string           `json:"answer"`
	SQL     string           `json:"sql_query"`
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SampleRows <= 0 {
		deps.SampleRows = defaultSampleRows
	}
	if deps.PreviewRows <= 0 {
		deps.PreviewRows = defaultPreviewRows
	}
	return &Service{deps: deps}
}

// HealthCheck reports whether the persistent store is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.deps.Store.HealthCheck(ctx)
}

func (s *Service) AvailableTables(ctx context.Context) ([]string, error) {
	tables, err := s.deps.Store.ListTables(ctx)
	if err != nil {
		return nil, s.upstreamFailure(ctx, "STORE_ERROR", "failed to list database tables", err)
	}
	return tables, nil
}

// ConfiguredTables returns the persistent tables that have a stored
// description, in database order. Descriptions of tables that no longer exist
// are ignored.
func (s *Service) ConfiguredTables(ctx context.Context) ([]ConfiguredTable, error) {
	descriptions, err := s.deps.Metadata.ListDescriptions(ctx)
	if err != nil {
		return nil, s.upstreamFailure(ctx, "METADATA_ERROR", "failed to list table descriptions", err)
	}
	byName := make(map[string]string, len(descriptions))
	for _, description := range descriptions {
		byName[description.TableName] = description.Description
	}

	names, err := s.deps.Store.ListTables(ctx)
	if err != nil {
		return nil, s.upstreamFailure(ctx, "STORE_ERROR", "failed to list database tables", err)
	}
	out := make([]ConfiguredTable, 0, len(byName))
	for _, name := range names {
		description, ok := byName[name]
		if !ok {
			continue
		}
		columns, err := s.deps.Store.GetColumns(ctx, name)
		if err != nil {
			return nil, s.upstreamFailure(ctx, "STORE_ERROR", fmt.Sprintf("failed to read columns of %s", name), err)
		}
		sample, err := s.deps.Store.GetSampleRows(ctx, name, s.deps.SampleRows)
		if err != nil {
			return nil, s.upstreamFailure(ctx, "STORE_ERROR", fmt.Sprintf("failed to read sample rows of %s", name), err)
		}
		out = append(out, ConfiguredTable{
			Name:        name,
			Columns:     columns,
			Description: description,
			SampleData:  sample.Sanitize().Records(),
		})
	}
	return out, nil
}

// RegisterTable offers an existing persistent table for questions and returns
// its generated description.
func (s *Service) RegisterTable(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("TABLE_NAME_REQUIRED", "table_name is required", nil)
	}
	exists, err := s.persistentTableExists(ctx, name)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", notFound("TABLE_NOT_FOUND", fmt.Sprintf("Table %s not found in database", name), map[string]any{"table": name})
	}

	if err := s.deps.Metadata.UpsertDescription(ctx, name, nl2sql.DescriptionPlaceholder); err != nil {
		return "", s.upstreamFailure(ctx, "METADATA_ERROR", "failed to store table description", err)
	}

	columns, err := s.deps.Store.GetColumns(ctx, name)
	if err != nil {
		return "", s.upstreamFailure(ctx, "STORE_ERROR", fmt.Sprintf("failed to read columns of %s", name), err)
	}
	sample, err := s.deps.Store.GetSampleRows(ctx, name, s.deps.SampleRows)
	if err != nil {
		return "", s.upstreamFailure(ctx, "STORE_ERROR", fmt.Sprintf("failed to read sample rows of %s", name), err)
	}
	columnLabels := make([]string, len(columns))
	for i, column := range columns {
		columnLabels[i] = fmt.Sprintf("%s (%s)", column.Name, column.Type)
	}
	description := s.deps.Describer.Describe(ctx, name, columnLabels, sample.Sanitize().Records())

	if err := s.deps.Metadata.UpdateDescription(ctx, name, description); err != nil {
		return "", s.upstreamFailure(ctx, "METADATA_ERROR", "failed to store table description", err)
	}
	s.deps.Logger.InfoContext(ctx, "table registered", slog.String("table", name))
	return description, nil
}

// UnregisterTable withdraws a persistent table. Withdrawing a table that is
// not registered succeeds.
func (s *Service) UnregisterTable(ctx context.Context, name string) error {
	removed, err := s.deps.Metadata.DeleteDescription(ctx, name)
	if err != nil {
		return s.upstreamFailure(ctx, "METADATA_ERROR", "failed to remove table description", err)
	}
	if removed {
		s.deps.Logger.InfoContext(ctx, "table unregistered", slog.String("table", name))
	}
	return nil
}

func (s *Service) UpdateDescription(ctx context.Context, name, description string) error {
	err := s.deps.Metadata.UpdateDescription(ctx, name, description)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, catalog.ErrNotFound):
		return notFound("TABLE_NOT_REGISTERED", fmt.Sprintf("Table %s is not registered", name), map[string]any{"table": name})
	default:
		return s.upstreamFailure(ctx, "METADATA_ERROR", "failed to update table description", err)
	}
}

// IngestDocument parses an uploaded document into a new ephemeral table.
func (s *Service) IngestDocument(ctx context.Context, filename string, body []byte) (Upload, error) {
	format, err := ingest.Format(filename)
	if err != nil {
		observability.ObserveIngestedDocument("unknown", "rejected", 0)
		return Upload{}, invalid("UNSUPPORTED_FORMAT", fmt.Sprintf("Error processing file: %v", err), map[string]any{"filename": filename})
	}
	data, err := ingest.Parse(filename, body)
	if err != nil {
		observability.ObserveIngestedDocument(format, "rejected", 0)
		return Upload{}, invalid("INVALID_DOCUMENT", fmt.Sprintf("Error processing file: %v", err), map[string]any{"filename": filename})
	}

	preview := data.Head(s.deps.PreviewRows).Sanitize().Records()
	kinds := data.ColumnKinds()
	columnLabels := make([]string, len(data.Columns))
	for i, column := range data.Columns {
		columnLabels[i] = fmt.Sprintf("%s (%s)", column, kinds[i])
	}
	description := s.deps.Describer.Describe(ctx, filename, columnLabels, preview)

	name := s.deps.Uploads.Add(data, filename, description)
	upload := Upload{
		Name:        name,
		Columns:     append([]string(nil), data.Columns...),
		PreviewData: preview,
	}
	if summary, ok := s.deps.Uploads.Describe(name); ok {
		upload.Collisions = summary.Collisions
	}

	if s.deps.Archive != nil {
		if err := s.deps.Archive.Save(ctx, name, filename, body); err != nil {
			s.deps.Logger.ErrorContext(ctx, "upload archive failed",
				slog.String("table", name),
				slog.String("error", err.Error()),
			)
		} else {
			upload.Archived = true
		}
	}

	observability.ObserveIngestedDocument(format, "ok", len(data.Rows))
	s.deps.Logger.InfoContext(ctx, "document ingested",
		slog.String("table", name),
		slog.String("filename", filename),
		slog.String("format", format),
		slog.Int("rows", len(data.Rows)),
		slog.Int("columns", len(data.Columns)),
	)
	return upload, nil
}

func (s *Service) EphemeralTables() []ephemeral.Summary {
	return s.deps.Uploads.List()
}

// RemoveEphemeral drops an ephemeral table and its archived document.
func (s *Service) RemoveEphemeral(ctx context.Context, name string) error {
	if !s.deps.Uploads.Remove(name) {
		return notFound("TABLE_NOT_FOUND", "Table not found", map[string]any{"table": name})
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.Remove(ctx, name); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.deps.Logger.WarnContext(ctx, "archived upload removal failed",
				slog.String("table", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// OpenDocument returns the archived source document of a live ephemeral
// table. The caller closes the body.
func (s *Service) OpenDocument(ctx context.Context, name string) (storage.Document, error) {
	if s.deps.Archive == nil {
		return storage.Document{}, notFound("ARCHIVE_DISABLED", "upload archiving is not enabled", nil)
	}
	if !s.deps.Uploads.Contains(name) {
		return storage.Document{}, notFound("TABLE_NOT_FOUND", "Table not found", map[string]any{"table": name})
	}
	document, err := s.deps.Archive.Open(ctx, name)
	switch {
	case err == nil:
		return document, nil
	case errors.Is(err, storage.ErrObjectNotFound):
		return storage.Document{}, notFound("DOCUMENT_NOT_FOUND", fmt.Sprintf("no archived document for %s", name), map[string]any{"table": name})
	default:
		return storage.Document{}, s.upstreamFailure(ctx, "OBJECT_STORE_ERROR", "failed to read archived document", err)
	}
}

// Ask answers question using only the named tables. Ephemeral tables take
// precedence over persistent tables of the same name.
func (s *Service) Ask(ctx context.Context, question string, tables []string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, invalid("MESSAGE_REQUIRED", "message is required", nil)
	}

	ephemeralNames, persistentNames, err := s.partition(ctx, tables)
	if err != nil {
		return Answer{}, err
	}
	if len(ephemeralNames)+len(persistentNames) == 0 {
		return Answer{}, invalid("NO_TABLES", "No valid tables available for querying", nil)
	}

	schemas, err := s.schemaContext(ctx, persistentNames, ephemeralNames)
	if err != nil {
		return Answer{}, err
	}

	sqlText, err := s.deps.Translator.Translate(ctx, question, schemas)
	if err != nil {
		var unanswerable *nl2sql.UnanswerableError
		if errors.As(err, &unanswerable) {
			return Answer{}, invalid("UNANSWERABLE", unanswerable.Text, nil)
		}
		return Answer{}, s.upstreamFailure(ctx, "COMPLETION_FAILED", "failed to generate SQL", err)
	}

	columns, rows, err := s.run(ctx, sqlText, persistentNames, ephemeralNames)
	if err != nil {
		return Answer{}, err
	}
	records := dataset.Dataset{Columns: columns, Rows: rows}.Records()

	summary, err := s.deps.Summarizer.Summarize(ctx, sqlText, records)
	if err != nil {
		return Answer{}, s.upstreamFailure(ctx, "COMPLETION_FAILED", "failed to summarize results", err)
	}
	return Answer{
		Answer:  summary,
		SQL:     sqlText,
		Columns: columns,
		Data:    records,
	}, nil
}

func (s *Service) partition(ctx context.Context, tables []string) ([]string, []string, error) {
	seen := make(map[string]struct{}, len(tables))
	ephemeralNames := make([]string, 0, len(tables))
	candidates := make([]string, 0, len(tables))
	for _, name := range tables {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if s.deps.Uploads.Contains(name) {
			ephemeralNames = append(ephemeralNames, name)
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return ephemeralNames, nil, nil
	}

	existing, err := s.deps.Store.ListTables(ctx)
	if err != nil {
		return nil, nil, s.upstreamFailure(ctx, "STORE_ERROR", "failed to list database tables", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		known[name] = struct{}{}
	}
	unknown := make([]string, 0)
	for _, name := range candidates {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, nil, invalid("UNKNOWN_TABLE",
			fmt.Sprintf("Unknown table: %s", strings.Join(unknown, ", ")),
			map[string]any{"tables": unknown},
		)
	}
	return ephemeralNames, candidates, nil
}

func (s *Service) schemaContext(ctx context.Context, persistentNames, ephemeralNames []string) ([]nl2sql.TableSchema, error) {
	schemas := make([]nl2sql.TableSchema, 0, len(persistentNames)+len(ephemeralNames))
	for _, name := range persistentNames {
		columns, err := s.deps.Store.GetColumns(ctx, name)
		if err != nil {
			return nil, s.upstreamFailure(ctx, "STORE_ERROR", fmt.Sprintf("failed to read columns of %s", name), err)
		}
		schema := nl2sql.TableSchema{Name: name, Origin: nl2sql.OriginPersistent}
		for _, column := range columns {
			schema.Columns = append(schema.Columns, nl2sql.SchemaColumn{Name: column.Name, Type: column.Type})
		}
		schemas = append(schemas, schema)
	}
	for _, name := range ephemeralNames {
		summary, ok := s.deps.Uploads.Describe(name)
		data, found := s.deps.Uploads.Get(name)
		if !ok || !found {
			return nil, invalid("UNKNOWN_TABLE", fmt.Sprintf("Unknown table: %s", name), map[string]any{"tables": []string{name}})
		}
		kinds := data.ColumnKinds()
		schema := nl2sql.TableSchema{Name: name, Origin: nl2sql.OriginEphemeral}
		for i, normalized := range summary.NormalizedColumns {
			column := nl2sql.SchemaColumn{Name: normalized, OriginalName: summary.OriginalColumns[i]}
			if i < len(kinds) {
				column.Type = string(kinds[i])
			}
			schema.Columns = append(schema.Columns, column)
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

// run executes on the persistent store directly unless an ephemeral table is
// involved.
func (s *Service) run(ctx context.Context, sqlText string, persistentNames, ephemeralNames []string) ([]string, [][]any, error) {
	if len(ephemeralNames) == 0 {
		data, err := s.deps.Store.RunQuery(ctx, sqlText)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, upstream("QUERY_TIMEOUT", "query did not finish in time", ctxErr)
			}
			return nil, nil, &Error{
				Kind:    KindInvalid,
				Code:    "QUERY_FAILED",
				Message: err.Error(),
				Context: map[string]any{"sql": sqlText},
				Err:     err,
			}
		}
		data = data.Sanitize()
		return data.Columns, data.Rows, nil
	}

	result, err := s.deps.Executor.Execute(ctx, federation.Request{
		SQL:              sqlText,
		PersistentTables: persistentNames,
		EphemeralTables:  ephemeralNames,
	})
	if err == nil {
		return result.Columns, result.Rows, nil
	}

	var execErr *federation.ExecutionError
	var storeErr *federation.StoreError
	switch {
	case errors.As(err, &execErr):
		extra := map[string]any{"sql": execErr.SQL}
		if execErr.Suggestion != "" {
			extra["suggestion"] = execErr.Suggestion
		}
		return nil, nil, &Error{Kind: KindInvalid, Code: "QUERY_FAILED", Message: execErr.Message, Context: extra, Err: err}
	case errors.Is(err, federation.ErrUnknownTable):
		return nil, nil, &Error{Kind: KindInvalid, Code: "UNKNOWN_TABLE", Message: err.Error(), Err: err}
	case errors.As(err, &storeErr):
		return nil, nil, s.upstreamFailure(ctx, "STORE_ERROR", fmt.Sprintf("failed to read table %s", storeErr.Table), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, nil, upstream("QUERY_TIMEOUT", "query did not finish in time", err)
	default:
		return nil, nil, &Error{Kind: KindInternal, Code: "QUERY_ERROR", Message: "failed to execute query", Err: err}
	}
}

func (s *Service) persistentTableExists(ctx context.Context, name string) (bool, error) {
	tables, err := s.deps.Store.ListTables(ctx)
	if err != nil {
		return false, s.upstreamFailure(ctx, "STORE_ERROR", "failed to list database tables", err)
	}
	for _, table := range tables {
		if table == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) upstreamFailure(ctx context.Context, code, message string, err error) *Error {
	s.deps.Logger.ErrorContext(ctx, message,
		slog.String("error_code", code),
		slog.String("error", err.Error()),
	)
	return upstream(code, message, err)
}
