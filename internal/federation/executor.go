// Package federation executes one SQL statement across persistent and
// ephemeral tables by materializing both into a transient engine.
package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/ephemeral"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/query"
)

// EphemeralSource is the read side of the ephemeral table registry.
type EphemeralSource interface {
	Get(name string) (dataset.Dataset, bool)
	ColumnMap(name string) map[string]string
	Describe(name string) (ephemeral.Summary, bool)
}

// PersistentSource reads the full contents of a persistent table.
type PersistentSource interface {
	ReadTable(ctx context.Context, table string) (dataset.Dataset, error)
}

type Request struct {
	SQL              string
	PersistentTables []string
	EphemeralTables  []string
}

// Plan is the rewritten statement and the tables it will be run against.
type Plan struct {
	SQL        string
	Ephemeral  []string
	Persistent []string

	columnMaps []map[string]string
	reverse    map[string]string
}

type Result struct {
	SQL     string
	Columns []string
	Rows    [][]any
}

func (r Result) Records() []map[string]any {
	return dataset.Dataset{Columns: r.Columns, Rows: r.Rows}.Records()
}

type Options struct {
	Rewriter      Rewriter
	Timeout       time.Duration
	MaxConcurrent int64
	Logger        *slog.Logger
}

type Executor struct {
	ephemeral  EphemeralSource
	persistent PersistentSource
	engine     query.Engine
	rewriter   Rewriter
	timeout    time.Duration
	slots      *semaphore.Weighted
	logger     *slog.Logger
}

func NewExecutor(ephemeral EphemeralSource, persistent PersistentSource, engine query.Engine, opts Options) *Executor {
	if opts.Rewriter == nil {
		opts.Rewriter = TextRewriter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	executor := &Executor{
		ephemeral:  ephemeral,
		persistent: persistent,
		engine:     engine,
		rewriter:   opts.Rewriter,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
	if opts.MaxConcurrent > 0 {
		executor.slots = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return executor
}

// Plan rewrites the statement with the column maps of the requested
// ephemeral tables and selects the persistent tables the rewritten text
// mentions. A persistent table is mentioned when its name occurs anywhere in
// the text, including inside longer identifiers.
func (e *Executor) Plan(request Request) (Plan, error) {
	columnMaps := make([]map[string]string, 0, len(request.EphemeralTables))
	reverse := map[string]string{}
	for _, name := range request.EphemeralTables {
		summary, ok := e.ephemeral.Describe(name)
		if !ok {
			return Plan{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
		}
		columnMaps = append(columnMaps, e.ephemeral.ColumnMap(name))
		for i, normalized := range summary.NormalizedColumns {
			reverse[normalized] = summary.OriginalColumns[i]
		}
	}

	rewritten := e.rewriter.Rewrite(request.SQL, columnMaps)
	persistent := make([]string, 0, len(request.PersistentTables))
	for _, name := range request.PersistentTables {
		if name != "" && strings.Contains(rewritten, name) {
			persistent = append(persistent, name)
		}
	}
	return Plan{
		SQL:        rewritten,
		Ephemeral:  append([]string(nil), request.EphemeralTables...),
		Persistent: persistent,
		columnMaps: columnMaps,
		reverse:    reverse,
	}, nil
}

func (e *Executor) Execute(ctx context.Context, request Request) (Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return Result{}, fmt.Errorf("wait for execution slot: %w", err)
		}
		defer e.slots.Release(1)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result, plan, rowsLoaded, err := e.execute(ctx, request)
	elapsed := time.Since(start)

	outcome := outcomeOf(err)
	observability.ObserveFederatedQuery(e.engine.Name(), outcome, len(plan.Persistent), len(plan.Ephemeral), rowsLoaded, elapsed)
	attrs := []any{
		slog.String("engine", e.engine.Name()),
		slog.String("outcome", outcome),
		slog.Any("ephemeral_tables", plan.Ephemeral),
		slog.Any("persistent_tables", plan.Persistent),
		slog.Int("rows_loaded", rowsLoaded),
		slog.String("duration", elapsed.String()),
	}
	if err != nil {
		e.logger.WarnContext(ctx, "federated_query", append(attrs, slog.String("error", err.Error()))...)
		return Result{}, err
	}
	e.logger.InfoContext(ctx, "federated_query", append(attrs, slog.Int("rows", len(result.Rows)))...)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, request Request) (Result, Plan, int, error) {
	plan, err := e.Plan(request)
	if err != nil {
		return Result{}, plan, 0, err
	}

	tables := make([]query.Table, 0, len(plan.Ephemeral)+len(plan.Persistent))
	for _, name := range plan.Persistent {
		data, err := e.persistent.ReadTable(ctx, name)
		if err != nil {
			return Result{}, plan, 0, &StoreError{Table: name, Err: err}
		}
		tables = append(tables, query.Table{Name: name, Data: data.Sanitize()})
	}
	for _, name := range plan.Ephemeral {
		data, ok := e.ephemeral.Get(name)
		if !ok {
			return Result{}, plan, 0, fmt.Errorf("%w: %s", ErrUnknownTable, name)
		}
		tables = append(tables, query.Table{Name: name, Data: data.Sanitize()})
	}

	engineResult, err := e.engine.Execute(ctx, query.Request{SQL: plan.SQL, Tables: tables})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, plan, 0, fmt.Errorf("federated query: %w", ctxErr)
		}
		return Result{}, plan, 0, newExecutionError(plan.SQL, err, plan.columnMaps)
	}

	columns := make([]string, len(engineResult.Columns))
	for i, column := range engineResult.Columns {
		if original, ok := plan.reverse[column]; ok {
			columns[i] = original
		} else {
			columns[i] = column
		}
	}

	return Result{
		SQL:     plan.SQL,
		Columns: columns,
		Rows:    dataset.Dataset{Columns: columns, Rows: engineResult.Rows}.Sanitize().Rows,
	}, plan, engineResult.RowsLoaded, nil
}

func outcomeOf(err error) string {
	var execErr *ExecutionError
	var storeErr *StoreError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownTable):
		return "unknown_table"
	case errors.As(err, &execErr):
		return "execution_error"
	case errors.As(err, &storeErr):
		return "store_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
