// Package sqlite runs federated queries on a private in-memory SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/query"
)

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "sqlite"
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	// Every connection to ":memory:" is a separate database.
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return query.Result{}, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	defer func() { _ = db.Close() }()

	if err := loadTables(ctx, db, request.Tables); err != nil {
		return query.Result{}, err
	}
	loaded := 0
	for _, table := range request.Tables {
		loaded += len(table.Data.Rows)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			if raw, ok := value.([]byte); ok {
				values[i] = string(raw)
			} else {
				values[i] = dataset.SanitizeValue(value)
			}
		}
		resultRows = append(resultRows, values)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:    columns,
		Rows:       resultRows,
		RowsLoaded: loaded,
		Duration:   time.Since(start),
	}, nil
}

func loadTables(ctx context.Context, db *sql.DB, tables []query.Table) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range tables {
		if err := loadTable(ctx, tx, table); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load transaction: %w", err)
	}
	return nil
}

func loadTable(ctx context.Context, tx *sql.Tx, table query.Table) error {
	columns := table.Data.Columns
	if len(columns) == 0 {
		return fmt.Errorf("table %q has no columns", table.Name)
	}
	kinds := table.Data.ColumnKinds()

	defs := make([]string, len(columns))
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = query.QuoteIdent(column)
		defs[i] = quoted[i] + " " + columnType(kinds[i])
		placeholders[i] = "?"
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", query.QuoteIdent(table.Name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", table.Name, err)
	}
	if len(table.Data.Rows) == 0 {
		return nil
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		query.QuoteIdent(table.Name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert for %q: %w", table.Name, err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(columns))
	for index, row := range table.Data.Rows {
		for i, kind := range kinds {
			args[i] = dataset.Coerce(kind, row[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d into %q: %w", index, table.Name, err)
		}
	}
	return nil
}

func columnType(kind dataset.Kind) string {
	switch kind {
	case dataset.KindBool, dataset.KindInt:
		return "INTEGER"
	case dataset.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}
