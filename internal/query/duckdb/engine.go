package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/query"
)

// Engine runs each request on a private in-memory DuckDB database.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "duckdb"
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	loaded := 0
	for _, table := range request.Tables {
		if err := loadTable(ctx, conn, table); err != nil {
			return query.Result{}, err
		}
		loaded += len(table.Data.Rows)
	}

	rows, err := conn.QueryContext(ctx, sqlText)
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
		resultRows = append(resultRows, normalizeValues(values))
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

func loadTable(ctx context.Context, conn *sql.Conn, table query.Table) error {
	if len(table.Data.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", table.Name)
	}
	kinds := table.Data.ColumnKinds()
	if _, err := conn.ExecContext(ctx, createTableSQL(table.Name, table.Data.Columns, kinds)); err != nil {
		return fmt.Errorf("create table %q: %w", table.Name, err)
	}
	if len(table.Data.Rows) == 0 {
		return nil
	}

	return conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}
		appender, err := duckdb.NewAppenderFromConn(driverConn, "", table.Name)
		if err != nil {
			return fmt.Errorf("create appender for %q: %w", table.Name, err)
		}

		values := make([]driver.Value, len(kinds))
		for index, row := range table.Data.Rows {
			for i, kind := range kinds {
				values[i] = dataset.Coerce(kind, row[i])
			}
			if err := appender.AppendRow(values...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("append row %d to %q: %w", index, table.Name, err)
			}
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush appender for %q: %w", table.Name, err)
		}
		return nil
	})
}

func createTableSQL(name string, columns []string, kinds []dataset.Kind) string {
	defs := make([]string, len(columns))
	for i, column := range columns {
		defs[i] = query.QuoteIdent(column) + " " + columnType(kinds[i])
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", query.QuoteIdent(name), strings.Join(defs, ", "))
}

func columnType(kind dataset.Kind) string {
	switch kind {
	case dataset.KindBool:
		return "BOOLEAN"
	case dataset.KindInt:
		return "BIGINT"
	case dataset.KindFloat:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed.String()
			}
		case duckdb.Decimal:
			normalized[i] = decimalToFloat(typed)
		default:
			normalized[i] = dataset.SanitizeValue(typed)
		}
	}
	return normalized
}

// decimalToFloat returns nil for a decimal without a value.
func decimalToFloat(value duckdb.Decimal) any {
	if value.Value == nil {
		return nil
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(value.Scale)), nil))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(value.Value), scale).Float64()
	return out
}
