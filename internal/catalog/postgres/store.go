package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/dataset"
)

const defaultSchema = "public"

// Store reads tables of one schema of the persistent database.
type Store struct {
	db     *sql.DB
	schema string
}

func NewStore(db *sql.DB, schema string) *Store {
	if strings.TrimSpace(schema) == "" {
		schema = defaultSchema
	}
	return &Store{db: db, schema: schema}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
	}
	return nil
}

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name ASC`, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

// GetColumns returns catalog.ErrNotFound when the table does not exist.
func (s *Store) GetColumns(ctx context.Context, table string) ([]catalog.Column, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position ASC`, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("get columns for %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]catalog.Column, 0)
	for rows.Next() {
		var (
			column     catalog.Column
			nullable   string
			columnDflt sql.NullString
		)
		if err := rows.Scan(&column.Name, &column.Type, &nullable, &columnDflt); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		column.Nullable = strings.EqualFold(nullable, "YES")
		if columnDflt.Valid {
			value := columnDflt.String
			column.Default = &value
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(columns) == 0 {
		return nil, catalog.ErrNotFound
	}
	return columns, nil
}

func (s *Store) GetSampleRows(ctx context.Context, table string, limit int) (dataset.Dataset, error) {
	if limit <= 0 {
		limit = 5
	}
	data, err := s.queryDataset(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT $1", s.qualified(table)), limit)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("sample rows of %q: %w", table, err)
	}
	return data, nil
}

// ReadTable returns every row of table.
func (s *Store) ReadTable(ctx context.Context, table string) (dataset.Dataset, error) {
	data, err := s.queryDataset(ctx, "SELECT * FROM "+s.qualified(table))
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("read table %q: %w", table, err)
	}
	return data, nil
}

func (s *Store) RunQuery(ctx context.Context, sqlText string) (dataset.Dataset, error) {
	data, err := s.queryDataset(ctx, sqlText)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("run query: %w", err)
	}
	return data, nil
}

// queryDataset scans every row of query. NUMERIC columns arrive as text from
// the driver and are converted to float64 so transient engines type them as
// numbers.
func (s *Store) queryDataset(ctx context.Context, query string, args ...any) (dataset.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return dataset.Dataset{}, err
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return dataset.Dataset{}, err
	}
	columns := make([]string, len(columnTypes))
	numeric := make([]bool, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = columnType.Name()
		numeric[i] = isNumericType(columnType.DatabaseTypeName())
	}

	out := dataset.Dataset{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		numerics := make([]pgtype.Numeric, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			if numeric[i] {
				scanTargets[i] = &numerics[i]
			} else {
				scanTargets[i] = &values[i]
			}
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return dataset.Dataset{}, err
		}
		for i, value := range values {
			switch {
			case numeric[i]:
				values[i], err = numericValue(numerics[i])
				if err != nil {
					return dataset.Dataset{}, fmt.Errorf("column %q: %w", columns[i], err)
				}
			default:
				if raw, ok := value.([]byte); ok {
					values[i] = string(raw)
				}
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return dataset.Dataset{}, err
	}
	return out, nil
}

func isNumericType(name string) bool {
	switch strings.ToUpper(name) {
	case "NUMERIC", "DECIMAL":
		return true
	default:
		return false
	}
}

func numericValue(value pgtype.Numeric) (any, error) {
	if !value.Valid {
		return nil, nil
	}
	f, err := value.Float64Value()
	if err != nil {
		return nil, fmt.Errorf("convert numeric: %w", err)
	}
	if !f.Valid {
		return nil, nil
	}
	return f.Float64, nil
}

func (s *Store) qualified(table string) string {
	return quoteIdent(s.schema) + "." + quoteIdent(table)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
