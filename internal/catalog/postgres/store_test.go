package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/tablechat/tablechat/internal/catalog"
)

func TestListTables(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "")

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name ASC`)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("customers").AddRow("orders"))

	tables, err := store.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 2 || tables[0] != "customers" || tables[1] != "orders" {
		t.Fatalf("tables = %#v", tables)
	}
	assertSQLMock(t, mock)
}

func TestGetColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "sales")

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position ASC`)).
		WithArgs("sales", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}).
			AddRow("id", "bigint", "NO", "nextval('orders_id_seq'::regclass)").
			AddRow("note", "text", "YES", nil))

	columns, err := store.GetColumns(context.Background(), "orders")
	if err != nil {
		t.Fatalf("GetColumns() error = %v", err)
	}
	if len(columns) != 2 {
		t.Fatalf("columns = %#v", columns)
	}
	if columns[0].Name != "id" || columns[0].Nullable || columns[0].Default == nil {
		t.Fatalf("columns[0] = %#v", columns[0])
	}
	if !columns[1].Nullable || columns[1].Default != nil {
		t.Fatalf("columns[1] = %#v", columns[1])
	}
	assertSQLMock(t, mock)
}

func TestGetColumnsMissingTableReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns`)).
		WithArgs("public", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}))

	_, err := store.GetColumns(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestGetSampleRowsQuotesIdentifiers(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "")
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."Order ""Lines""" LIMIT $1`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sku", "created_at"}).
			AddRow(int64(1), []byte("A-1"), created))

	data, err := store.GetSampleRows(context.Background(), `Order "Lines"`, 0)
	if err != nil {
		t.Fatalf("GetSampleRows() error = %v", err)
	}
	if len(data.Rows) != 1 || data.Rows[0][1] != "A-1" {
		t.Fatalf("rows = %#v", data.Rows)
	}
	if got, ok := data.Rows[0][2].(time.Time); !ok || !got.Equal(created) {
		t.Fatalf("created_at = %#v", data.Rows[0][2])
	}
	assertSQLMock(t, mock)
}

func TestReadTableWrapsErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."orders"`)).
		WillReturnError(sql.ErrConnDone)

	_, err := store.ReadTable(context.Background(), "orders")
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRunQuery(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) AS n FROM orders`)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(42)))

	data, err := store.RunQuery(context.Background(), "SELECT COUNT(*) AS n FROM orders")
	if err != nil {
		t.Fatalf("RunQuery() error = %v", err)
	}
	if len(data.Columns) != 1 || data.Columns[0] != "n" || data.Rows[0][0] != int64(42) {
		t.Fatalf("data = %#v", data)
	}
	assertSQLMock(t, mock)
}

func TestReadTableConvertsNumericColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."orders"`)).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("id").OfType("INT8", int64(0)),
			sqlmock.NewColumn("amount").OfType("NUMERIC", ""),
			sqlmock.NewColumn("note").OfType("TEXT", ""),
		).
			AddRow(int64(1), "12.50", "first").
			AddRow(int64(2), nil, []byte("second")))

	data, err := store.ReadTable(context.Background(), "orders")
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(data.Rows) != 2 {
		t.Fatalf("rows = %#v", data.Rows)
	}
	if got, ok := data.Rows[0][1].(float64); !ok || got != 12.5 {
		t.Fatalf("amount = %#v, want 12.5", data.Rows[0][1])
	}
	if data.Rows[1][1] != nil {
		t.Fatalf("null amount = %#v, want nil", data.Rows[1][1])
	}
	if data.Rows[0][0] != int64(1) || data.Rows[1][2] != "second" {
		t.Fatalf("rows = %#v", data.Rows)
	}
	assertSQLMock(t, mock)
}

func TestReadTableRejectsMalformedNumeric(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db, "")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."orders"`)).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("amount").OfType("NUMERIC", ""),
		).AddRow("twelve"))

	if _, err := store.ReadTable(context.Background(), "orders"); err == nil {
		t.Fatal("expected error for malformed numeric")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
