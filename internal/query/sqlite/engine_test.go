package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/query"
)

func TestExecuteJoinsLoadedTables(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Execute(context.Background(), query.Request{
		SQL: `SELECT c.name, o.total FROM customers c JOIN orders o ON o.customer_id = c.id ORDER BY o.total DESC;`,
		Tables: []query.Table{
			{Name: "customers", Data: dataset.Dataset{
				Columns: []string{"id", "name"},
				Rows:    [][]any{{int64(1), "acme"}, {int64(2), "globex"}},
			}},
			{Name: "orders", Data: dataset.Dataset{
				Columns: []string{"customer_id", "total"},
				Rows:    [][]any{{int64(1), 9.5}, {int64(2), 20.0}},
			}},
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != "globex" || result.Rows[0][1] != 20.0 {
		t.Fatalf("first row = %#v", result.Rows[0])
	}
	if result.RowsLoaded != 4 {
		t.Fatalf("RowsLoaded = %d", result.RowsLoaded)
	}
}

func TestExecuteReportsNoSuchColumn(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Execute(context.Background(), query.Request{
		SQL:    "SELECT Revenue FROM t",
		Tables: []query.Table{{Name: "t", Data: dataset.Dataset{Columns: []string{"revenue_total"}, Rows: [][]any{{1.0}}}}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "no such column: Revenue") {
		t.Fatalf("error = %v", err)
	}
}

func TestExecuteKeepsNulls(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Execute(context.Background(), query.Request{
		SQL:    "SELECT v FROM t ORDER BY rowid",
		Tables: []query.Table{{Name: "t", Data: dataset.Dataset{Columns: []string{"v"}, Rows: [][]any{{nil}, {1.5}}}}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != nil || result.Rows[1][0] != 1.5 {
		t.Fatalf("rows = %#v", result.Rows)
	}
}
