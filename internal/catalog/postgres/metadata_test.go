package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/tablechat/tablechat/internal/catalog"
)

func TestListDescriptions(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewMetadataRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT table_name, description, updated_at
FROM table_metadata
ORDER BY table_name ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "description", "updated_at"}).
			AddRow("orders", "Order lines.", now))

	list, err := repo.ListDescriptions(context.Background())
	if err != nil {
		t.Fatalf("ListDescriptions() error = %v", err)
	}
	if len(list) != 1 || list[0].TableName != "orders" || !list[0].UpdatedAt.Equal(now) {
		t.Fatalf("list = %#v", list)
	}
	assertSQLMock(t, mock)
}

func TestUpsertDescription(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewMetadataRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO table_metadata (table_name, description, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (table_name)
DO UPDATE SET description = EXCLUDED.description, updated_at = now()`)).
		WithArgs("orders", "Analyzing table structure...").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertDescription(context.Background(), "orders", "Analyzing table structure..."); err != nil {
		t.Fatalf("UpsertDescription() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestUpdateDescriptionNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewMetadataRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE table_metadata
SET description = $2, updated_at = now()
WHERE table_name = $1`)).
		WithArgs("missing", "text").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDescription(context.Background(), "missing", "text")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestDeleteDescription(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewMetadataRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
DELETE FROM table_metadata
WHERE table_name = $1`)).
		WithArgs("orders").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteDescription(context.Background(), "orders")
	if err != nil {
		t.Fatalf("DeleteDescription() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	assertSQLMock(t, mock)
}
