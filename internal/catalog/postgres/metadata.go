package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tablechat/tablechat/internal/catalog"
)

// MetadataRepository stores table descriptions in the table_metadata table.
type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func (r *MetadataRepository) ListDescriptions(ctx context.Context) ([]catalog.TableDescription, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT table_name, description, updated_at
FROM table_metadata
ORDER BY table_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list table metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]catalog.TableDescription, 0)
	for rows.Next() {
		var description catalog.TableDescription
		if err := rows.Scan(&description.TableName, &description.Description, &description.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan table metadata row: %w", err)
		}
		out = append(out, description)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table metadata rows: %w", err)
	}
	return out, nil
}

func (r *MetadataRepository) UpsertDescription(ctx context.Context, table, description string) error {
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO table_metadata (table_name, description, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (table_name)
DO UPDATE SET description = EXCLUDED.description, updated_at = now()`, table, description); err != nil {
		return fmt.Errorf("upsert table metadata: %w", err)
	}
	return nil
}

func (r *MetadataRepository) UpdateDescription(ctx context.Context, table, description string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE table_metadata
SET description = $2, updated_at = now()
WHERE table_name = $1`, table, description)
	if err != nil {
		return fmt.Errorf("update table metadata: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read updated row count: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *MetadataRepository) DeleteDescription(ctx context.Context, table string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM table_metadata
WHERE table_name = $1`, table)
	if err != nil {
		return false, fmt.Errorf("delete table metadata: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read deleted row count: %w", err)
	}
	return affected > 0, nil
}
