// Package catalog describes the persistent relational store queried next to
// ephemeral uploads, and the descriptions kept for its registered tables.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/tablechat/tablechat/internal/dataset"
)

var ErrNotFound = errors.New("catalog: not found")

// Store is the read-only view of the persistent relational database.
type Store interface {
	HealthCheck(ctx context.Context) error
	ListTables(ctx context.Context) ([]string, error)
	GetColumns(ctx context.Context, table string) ([]Column, error)
	GetSampleRows(ctx context.Context, table string, limit int) (dataset.Dataset, error)
	ReadTable(ctx context.Context, table string) (dataset.Dataset, error)
	RunQuery(ctx context.Context, sqlText string) (dataset.Dataset, error)
}

type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

// TableDescription is the stored description of a registered persistent table.
type TableDescription struct {
	TableName   string
	Description string
	UpdatedAt   time.Time
}

// MetadataStore keeps which persistent tables are registered for querying and
// how they are described.
type MetadataStore interface {
	ListDescriptions(ctx context.Context) ([]TableDescription, error)
	UpsertDescription(ctx context.Context, table, description string) error
	UpdateDescription(ctx context.Context, table, description string) error
	DeleteDescription(ctx context.Context, table string) (bool, error)
}
