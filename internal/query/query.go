// Package query defines the transient engines federated queries run on.
package query

import (
	"context"
	"time"

	"github.com/tablechat/tablechat/internal/dataset"
)

// Table is a dataset to be loaded into the engine under Name.
type Table struct {
	Name string
	Data dataset.Dataset
}

type Request struct {
	SQL    string
	Tables []Table
}

type Result struct {
	Columns    []string
	Rows       [][]any
	RowsLoaded int
	Duration   time.Duration
}

// Engine loads the request tables into a fresh in-memory database, runs the
// SQL and discards the database. Implementations must not share state across
// calls.
type Engine interface {
	Name() string
	Execute(ctx context.Context, request Request) (Result, error)
}
