// Package storage keeps the raw uploaded documents behind ephemeral tables in
// an object store.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is what the archive reads back about a stored document.
type ObjectInfo struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore holds whole documents by key. Open reports a missing key as
// ErrObjectNotFound; deleting a missing key succeeds.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
