package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestMemoryMetadataStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMetadataStore()

	if err := store.UpdateDescription(ctx, "orders", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateDescription() error = %v, want ErrNotFound", err)
	}
	if err := store.UpsertDescription(ctx, "orders", "Analyzing table structure..."); err != nil {
		t.Fatalf("UpsertDescription() error = %v", err)
	}
	if err := store.UpsertDescription(ctx, "customers", "people"); err != nil {
		t.Fatalf("UpsertDescription() error = %v", err)
	}
	if err := store.UpdateDescription(ctx, "orders", "order lines"); err != nil {
		t.Fatalf("UpdateDescription() error = %v", err)
	}

	list, err := store.ListDescriptions(ctx)
	if err != nil {
		t.Fatalf("ListDescriptions() error = %v", err)
	}
	if len(list) != 2 || list[0].TableName != "customers" || list[1].Description != "order lines" {
		t.Fatalf("ListDescriptions() = %#v", list)
	}

	deleted, _ := store.DeleteDescription(ctx, "orders")
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	deleted, _ = store.DeleteDescription(ctx, "orders")
	if deleted {
		t.Fatal("expected deleted=false on second delete")
	}
}

type failingMetadataStore struct {
	err error
}

func (f failingMetadataStore) ListDescriptions(context.Context) ([]TableDescription, error) {
	return nil, f.err
}

func (f failingMetadataStore) UpsertDescription(context.Context, string, string) error {
	return f.err
}

func (f failingMetadataStore) UpdateDescription(context.Context, string, string) error {
	return f.err
}

func (f failingMetadataStore) DeleteDescription(context.Context, string) (bool, error) {
	return false, f.err
}

func TestFallbackMetadataStoreServesFromMemoryWhenPrimaryFails(t *testing.T) {
	ctx := context.Background()
	store := NewFallbackMetadataStore(failingMetadataStore{err: errors.New("relation \"table_metadata\" does not exist")}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := store.UpsertDescription(ctx, "orders", "order lines"); err != nil {
		t.Fatalf("UpsertDescription() error = %v", err)
	}
	if err := store.UpdateDescription(ctx, "orders", "updated"); err != nil {
		t.Fatalf("UpdateDescription() error = %v", err)
	}
	list, err := store.ListDescriptions(ctx)
	if err != nil {
		t.Fatalf("ListDescriptions() error = %v", err)
	}
	if len(list) != 1 || list[0].Description != "updated" {
		t.Fatalf("ListDescriptions() = %#v", list)
	}
	deleted, err := store.DeleteDescription(ctx, "orders")
	if err != nil || !deleted {
		t.Fatalf("DeleteDescription() = %v, %v", deleted, err)
	}
}

func TestFallbackMetadataStorePropagatesNotFound(t *testing.T) {
	store := NewFallbackMetadataStore(failingMetadataStore{err: ErrNotFound}, nil)
	if err := store.UpdateDescription(context.Background(), "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateDescription() error = %v, want ErrNotFound", err)
	}
}
