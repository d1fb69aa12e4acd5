package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryMetadataStore is a process-local MetadataStore.
type MemoryMetadataStore struct {
	mu     sync.Mutex
	now    func() time.Time
	tables map[string]TableDescription
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{now: time.Now, tables: map[string]TableDescription{}}
}

func (m *MemoryMetadataStore) ListDescriptions(context.Context) ([]TableDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TableDescription, 0, len(m.tables))
	for _, description := range m.tables {
		out = append(out, description)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

func (m *MemoryMetadataStore) UpsertDescription(_ context.Context, table, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = TableDescription{TableName: table, Description: description, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *MemoryMetadataStore) UpdateDescription(_ context.Context, table, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		return ErrNotFound
	}
	m.tables[table] = TableDescription{TableName: table, Description: description, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *MemoryMetadataStore) DeleteDescription(_ context.Context, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[table]
	delete(m.tables, table)
	return ok, nil
}

// FallbackMetadataStore writes through to Primary and a memory copy, and
// serves from the memory copy whenever Primary fails.
type FallbackMetadataStore struct {
	Primary  MetadataStore
	Fallback *MemoryMetadataStore
	Logger   *slog.Logger
}

func NewFallbackMetadataStore(primary MetadataStore, logger *slog.Logger) *FallbackMetadataStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackMetadataStore{Primary: primary, Fallback: NewMemoryMetadataStore(), Logger: logger}
}

func (f *FallbackMetadataStore) ListDescriptions(ctx context.Context) ([]TableDescription, error) {
	out, err := f.Primary.ListDescriptions(ctx)
	if err == nil {
		return out, nil
	}
	f.degraded(ctx, "list", err)
	return f.Fallback.ListDescriptions(ctx)
}

func (f *FallbackMetadataStore) UpsertDescription(ctx context.Context, table, description string) error {
	if err := f.Primary.UpsertDescription(ctx, table, description); err != nil {
		f.degraded(ctx, "upsert", err)
	}
	return f.Fallback.UpsertDescription(ctx, table, description)
}

func (f *FallbackMetadataStore) UpdateDescription(ctx context.Context, table, description string) error {
	err := f.Primary.UpdateDescription(ctx, table, description)
	switch {
	case err == nil:
		_ = f.Fallback.UpsertDescription(ctx, table, description)
		return nil
	case errors.Is(err, ErrNotFound):
		return err
	default:
		f.degraded(ctx, "update", err)
		return f.Fallback.UpdateDescription(ctx, table, description)
	}
}

func (f *FallbackMetadataStore) DeleteDescription(ctx context.Context, table string) (bool, error) {
	deleted, err := f.Primary.DeleteDescription(ctx, table)
	if err != nil {
		f.degraded(ctx, "delete", err)
	}
	localDeleted, _ := f.Fallback.DeleteDescription(ctx, table)
	return deleted || localDeleted, nil
}

func (f *FallbackMetadataStore) degraded(ctx context.Context, op string, err error) {
	f.Logger.WarnContext(ctx, "table metadata store unavailable, using in-memory copy",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}
