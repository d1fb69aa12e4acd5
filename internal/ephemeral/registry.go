// Package ephemeral keeps uploaded tables in memory for a limited time so they
// can take part in federated queries next to the persistent store.
package ephemeral

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/ident"
)

// DefaultTTL is the lifetime of an uploaded table.
const DefaultTTL = 30 * time.Minute

const namePrefix = "upload_"

// Table is one registered upload. Rows carry the normalized column names.
type Table struct {
	Name              string
	Rows              dataset.Dataset
	OriginalColumns   []string
	NormalizedColumns []string
	ColumnMap         map[string]string
	Collisions        []string
	SourceLabel       string
	Description       string
	CreatedAt         time.Time
	ExpiresAt         time.Time

	seq uint64
}

// Summary is the listing view of a Table.
type Summary struct {
	Name              string    `json:"table_name"`
	SourceLabel       string    `json:"filename"`
	OriginalColumns   []string  `json:"original_columns"`
	NormalizedColumns []string  `json:"clean_columns"`
	Collisions        []string  `json:"collisions,omitempty"`
	Description       string    `json:"description"`
	RowCount          int       `json:"row_count"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSuffix replaces the random name suffix generator.
func WithSuffix(suffix func() string) Option {
	return func(r *Registry) {
		if suffix != nil {
			r.suffix = suffix
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver registers a callback invoked with the live table count after
// every mutation, including lazy evictions. It runs under the registry lock
// and must not call back into the registry.
func WithObserver(observe func(live int)) Option {
	return func(r *Registry) {
		r.observe = observe
	}
}

// WithEvictionTracking keeps the names of expired tables evicted by reads so
// Sweep can report them. Without a sweeper draining the list it only grows.
func WithEvictionTracking() Option {
	return func(r *Registry) {
		r.trackEvictions = true
	}
}

// Registry is safe for concurrent use. Expired tables are evicted lazily by
// the read that notices them and by Sweep.
type Registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	tables  map[string]*Table
	nextSeq uint64
	evicted []string

	now            func() time.Time
	suffix         func() string
	logger         *slog.Logger
	observe        func(int)
	trackEvictions bool
}

func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		ttl:    ttl,
		tables: map[string]*Table{},
		now:    time.Now,
		suffix: randomSuffix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Add registers data under a freshly generated name and returns that name.
// Column names are normalized in order; names that collide after
// normalization are recorded but not rejected.
func (r *Registry) Add(data dataset.Dataset, sourceLabel, description string) string {
	original := append([]string(nil), data.Columns...)
	normalized := make([]string, len(original))
	columnMap := make(map[string]string, len(original))
	seen := make(map[string]int, len(original))
	var collisions []string
	for i, column := range original {
		clean := ident.Normalize(column)
		normalized[i] = clean
		columnMap[column] = clean
		seen[clean]++
		if seen[clean] == 2 {
			collisions = append(collisions, clean)
		}
	}

	name := namePrefix + ident.SanitizeLabel(sourceLabel) + "_" + r.suffix()

	r.mu.Lock()
	now := r.now()
	r.nextSeq++
	r.tables[name] = &Table{
		Name:              name,
		Rows:              data.WithColumns(normalized),
		OriginalColumns:   original,
		NormalizedColumns: normalized,
		ColumnMap:         columnMap,
		Collisions:        collisions,
		SourceLabel:       sourceLabel,
		Description:       description,
		CreatedAt:         now,
		ExpiresAt:         now.Add(r.ttl),
		seq:               r.nextSeq,
	}
	r.notifyLocked()
	r.mu.Unlock()

	if len(collisions) > 0 {
		r.logger.Warn("column name collision after normalization",
			slog.String("table", name),
			slog.String("source", sourceLabel),
			slog.String("collisions", strings.Join(collisions, ",")),
		)
	}
	return name
}

// Get returns the rows of an unexpired table, with normalized column names.
func (r *Registry) Get(name string) (dataset.Dataset, bool) {
	table, ok := r.lookup(name)
	if !ok {
		return dataset.Dataset{}, false
	}
	return table.Rows, true
}

// ColumnMap returns the original to normalized mapping of an unexpired table,
// or an empty map.
func (r *Registry) ColumnMap(name string) map[string]string {
	table, ok := r.lookup(name)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(table.ColumnMap))
	for k, v := range table.ColumnMap {
		out[k] = v
	}
	return out
}

// Contains reports whether name is registered and unexpired.
func (r *Registry) Contains(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

func (r *Registry) Describe(name string) (Summary, bool) {
	table, ok := r.lookup(name)
	if !ok {
		return Summary{}, false
	}
	return summarize(table), true
}

// List evicts every expired table and summarizes the rest in creation order.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	now := r.now()
	evicted := 0
	live := make([]*Table, 0, len(r.tables))
	for name, table := range r.tables {
		if expired(table, now) {
			r.evictLocked(name)
			evicted++
			continue
		}
		live = append(live, table)
	}
	if evicted > 0 {
		r.notifyLocked()
	}
	r.mu.Unlock()

	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })
	out := make([]Summary, 0, len(live))
	for _, table := range live {
		out = append(out, summarize(table))
	}
	return out
}

// Remove deletes a table and its mapping. It reports whether the table was
// registered, expired or not.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	_, ok := r.tables[name]
	delete(r.tables, name)
	if ok {
		r.notifyLocked()
	}
	r.mu.Unlock()
	return ok
}

// Sweep evicts every expired table and returns the names of all tables
// expired since the previous Sweep, including those evicted lazily when
// eviction tracking is enabled. Names are sorted.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	now := r.now()
	swept := 0
	for name, table := range r.tables {
		if expired(table, now) {
			r.evictLocked(name)
			swept++
		}
	}
	var names []string
	if r.trackEvictions {
		names = r.evicted
		r.evicted = nil
	}
	if swept > 0 {
		r.notifyLocked()
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// Len returns the number of stored tables, including expired ones not yet evicted.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}

func (r *Registry) lookup(name string) (*Table, bool) {
	r.mu.Lock()
	table, ok := r.tables[name]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	if expired(table, r.now()) {
		r.evictLocked(name)
		r.notifyLocked()
		r.mu.Unlock()
		return nil, false
	}
	r.mu.Unlock()
	return table, true
}

func (r *Registry) evictLocked(name string) {
	delete(r.tables, name)
	if r.trackEvictions {
		r.evicted = append(r.evicted, name)
	}
}

func (r *Registry) notifyLocked() {
	if r.observe != nil {
		r.observe(len(r.tables))
	}
}

func expired(table *Table, now time.Time) bool {
	return !now.Before(table.ExpiresAt)
}

func summarize(table *Table) Summary {
	return Summary{
		Name:              table.Name,
		SourceLabel:       table.SourceLabel,
		OriginalColumns:   append([]string(nil), table.OriginalColumns...),
		NormalizedColumns: append([]string(nil), table.NormalizedColumns...),
		Collisions:        append([]string(nil), table.Collisions...),
		Description:       table.Description,
		RowCount:          len(table.Rows.Rows),
		CreatedAt:         table.CreatedAt,
		ExpiresAt:         table.ExpiresAt,
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
