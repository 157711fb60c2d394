// Package meta caches per-table schema (TbMeta) for each engine a
// task touches, resolving column types for the extractors and query
// builder. The cache uses copy-on-write
// snapshot-swap semantics rather than per-entry locks: readers see a
// consistent map, and the only writers -- a cache miss in Get and an
// Invalidate after observed DDL -- rebuild+swap the whole map
// atomically.
package meta

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/replibridge/replibridge/pkg/errs"
)

// ColType describes one column's engine-native type and key
// membership, the unit TbMeta.ColTypeMap is keyed by column name.
type ColType struct {
	Name         string
	NativeType   string // e.g. "int(11)", "varchar(255)", "numeric(10,2)"
	Nullable     bool
	IsPrimaryKey bool
	IsUniqueKey  bool
	Charset      string
	Collation    string
	AutoInc      bool
}

// TbMeta is the per-table schema cache entry: ordered column list,
// primary/unique key sets, per-column type descriptor, charset and
// collation.
type TbMeta struct {
	Schema  string
	Table   string
	Columns []string // ordered, as returned by the engine's catalog
	ColType map[string]ColType

	// KeyColumns is the primary key's columns in ordinal position, or
	// the first unique key's columns if there is no primary key, or
	// nil if the table has neither (snapshot falls back to offset
	// pagination in that case).
	KeyColumns []string
	KeyIsAutoInc bool

	Charset   string
	Collation string
}

// HasKey reports whether the table has a primary or unique key to
// page/route on.
func (m *TbMeta) HasKey() bool { return len(m.KeyColumns) > 0 }

type dbTb struct{ schema, table string }

// Fetcher is the engine-specific half of a MetaManager: it knows how
// to read one engine's information_schema equivalents.
type Fetcher interface {
	FetchTbMeta(ctx context.Context, db *sql.DB, schema, table string) (*TbMeta, error)
}

// Manager resolves and caches TbMeta for a single (db, Fetcher) pair.
// It is safe for concurrent use; the cache map itself is never
// mutated in place, only swapped.
type Manager struct {
	db      *sql.DB
	fetcher Fetcher

	// mu only serializes the read-fetch-rebuild-swap sequence on a
	// cache miss, so concurrent misses for the same key don't fetch
	// twice; readers never take it.
	mu    sync.Mutex
	cache atomic.Value // map[dbTb]*TbMeta
}

func NewManager(db *sql.DB, fetcher Fetcher) *Manager {
	m := &Manager{db: db, fetcher: fetcher}
	m.cache.Store(map[dbTb]*TbMeta{})
	return m
}

func (m *Manager) snapshot() map[dbTb]*TbMeta {
	return m.cache.Load().(map[dbTb]*TbMeta)
}

// Get resolves TbMeta for (schema, table), fetching and caching on
// first use.
func (m *Manager) Get(ctx context.Context, schema, table string) (*TbMeta, error) {
	key := dbTb{schema, table}
	if tm, ok := m.snapshot()[key]; ok {
		return tm, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-check under the fetch lock: another goroutine may have
	// populated it while we waited.
	if tm, ok := m.snapshot()[key]; ok {
		return tm, nil
	}
	tm, err := m.fetcher.FetchTbMeta(ctx, m.db, schema, table)
	if err != nil {
		return nil, errs.New(errs.Schema, "meta.Get", err)
	}
	m.swap(func(next map[dbTb]*TbMeta) {
		next[key] = tm
	})
	return tm, nil
}

// Invalidate evicts a cached entry, e.g. after observing a DDL event
// for (schema, table) on the CDC stream, per the schema refresh
// policy): "on observed DDL for (db, tb), evict the cache entry before
// processing the next row".
func (m *Manager) Invalidate(schema, table string) {
	key := dbTb{schema, table}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshot()[key]; !ok {
		return
	}
	m.swap(func(next map[dbTb]*TbMeta) {
		delete(next, key)
	})
}

// swap must be called with mu held: it copies the current snapshot,
// applies mutate, and atomically installs the result.
func (m *Manager) swap(mutate func(next map[dbTb]*TbMeta)) {
	cur := m.snapshot()
	next := make(map[dbTb]*TbMeta, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	mutate(next)
	m.cache.Store(next)
}
