// Package store implements the in-memory partitioned row store. Tables hold
// partitions in Murmur3 token order; partitions hold rows sorted by
// clustering key under the table's collation. Cells carry write timestamps
// and merge last-writer-wins; deletes are tombstones that shadow older
// writes without discarding them.
package store

import (
	"sort"
	"sync"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/errors"
)

// Store owns the table data for every keyspace.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*TableData
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*TableData)}
}

func tableKey(keyspace, name string) string {
	return keyspace + "." + name
}

// CreateTable allocates storage for a table definition.
func (s *Store) CreateTable(def *catalog.Table) *TableData {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tableKey(def.Keyspace, def.Name)
	if existing, ok := s.tables[key]; ok {
		return existing
	}
	td := newTableData(def)
	s.tables[key] = td
	return td
}

// DropTable releases a table's storage.
func (s *Store) DropTable(keyspace, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, tableKey(keyspace, name))
}

// Table returns the named table's data, or an error if storage was never
// allocated for it.
func (s *Store) Table(keyspace, name string) (*TableData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	td, ok := s.tables[tableKey(keyspace, name)]
	if !ok {
		return nil, errors.Newf(errors.ErrCategoryInternal, errors.CodeUnexpected,
			"no storage for table %s.%s", keyspace, name)
	}
	return td, nil
}

// Tables returns all table data sorted by qualified name.
func (s *Store) Tables() []*TableData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.tables))
	for k := range s.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*TableData, len(keys))
	for i, k := range keys {
		out[i] = s.tables[k]
	}
	return out
}
