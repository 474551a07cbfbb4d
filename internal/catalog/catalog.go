// Package catalog maintains keyspace and table metadata for the engine.
package catalog

import (
	"sort"
	"sync"

	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/pkg/types"
)

// Column is a named, typed table column.
type Column struct {
	Name string
	Type types.ColumnType
}

// ClusteringColumn is a clustering key column with its sort direction.
type ClusteringColumn struct {
	Column
	Desc bool
}

// Index is secondary index metadata. Indexes are recorded for driver
// compatibility but do not change read planning.
type Index struct {
	Name   string
	Column string
}

// ColumnRole identifies how a column participates in the primary key.
type ColumnRole int

const (
	RoleNone ColumnRole = iota
	RolePartitionKey
	RoleClustering
	RoleRegular
)

// Table is an immutable table definition. DDL never mutates a Table in
// place; the catalog swaps in a rebuilt copy so concurrent readers stay
// consistent.
type Table struct {
	Keyspace      string
	Name          string
	PartitionKey  []Column
	ClusteringKey []ClusteringColumn
	Regular       []Column
	Indexes       []Index
}

// Column returns the named column and its key role.
func (t *Table) Column(name string) (Column, ColumnRole) {
	for _, c := range t.PartitionKey {
		if c.Name == name {
			return c, RolePartitionKey
		}
	}
	for _, c := range t.ClusteringKey {
		if c.Name == name {
			return c.Column, RoleClustering
		}
	}
	for _, c := range t.Regular {
		if c.Name == name {
			return c, RoleRegular
		}
	}
	return Column{}, RoleNone
}

// AllColumns returns every column in metadata order: partition key,
// clustering key, then regular columns sorted by name.
func (t *Table) AllColumns() []Column {
	out := make([]Column, 0, len(t.PartitionKey)+len(t.ClusteringKey)+len(t.Regular))
	out = append(out, t.PartitionKey...)
	for _, c := range t.ClusteringKey {
		out = append(out, c.Column)
	}
	regular := append([]Column(nil), t.Regular...)
	sort.Slice(regular, func(i, j int) bool { return regular[i].Name < regular[j].Name })
	return append(out, regular...)
}

// PartitionKeyNames returns the partition key column names in order.
func (t *Table) PartitionKeyNames() []string {
	names := make([]string, len(t.PartitionKey))
	for i, c := range t.PartitionKey {
		names[i] = c.Name
	}
	return names
}

// ClusteringKeyNames returns the clustering key column names in order.
func (t *Table) ClusteringKeyNames() []string {
	names := make([]string, len(t.ClusteringKey))
	for i, c := range t.ClusteringKey {
		names[i] = c.Name
	}
	return names
}

// clone returns a deep enough copy for copy-on-write column changes.
func (t *Table) clone() *Table {
	c := *t
	c.PartitionKey = append([]Column(nil), t.PartitionKey...)
	c.ClusteringKey = append([]ClusteringColumn(nil), t.ClusteringKey...)
	c.Regular = append([]Column(nil), t.Regular...)
	c.Indexes = append([]Index(nil), t.Indexes...)
	return &c
}

// Keyspace is a named collection of tables. Replication options are stored
// for introspection but have no effect on a single node.
type Keyspace struct {
	Name          string
	Replication   map[string]string
	DurableWrites bool
	tables        map[string]*Table
}

// Table returns the named table, or nil.
func (k *Keyspace) Table(name string) *Table {
	return k.tables[name]
}

// Tables returns the keyspace's tables sorted by name.
func (k *Keyspace) Tables() []*Table {
	out := make([]*Table, 0, len(k.tables))
	for _, t := range k.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Catalog is the schema registry. DDL takes the write lock; lookups take
// the read lock.
type Catalog struct {
	mu        sync.RWMutex
	keyspaces map[string]*Keyspace
}

// New creates a catalog pre-populated with the system keyspaces.
func New() *Catalog {
	c := &Catalog{keyspaces: make(map[string]*Keyspace)}
	installSystemKeyspaces(c)
	return c
}

// IsSystemKeyspace reports whether the named keyspace is engine-managed
// and therefore closed to user DDL.
func IsSystemKeyspace(name string) bool {
	return name == "system" || name == "system_schema"
}

// Keyspace returns the named keyspace, or nil.
func (c *Catalog) Keyspace(name string) *Keyspace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keyspaces[name]
}

// Keyspaces returns all keyspaces sorted by name.
func (c *Catalog) Keyspaces() []*Keyspace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Keyspace, 0, len(c.keyspaces))
	for _, k := range c.keyspaces {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns the named table or a schema error naming what is missing.
func (c *Catalog) Resolve(keyspace, table string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ks, ok := c.keyspaces[keyspace]
	if !ok {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownKeyspace,
			"keyspace %s does not exist", keyspace)
	}
	t, ok := ks.tables[table]
	if !ok {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownTable,
			"table %s.%s does not exist", keyspace, table)
	}
	return t, nil
}

// CreateKeyspace registers a keyspace. Returns false without error when the
// keyspace exists and ifNotExists is set.
func (c *Catalog) CreateKeyspace(name string, replication map[string]string, durableWrites, ifNotExists bool) (bool, error) {
	if IsSystemKeyspace(name) {
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
			"keyspace %s is reserved", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keyspaces[name]; ok {
		if ifNotExists {
			return false, nil
		}
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeAlreadyExists,
			"keyspace %s already exists", name)
	}
	c.keyspaces[name] = &Keyspace{
		Name:          name,
		Replication:   replication,
		DurableWrites: durableWrites,
		tables:        make(map[string]*Table),
	}
	return true, nil
}

// DropKeyspace removes a keyspace and all of its tables. Returns the
// dropped tables so the caller can release their storage.
func (c *Catalog) DropKeyspace(name string, ifExists bool) ([]*Table, bool, error) {
	if IsSystemKeyspace(name) {
		return nil, false, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
			"keyspace %s is reserved", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ks, ok := c.keyspaces[name]
	if !ok {
		if ifExists {
			return nil, false, nil
		}
		return nil, false, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownKeyspace,
			"keyspace %s does not exist", name)
	}
	dropped := make([]*Table, 0, len(ks.tables))
	for _, t := range ks.tables {
		dropped = append(dropped, t)
	}
	delete(c.keyspaces, name)
	return dropped, true, nil
}

// CreateTable validates and registers a table definition.
func (c *Catalog) CreateTable(t *Table, ifNotExists bool) (bool, error) {
	if IsSystemKeyspace(t.Keyspace) {
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
			"keyspace %s is reserved", t.Keyspace)
	}
	if err := validateTable(t); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ks, ok := c.keyspaces[t.Keyspace]
	if !ok {
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownKeyspace,
			"keyspace %s does not exist", t.Keyspace)
	}
	if _, ok := ks.tables[t.Name]; ok {
		if ifNotExists {
			return false, nil
		}
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeAlreadyExists,
			"table %s.%s already exists", t.Keyspace, t.Name)
	}
	ks.tables[t.Name] = t
	return true, nil
}

// DropTable removes a table. Returns false without error when the table is
// absent and ifExists is set.
func (c *Catalog) DropTable(keyspace, name string, ifExists bool) (bool, error) {
	if IsSystemKeyspace(keyspace) {
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
			"keyspace %s is reserved", keyspace)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ks, ok := c.keyspaces[keyspace]
	if !ok {
		if ifExists {
			return false, nil
		}
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownKeyspace,
			"keyspace %s does not exist", keyspace)
	}
	if _, ok := ks.tables[name]; !ok {
		if ifExists {
			return false, nil
		}
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownTable,
			"table %s.%s does not exist", keyspace, name)
	}
	delete(ks.tables, name)
	return true, nil
}

// AddColumn adds a regular column to an existing table.
func (c *Catalog) AddColumn(keyspace, table string, col Column) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.lookupForDDL(keyspace, table)
	if err != nil {
		return nil, err
	}
	if _, role := t.Column(col.Name); role != RoleNone {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeAlreadyExists,
			"column %s already exists in %s.%s", col.Name, keyspace, table)
	}
	next := t.clone()
	next.Regular = append(next.Regular, col)
	c.keyspaces[keyspace].tables[table] = next
	return next, nil
}

// DropColumn removes a regular column. Key columns cannot be dropped.
func (c *Catalog) DropColumn(keyspace, table, name string) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.lookupForDDL(keyspace, table)
	if err != nil {
		return nil, err
	}
	_, role := t.Column(name)
	switch role {
	case RoleNone:
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
			"column %s does not exist in %s.%s", name, keyspace, table)
	case RolePartitionKey, RoleClustering:
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeIncompatibleDDL,
			"cannot drop key column %s from %s.%s", name, keyspace, table)
	}
	next := t.clone()
	for i, col := range next.Regular {
		if col.Name == name {
			next.Regular = append(next.Regular[:i], next.Regular[i+1:]...)
			break
		}
	}
	c.keyspaces[keyspace].tables[table] = next
	return next, nil
}

// CreateIndex records index metadata on a table.
func (c *Catalog) CreateIndex(keyspace, table string, idx Index, ifNotExists bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.lookupForDDL(keyspace, table)
	if err != nil {
		return false, err
	}
	if _, role := t.Column(idx.Column); role == RoleNone {
		return false, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
			"column %s does not exist in %s.%s", idx.Column, keyspace, table)
	}
	for _, existing := range t.Indexes {
		if existing.Name == idx.Name {
			if ifNotExists {
				return false, nil
			}
			return false, errors.Newf(errors.ErrCategorySchema, errors.CodeAlreadyExists,
				"index %s already exists on %s.%s", idx.Name, keyspace, table)
		}
	}
	next := t.clone()
	next.Indexes = append(next.Indexes, idx)
	c.keyspaces[keyspace].tables[table] = next
	return true, nil
}

// lookupForDDL resolves a user table under the already-held write lock.
func (c *Catalog) lookupForDDL(keyspace, table string) (*Table, error) {
	if IsSystemKeyspace(keyspace) {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
			"keyspace %s is reserved", keyspace)
	}
	ks, ok := c.keyspaces[keyspace]
	if !ok {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownKeyspace,
			"keyspace %s does not exist", keyspace)
	}
	t, ok := ks.tables[table]
	if !ok {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownTable,
			"table %s.%s does not exist", keyspace, table)
	}
	return t, nil
}

// validateTable enforces table definition invariants.
func validateTable(t *Table) error {
	if len(t.PartitionKey) == 0 {
		return errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
			"table %s.%s has no partition key", t.Keyspace, t.Name)
	}
	seen := make(map[string]bool)
	checkName := func(name string) error {
		if name == "" {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"table %s.%s has an unnamed column", t.Keyspace, t.Name)
		}
		if seen[name] {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"duplicate column %s in %s.%s", name, t.Keyspace, t.Name)
		}
		seen[name] = true
		return nil
	}
	for _, c := range t.PartitionKey {
		if err := checkName(c.Name); err != nil {
			return err
		}
		if c.Type.Collection() {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"partition key column %s cannot be a collection", c.Name)
		}
	}
	for _, c := range t.ClusteringKey {
		if err := checkName(c.Name); err != nil {
			return err
		}
		if c.Type.Collection() {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"clustering key column %s cannot be a collection", c.Name)
		}
	}
	for _, c := range t.Regular {
		if err := checkName(c.Name); err != nil {
			return err
		}
	}
	return nil
}
