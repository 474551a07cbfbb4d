// Package snapshot renders the schema catalog and storage contents as
// stable, human-diffable YAML for comparison across test runs.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/store"
	"github.com/arkilian/minicql/pkg/types"
)

// Snapshot is the serializable view of engine state. System keyspaces are
// excluded: they carry per-process identifiers such as the schema version
// that would defeat cross-run comparison.
type Snapshot struct {
	Keyspaces []Keyspace `yaml:"keyspaces"`
}

// Keyspace mirrors one user keyspace and its tables.
type Keyspace struct {
	Name          string   `yaml:"name"`
	Replication   []Option `yaml:"replication,omitempty"`
	DurableWrites bool     `yaml:"durable_writes"`
	Tables        []Table  `yaml:"tables,omitempty"`
}

// Option is one replication option, kept as a sorted list so marshaling
// order never depends on map iteration.
type Option struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Table holds schema plus data, partitions in token order.
type Table struct {
	Name          string      `yaml:"name"`
	PartitionKey  []ColumnDef `yaml:"partition_key"`
	ClusteringKey []ColumnDef `yaml:"clustering_key,omitempty"`
	Columns       []ColumnDef `yaml:"columns,omitempty"`
	Indexes       []IndexDef  `yaml:"indexes,omitempty"`
	Partitions    []Partition `yaml:"partitions,omitempty"`
}

// ColumnDef is a column with its declared type. Order is set only for
// clustering columns.
type ColumnDef struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Order string `yaml:"order,omitempty"`
}

// IndexDef is a secondary index entry.
type IndexDef struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column"`
}

// Partition is one partition's visible rows in clustering order.
type Partition struct {
	Key  []string `yaml:"key"`
	Rows []Row    `yaml:"rows,omitempty"`
}

// Row is a visible row. Cell values are rendered as CQL literals so the
// document reads like the data the client would see.
type Row struct {
	Clustering []string `yaml:"clustering,omitempty,flow"`
	Cells      []Cell   `yaml:"cells,omitempty"`
}

// Cell is one live column value.
type Cell struct {
	Column string `yaml:"column"`
	Value  string `yaml:"value"`
}

// Capture walks the catalog and store and builds a snapshot. Only visible
// data appears: tombstones and write timestamps are resolution machinery,
// not client-observable state.
func Capture(cat *catalog.Catalog, st *store.Store) (*Snapshot, error) {
	snap := &Snapshot{}
	for _, ks := range cat.Keyspaces() {
		if catalog.IsSystemKeyspace(ks.Name) {
			continue
		}
		out := Keyspace{
			Name:          ks.Name,
			Replication:   sortedOptions(ks.Replication),
			DurableWrites: ks.DurableWrites,
		}
		for _, def := range ks.Tables() {
			t, err := captureTable(st, def)
			if err != nil {
				return nil, err
			}
			out.Tables = append(out.Tables, t)
		}
		snap.Keyspaces = append(snap.Keyspaces, out)
	}
	return snap, nil
}

func captureTable(st *store.Store, def *catalog.Table) (Table, error) {
	t := Table{Name: def.Name}
	for _, c := range def.PartitionKey {
		t.PartitionKey = append(t.PartitionKey, ColumnDef{Name: c.Name, Type: c.Type.String()})
	}
	for _, c := range def.ClusteringKey {
		order := "asc"
		if c.Desc {
			order = "desc"
		}
		t.ClusteringKey = append(t.ClusteringKey, ColumnDef{Name: c.Name, Type: c.Type.String(), Order: order})
	}
	for _, c := range def.Regular {
		t.Columns = append(t.Columns, ColumnDef{Name: c.Name, Type: c.Type.String()})
	}
	for _, idx := range def.Indexes {
		t.Indexes = append(t.Indexes, IndexDef{Name: idx.Name, Column: idx.Column})
	}

	data, err := st.Table(def.Keyspace, def.Name)
	if err != nil {
		return Table{}, fmt.Errorf("snapshot %s.%s: %w", def.Keyspace, def.Name, err)
	}
	it := data.Scan(store.ReadOptions{})
	var cur *Partition
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		key := renderValues(r.PartitionKey)
		if cur == nil || !equalKeys(cur.Key, key) {
			t.Partitions = append(t.Partitions, Partition{Key: key})
			cur = &t.Partitions[len(t.Partitions)-1]
		}
		cur.Rows = append(cur.Rows, Row{
			Clustering: renderValues(r.Clustering),
			Cells:      renderCells(r),
		})
	}
	return t, nil
}

func renderValues(vals []types.Value) []string {
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

func renderCells(r *store.Row) []Cell {
	names := make([]string, 0, len(r.Cells))
	for name := range r.Cells {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Cell, 0, len(names))
	for _, name := range names {
		out = append(out, Cell{Column: name, Value: r.Cells[name].Value.String()})
	}
	return out
}

func sortedOptions(m map[string]string) []Option {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Option, 0, len(keys))
	for _, k := range keys {
		out = append(out, Option{Name: k, Value: m[k]})
	}
	return out
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Marshal renders the snapshot as YAML.
func Marshal(s *Snapshot) ([]byte, error) {
	return yaml.Marshal(s)
}

// WriteFile captures state and writes it to path, creating parent
// directories as needed.
func WriteFile(cat *catalog.Catalog, st *store.Store, path string) error {
	snap, err := Capture(cat, st)
	if err != nil {
		return err
	}
	doc, err := Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, doc, 0o644)
}
