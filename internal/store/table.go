package store

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/codec"
	"github.com/arkilian/minicql/pkg/types"
)

// noDeletion is the deletion timestamp of something never deleted. Every
// real write timestamp compares greater.
const noDeletion = math.MinInt64

// Cell is a visible column value with its write timestamp.
type Cell struct {
	Value     types.Value
	Timestamp int64
}

// Row is a visible row as returned by reads.
type Row struct {
	PartitionKey []types.Value
	Clustering   []types.Value
	Cells        map[string]Cell
}

// Value returns the named cell value, or null.
func (r *Row) Value(column string) types.Value {
	if c, ok := r.Cells[column]; ok {
		return c.Value
	}
	return types.Null()
}

// CellWrite is one column mutation inside a Write. A tombstone write
// deletes the cell at the write's timestamp.
type CellWrite struct {
	Column    string
	Value     types.Value
	Tombstone bool
}

// Write is an atomic mutation of a single row.
type Write struct {
	PartitionKey []types.Value
	Clustering   []types.Value
	Cells        []CellWrite
	Timestamp    int64
	// RowMarker records row liveness, which keeps a row visible even when
	// it has no regular cells. Set for INSERT, not for UPDATE.
	RowMarker bool
	// RowTombstone deletes the whole row at the write's timestamp instead
	// of writing cells.
	RowTombstone bool
}

// Bound is an inclusive or exclusive endpoint of a clustering range.
type Bound struct {
	Value     types.Value
	Inclusive bool
}

// ClusteringRange restricts a read to rows whose clustering key starts
// with Prefix, optionally bounded on the following column.
type ClusteringRange struct {
	Prefix []types.Value
	Start  *Bound
	End    *Bound
}

// ReadOptions controls row selection and ordering for Read and Scan.
type ReadOptions struct {
	Range    ClusteringRange
	Filter   func(*Row) bool
	Reversed bool
}

type cell struct {
	value     types.Value
	ts        int64
	tombstone bool
}

type row struct {
	ck       []types.Value
	liveness int64
	deletion int64
	cells    map[string]cell
}

type rangeTombstone struct {
	prefix []types.Value
	ts     int64
}

type partition struct {
	mu        sync.Mutex
	key       string
	token     int64
	pk        []types.Value
	rows      []*row
	tombstone int64
	ranges    []rangeTombstone
}

type partitionRef struct {
	token int64
	key   string
}

// TableData holds one table's partitions. The table mutex guards the
// partition map and token index; each partition has its own lock and is
// always acquired after the table lock, never before.
type TableData struct {
	mu         sync.RWMutex
	def        *catalog.Table
	ckDesc     []bool
	partitions map[string]*partition
	order      []partitionRef
}

func newTableData(def *catalog.Table) *TableData {
	td := &TableData{
		def:        def,
		partitions: make(map[string]*partition),
	}
	td.ckDesc = make([]bool, len(def.ClusteringKey))
	for i, c := range def.ClusteringKey {
		td.ckDesc[i] = c.Desc
	}
	return td
}

// Def returns the current table definition.
func (t *TableData) Def() *catalog.Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.def
}

// UpdateDef swaps in a new definition after compatible DDL. The key layout
// never changes, so existing sort order stays valid.
func (t *TableData) UpdateDef(def *catalog.Table) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.def = def
}

// encodePartitionKey builds the canonical byte key and Murmur3 token for a
// partition key tuple.
func (t *TableData) encodePartitionKey(values []types.Value) (string, int64, error) {
	def := t.Def()
	var buf []byte
	for i, v := range values {
		b, err := codec.Encode(v, def.PartitionKey[i].Type)
		if err != nil {
			return "", 0, err
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
		buf = append(buf, b...)
	}
	h1, _ := murmur3.Sum128(buf)
	return string(buf), int64(h1), nil
}

// getOrCreatePartition returns the partition for a key tuple, allocating
// and indexing it on first use.
func (t *TableData) getOrCreatePartition(pk []types.Value) (*partition, error) {
	key, token, err := t.encodePartitionKey(pk)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	p, ok := t.partitions[key]
	t.mu.RUnlock()
	if ok {
		return p, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.partitions[key]; ok {
		return p, nil
	}
	p = &partition{
		key:       key,
		token:     token,
		pk:        append([]types.Value(nil), pk...),
		tombstone: noDeletion,
	}
	t.partitions[key] = p
	ref := partitionRef{token: token, key: key}
	i := sort.Search(len(t.order), func(i int) bool {
		if t.order[i].token != ref.token {
			return t.order[i].token > ref.token
		}
		return t.order[i].key >= ref.key
	})
	t.order = append(t.order, partitionRef{})
	copy(t.order[i+1:], t.order[i:])
	t.order[i] = ref
	return p, nil
}

// lookupPartition returns the partition for a key tuple, or nil.
func (t *TableData) lookupPartition(pk []types.Value) (*partition, error) {
	key, _, err := t.encodePartitionKey(pk)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.partitions[key], nil
}

// compareClustering orders clustering tuples under the table's collation.
func (t *TableData) compareClustering(a, b []types.Value) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		c := a[i].Compare(b[i])
		if c != 0 {
			if i < len(t.ckDesc) && t.ckDesc[i] {
				return -c
			}
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

// findRow locates a row by clustering key within a locked partition,
// inserting a new one at the sorted position when create is set.
func (t *TableData) findRow(p *partition, ck []types.Value, create bool) *row {
	i := sort.Search(len(p.rows), func(i int) bool {
		return t.compareClustering(p.rows[i].ck, ck) >= 0
	})
	if i < len(p.rows) && t.compareClustering(p.rows[i].ck, ck) == 0 {
		return p.rows[i]
	}
	if !create {
		return nil
	}
	r := &row{
		ck:       append([]types.Value(nil), ck...),
		liveness: noDeletion,
		deletion: noDeletion,
		cells:    make(map[string]cell),
	}
	p.rows = append(p.rows, nil)
	copy(p.rows[i+1:], p.rows[i:])
	p.rows[i] = r
	return r
}

// mergeCell applies last-writer-wins cell reconciliation. On equal
// timestamps a tombstone beats a value, and between two values the greater
// one wins so replays converge.
func mergeCell(existing cell, incoming cell) cell {
	if incoming.ts > existing.ts {
		return incoming
	}
	if incoming.ts < existing.ts {
		return existing
	}
	if incoming.tombstone != existing.tombstone {
		if incoming.tombstone {
			return incoming
		}
		return existing
	}
	if incoming.value.Compare(existing.value) > 0 {
		return incoming
	}
	return existing
}

// Apply merges a write into the table. The whole write is applied under
// one partition lock.
func (t *TableData) Apply(w Write) error {
	_, _, err := t.ApplyIf(w, nil)
	return err
}

// ApplyIf evaluates check against the current visible row under the
// partition lock and applies the write only when it returns true. A nil
// check always applies. Returns whether the write was applied and the row
// image the check saw.
func (t *TableData) ApplyIf(w Write, check func(existing *Row) bool) (bool, *Row, error) {
	p, err := t.getOrCreatePartition(w.PartitionKey)
	if err != nil {
		return false, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var existing *Row
	if check != nil {
		if r := t.findRow(p, w.Clustering, false); r != nil {
			existing = t.visibleRow(p, r)
		}
		if !check(existing) {
			return false, existing, nil
		}
	}

	r := t.findRow(p, w.Clustering, true)
	if w.RowTombstone {
		if w.Timestamp > r.deletion {
			r.deletion = w.Timestamp
		}
		return true, existing, nil
	}
	if w.RowMarker && w.Timestamp > r.liveness {
		r.liveness = w.Timestamp
	}
	for _, cw := range w.Cells {
		incoming := cell{value: cw.Value, ts: w.Timestamp, tombstone: cw.Tombstone}
		if old, ok := r.cells[cw.Column]; ok {
			r.cells[cw.Column] = mergeCell(old, incoming)
		} else {
			r.cells[cw.Column] = incoming
		}
	}
	return true, existing, nil
}

// DeleteRow writes a row tombstone.
func (t *TableData) DeleteRow(pk, ck []types.Value, ts int64) error {
	return t.Apply(Write{PartitionKey: pk, Clustering: ck, Timestamp: ts, RowTombstone: true})
}

// DeleteCells writes cell tombstones for the named columns.
func (t *TableData) DeleteCells(pk, ck []types.Value, columns []string, ts int64) error {
	cells := make([]CellWrite, len(columns))
	for i, col := range columns {
		cells[i] = CellWrite{Column: col, Tombstone: true}
	}
	return t.Apply(Write{PartitionKey: pk, Clustering: ck, Cells: cells, Timestamp: ts})
}

// DeletePartition writes a partition tombstone.
func (t *TableData) DeletePartition(pk []types.Value, ts int64) error {
	p, err := t.getOrCreatePartition(pk)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts > p.tombstone {
		p.tombstone = ts
	}
	return nil
}

// DeleteRange writes a clustering-prefix tombstone covering every row whose
// clustering key starts with the prefix.
func (t *TableData) DeleteRange(pk, ckPrefix []types.Value, ts int64) error {
	p, err := t.getOrCreatePartition(pk)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, rt := range p.ranges {
		if tuplesEqual(rt.prefix, ckPrefix) {
			if ts > rt.ts {
				p.ranges[i].ts = ts
			}
			return nil
		}
	}
	p.ranges = append(p.ranges, rangeTombstone{
		prefix: append([]types.Value(nil), ckPrefix...),
		ts:     ts,
	})
	return nil
}

func tuplesEqual(a, b []types.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func prefixMatches(prefix, ck []types.Value) bool {
	if len(prefix) > len(ck) {
		return false
	}
	for i := range prefix {
		if !prefix[i].Equal(ck[i]) {
			return false
		}
	}
	return true
}

// deletionFor returns the effective deletion timestamp shadowing a row:
// the greatest of the partition, row and matching range tombstones.
func (p *partition) deletionFor(r *row) int64 {
	del := p.tombstone
	if r.deletion > del {
		del = r.deletion
	}
	for _, rt := range p.ranges {
		if rt.ts > del && prefixMatches(rt.prefix, r.ck) {
			del = rt.ts
		}
	}
	return del
}

// visibleRow builds the read image of a row, or nil when every cell and
// the row marker are shadowed by tombstones. Caller holds the partition
// lock.
func (t *TableData) visibleRow(p *partition, r *row) *Row {
	del := p.deletionFor(r)
	cells := make(map[string]Cell)
	for name, c := range r.cells {
		if !c.tombstone && c.ts > del {
			cells[name] = Cell{Value: c.value, Timestamp: c.ts}
		}
	}
	if len(cells) == 0 && r.liveness <= del {
		return nil
	}
	return &Row{
		PartitionKey: append([]types.Value(nil), p.pk...),
		Clustering:   append([]types.Value(nil), r.ck...),
		Cells:        cells,
	}
}

// matchesRange checks a clustering tuple against the read range.
func matchesRange(rng ClusteringRange, ck []types.Value) bool {
	if !prefixMatches(rng.Prefix, ck) {
		return false
	}
	next := len(rng.Prefix)
	if (rng.Start != nil || rng.End != nil) && next >= len(ck) {
		return false
	}
	if rng.Start != nil {
		c := ck[next].Compare(rng.Start.Value)
		if c < 0 || (c == 0 && !rng.Start.Inclusive) {
			return false
		}
	}
	if rng.End != nil {
		c := ck[next].Compare(rng.End.Value)
		if c > 0 || (c == 0 && !rng.End.Inclusive) {
			return false
		}
	}
	return true
}

// collectRows materializes the partition's visible rows matching the
// options, in clustering order.
func (t *TableData) collectRows(p *partition, opts ReadOptions, out []*Row) []*Row {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := len(out)
	for _, r := range p.rows {
		if !matchesRange(opts.Range, r.ck) {
			continue
		}
		vr := t.visibleRow(p, r)
		if vr == nil {
			continue
		}
		if opts.Filter != nil && !opts.Filter(vr) {
			continue
		}
		out = append(out, vr)
	}
	if opts.Reversed {
		added := out[start:]
		for i, j := 0, len(added)-1; i < j; i, j = i+1, j-1 {
			added[i], added[j] = added[j], added[i]
		}
	}
	return out
}

// Read returns a restartable iterator over one partition's visible rows in
// clustering order.
func (t *TableData) Read(pk []types.Value, opts ReadOptions) (*Iterator, error) {
	p, err := t.lookupPartition(pk)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &Iterator{}, nil
	}
	return &Iterator{rows: t.collectRows(p, opts, nil)}, nil
}

// Scan returns a restartable iterator over every partition in token order.
func (t *TableData) Scan(opts ReadOptions) *Iterator {
	t.mu.RLock()
	refs := append([]partitionRef(nil), t.order...)
	parts := make([]*partition, len(refs))
	for i, ref := range refs {
		parts[i] = t.partitions[ref.key]
	}
	t.mu.RUnlock()

	var rows []*Row
	for _, p := range parts {
		rows = t.collectRows(p, opts, rows)
	}
	return &Iterator{rows: rows}
}

// Iterator walks a materialized result set. Reset rewinds it to the first
// row.
type Iterator struct {
	rows []*Row
	pos  int
}

// Next returns the next row, or false when exhausted.
func (it *Iterator) Next() (*Row, bool) {
	if it.pos >= len(it.rows) {
		return nil, false
	}
	r := it.rows[it.pos]
	it.pos++
	return r, true
}

// Reset rewinds the iterator.
func (it *Iterator) Reset() {
	it.pos = 0
}

// Len returns the number of rows in the result set.
func (it *Iterator) Len() int {
	return len(it.rows)
}
