package exec

import (
	"net"
	"sort"

	"github.com/google/uuid"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/store"
	"github.com/arkilian/minicql/pkg/types"
)

// Identification strings reported through system.local. Drivers inspect
// these during connection setup.
const (
	partitionerName = "org.apache.cassandra.dht.Murmur3Partitioner"
	cqlVersion      = "3.4.4"
	protocolVersion = "4"
	releaseVersion  = "3.11.4"
	dataCenterName  = "datacenter1"
	rackName        = "rack1"
)

// seedSystemTables allocates storage for every table the catalog starts
// with, writes the system.local row and mirrors the initial schema into
// system_schema.
func (e *Executor) seedSystemTables() error {
	for _, ks := range e.catalog.Keyspaces() {
		for _, t := range ks.Tables() {
			e.store.CreateTable(t)
		}
	}
	if err := e.writeLocalRow(); err != nil {
		return err
	}
	for _, ks := range e.catalog.Keyspaces() {
		if err := e.syncKeyspaceRow(ks); err != nil {
			return err
		}
		for _, t := range ks.Tables() {
			if err := e.syncTableRows(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Executor) writeLocalRow() error {
	td, err := e.store.Table("system", "local")
	if err != nil {
		return err
	}
	addr := net.ParseIP(e.node.Address)
	if addr == nil {
		addr = net.IPv4(127, 0, 0, 1)
	}
	schemaVersion := [16]byte(uuid.New())
	cells := []store.CellWrite{
		{Column: "bootstrapped", Value: types.NewText("COMPLETED")},
		{Column: "broadcast_address", Value: types.NewInet(addr)},
		{Column: "cluster_name", Value: types.NewText(e.node.ClusterName)},
		{Column: "cql_version", Value: types.NewText(cqlVersion)},
		{Column: "data_center", Value: types.NewText(dataCenterName)},
		{Column: "gossip_generation", Value: types.NewInt(1)},
		{Column: "host_id", Value: types.NewUuid(e.node.HostID)},
		{Column: "listen_address", Value: types.NewInet(addr)},
		{Column: "native_protocol_version", Value: types.NewText(protocolVersion)},
		{Column: "partitioner", Value: types.NewText(partitionerName)},
		{Column: "rack", Value: types.NewText(rackName)},
		{Column: "release_version", Value: types.NewText(releaseVersion)},
		{Column: "rpc_address", Value: types.NewInet(addr)},
		{Column: "schema_version", Value: types.NewUuid(schemaVersion)},
		{Column: "tokens", Value: types.NewSet([]types.Value{types.NewText("-9223372036854775808")})},
	}
	return td.Apply(store.Write{
		PartitionKey: []types.Value{types.NewText("local")},
		Cells:        cells,
		Timestamp:    e.clock.Next(),
		RowMarker:    true,
	})
}

// bumpSchemaVersion rewrites system.local's schema_version after a DDL
// change so drivers notice the schema moved.
func (e *Executor) bumpSchemaVersion() error {
	td, err := e.store.Table("system", "local")
	if err != nil {
		return err
	}
	return td.Apply(store.Write{
		PartitionKey: []types.Value{types.NewText("local")},
		Cells: []store.CellWrite{
			{Column: "schema_version", Value: types.NewUuid([16]byte(uuid.New()))},
		},
		Timestamp: e.clock.Next(),
	})
}

func replicationValue(replication map[string]string) types.Value {
	keys := make([]string, 0, len(replication))
	for k := range replication {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]types.Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, types.Pair{Key: types.NewText(k), Val: types.NewText(replication[k])})
	}
	return types.NewMap(pairs)
}

func (e *Executor) syncKeyspaceRow(ks *catalog.Keyspace) error {
	td, err := e.store.Table("system_schema", "keyspaces")
	if err != nil {
		return err
	}
	return td.Apply(store.Write{
		PartitionKey: []types.Value{types.NewText(ks.Name)},
		Cells: []store.CellWrite{
			{Column: "durable_writes", Value: types.NewBoolean(ks.DurableWrites)},
			{Column: "replication", Value: replicationValue(ks.Replication)},
		},
		Timestamp: e.clock.Next(),
		RowMarker: true,
	})
}

func (e *Executor) removeKeyspaceRows(name string) error {
	keyspaces, err := e.store.Table("system_schema", "keyspaces")
	if err != nil {
		return err
	}
	if err := keyspaces.DeleteRow([]types.Value{types.NewText(name)}, nil, e.clock.Next()); err != nil {
		return err
	}
	for _, table := range []string{"tables", "columns", "indexes"} {
		td, err := e.store.Table("system_schema", table)
		if err != nil {
			return err
		}
		if err := td.DeletePartition([]types.Value{types.NewText(name)}, e.clock.Next()); err != nil {
			return err
		}
	}
	return nil
}

// tableID derives a stable identifier from the qualified table name so
// repeated DDL round trips report the same id.
func tableID(keyspace, name string) types.Value {
	u := uuid.NewMD5(uuid.NameSpaceOID, []byte(keyspace+"."+name))
	return types.NewUuid([16]byte(u))
}

// syncTableRows mirrors one table definition into system_schema.tables
// and system_schema.columns, replacing any prior column rows.
func (e *Executor) syncTableRows(t *catalog.Table) error {
	tables, err := e.store.Table("system_schema", "tables")
	if err != nil {
		return err
	}
	ksName := types.NewText(t.Keyspace)
	tblName := types.NewText(t.Name)
	err = tables.Apply(store.Write{
		PartitionKey: []types.Value{ksName},
		Clustering:   []types.Value{tblName},
		Cells: []store.CellWrite{
			{Column: "bloom_filter_fp_chance", Value: types.NewDouble(0.01)},
			{Column: "comment", Value: types.NewText("")},
			{Column: "compaction", Value: types.NewMap(nil)},
			{Column: "compression", Value: types.NewMap(nil)},
			{Column: "default_time_to_live", Value: types.NewInt(0)},
			{Column: "flags", Value: types.NewSet([]types.Value{types.NewText("compound")})},
			{Column: "gc_grace_seconds", Value: types.NewInt(864000)},
			{Column: "id", Value: tableID(t.Keyspace, t.Name)},
			{Column: "speculative_retry", Value: types.NewText("99PERCENTILE")},
		},
		Timestamp: e.clock.Next(),
		RowMarker: true,
	})
	if err != nil {
		return err
	}

	columns, err := e.store.Table("system_schema", "columns")
	if err != nil {
		return err
	}
	// Drop stale column rows first so ALTER TABLE DROP is reflected.
	if err := columns.DeleteRange([]types.Value{ksName}, []types.Value{tblName}, e.clock.Next()); err != nil {
		return err
	}
	writeColumn := func(c catalog.Column, kind string, position int, order string) error {
		return columns.Apply(store.Write{
			PartitionKey: []types.Value{ksName},
			Clustering:   []types.Value{tblName, types.NewText(c.Name)},
			Cells: []store.CellWrite{
				{Column: "clustering_order", Value: types.NewText(order)},
				{Column: "column_name_bytes", Value: types.NewBlob([]byte(c.Name))},
				{Column: "kind", Value: types.NewText(kind)},
				{Column: "position", Value: types.NewInt(int32(position))},
				{Column: "type", Value: types.NewText(c.Type.String())},
			},
			Timestamp: e.clock.Next(),
			RowMarker: true,
		})
	}
	for i, c := range t.PartitionKey {
		if err := writeColumn(c, "partition_key", i, "none"); err != nil {
			return err
		}
	}
	for i, c := range t.ClusteringKey {
		order := "asc"
		if c.Desc {
			order = "desc"
		}
		if err := writeColumn(c.Column, "clustering", i, order); err != nil {
			return err
		}
	}
	for _, c := range t.Regular {
		if err := writeColumn(c, "regular", -1, "none"); err != nil {
			return err
		}
	}
	return e.syncIndexRows(t)
}

func (e *Executor) syncIndexRows(t *catalog.Table) error {
	indexes, err := e.store.Table("system_schema", "indexes")
	if err != nil {
		return err
	}
	for _, idx := range t.Indexes {
		err := indexes.Apply(store.Write{
			PartitionKey: []types.Value{types.NewText(t.Keyspace)},
			Clustering:   []types.Value{types.NewText(t.Name), types.NewText(idx.Name)},
			Cells: []store.CellWrite{
				{Column: "kind", Value: types.NewText("COMPOSITES")},
				{Column: "options", Value: types.NewMap([]types.Pair{
					{Key: types.NewText("target"), Val: types.NewText(idx.Column)},
				})},
			},
			Timestamp: e.clock.Next(),
			RowMarker: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) removeTableRows(keyspace, name string) error {
	tables, err := e.store.Table("system_schema", "tables")
	if err != nil {
		return err
	}
	ksName := types.NewText(keyspace)
	tblName := types.NewText(name)
	if err := tables.DeleteRow([]types.Value{ksName}, []types.Value{tblName}, e.clock.Next()); err != nil {
		return err
	}
	for _, table := range []string{"columns", "indexes"} {
		td, err := e.store.Table("system_schema", table)
		if err != nil {
			return err
		}
		if err := td.DeleteRange([]types.Value{ksName}, []types.Value{tblName}, e.clock.Next()); err != nil {
			return err
		}
	}
	return nil
}
