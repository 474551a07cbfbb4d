package catalog

import (
	"github.com/arkilian/minicql/pkg/types"
)

// System table definitions cover what client drivers read during connect
// and schema discovery, not the full set a coordinator would expose.

func text() types.ColumnType    { return types.Scalar(types.KindText) }
func uuidT() types.ColumnType   { return types.Scalar(types.KindUuid) }
func inetT() types.ColumnType   { return types.Scalar(types.KindInet) }
func intT() types.ColumnType    { return types.Scalar(types.KindInt) }
func boolT() types.ColumnType   { return types.Scalar(types.KindBoolean) }
func doubleT() types.ColumnType { return types.Scalar(types.KindDouble) }

func installSystemKeyspaces(c *Catalog) {
	system := &Keyspace{
		Name:          "system",
		Replication:   map[string]string{"class": "LocalStrategy"},
		DurableWrites: true,
		tables:        make(map[string]*Table),
	}
	system.tables["local"] = systemLocalTable()
	system.tables["peers"] = systemPeersTable()

	schema := &Keyspace{
		Name:          "system_schema",
		Replication:   map[string]string{"class": "LocalStrategy"},
		DurableWrites: true,
		tables:        make(map[string]*Table),
	}
	schema.tables["keyspaces"] = schemaKeyspacesTable()
	schema.tables["tables"] = schemaTablesTable()
	schema.tables["columns"] = schemaColumnsTable()
	schema.tables["indexes"] = schemaIndexesTable()

	c.keyspaces["system"] = system
	c.keyspaces["system_schema"] = schema
}

func systemLocalTable() *Table {
	return &Table{
		Keyspace:     "system",
		Name:         "local",
		PartitionKey: []Column{{Name: "key", Type: text()}},
		Regular: []Column{
			{Name: "bootstrapped", Type: text()},
			{Name: "broadcast_address", Type: inetT()},
			{Name: "cluster_name", Type: text()},
			{Name: "cql_version", Type: text()},
			{Name: "data_center", Type: text()},
			{Name: "gossip_generation", Type: intT()},
			{Name: "host_id", Type: uuidT()},
			{Name: "listen_address", Type: inetT()},
			{Name: "native_protocol_version", Type: text()},
			{Name: "partitioner", Type: text()},
			{Name: "rack", Type: text()},
			{Name: "release_version", Type: text()},
			{Name: "rpc_address", Type: inetT()},
			{Name: "schema_version", Type: uuidT()},
			{Name: "tokens", Type: types.SetOf(text())},
		},
	}
}

func systemPeersTable() *Table {
	return &Table{
		Keyspace:     "system",
		Name:         "peers",
		PartitionKey: []Column{{Name: "peer", Type: inetT()}},
		Regular: []Column{
			{Name: "data_center", Type: text()},
			{Name: "host_id", Type: uuidT()},
			{Name: "preferred_ip", Type: inetT()},
			{Name: "rack", Type: text()},
			{Name: "release_version", Type: text()},
			{Name: "rpc_address", Type: inetT()},
			{Name: "schema_version", Type: uuidT()},
			{Name: "tokens", Type: types.SetOf(text())},
		},
	}
}

func schemaKeyspacesTable() *Table {
	return &Table{
		Keyspace:     "system_schema",
		Name:         "keyspaces",
		PartitionKey: []Column{{Name: "keyspace_name", Type: text()}},
		Regular: []Column{
			{Name: "durable_writes", Type: boolT()},
			{Name: "replication", Type: types.MapOf(text(), text())},
		},
	}
}

func schemaTablesTable() *Table {
	return &Table{
		Keyspace:      "system_schema",
		Name:          "tables",
		PartitionKey:  []Column{{Name: "keyspace_name", Type: text()}},
		ClusteringKey: []ClusteringColumn{{Column: Column{Name: "table_name", Type: text()}}},
		Regular: []Column{
			{Name: "bloom_filter_fp_chance", Type: doubleT()},
			{Name: "comment", Type: text()},
			{Name: "compaction", Type: types.MapOf(text(), text())},
			{Name: "compression", Type: types.MapOf(text(), text())},
			{Name: "default_time_to_live", Type: intT()},
			{Name: "flags", Type: types.SetOf(text())},
			{Name: "gc_grace_seconds", Type: intT()},
			{Name: "id", Type: uuidT()},
			{Name: "speculative_retry", Type: text()},
		},
	}
}

func schemaColumnsTable() *Table {
	return &Table{
		Keyspace:     "system_schema",
		Name:         "columns",
		PartitionKey: []Column{{Name: "keyspace_name", Type: text()}},
		ClusteringKey: []ClusteringColumn{
			{Column: Column{Name: "table_name", Type: text()}},
			{Column: Column{Name: "column_name", Type: text()}},
		},
		Regular: []Column{
			{Name: "clustering_order", Type: text()},
			{Name: "column_name_bytes", Type: types.Scalar(types.KindBlob)},
			{Name: "kind", Type: text()},
			{Name: "position", Type: intT()},
			{Name: "type", Type: text()},
		},
	}
}

func schemaIndexesTable() *Table {
	return &Table{
		Keyspace:     "system_schema",
		Name:         "indexes",
		PartitionKey: []Column{{Name: "keyspace_name", Type: text()}},
		ClusteringKey: []ClusteringColumn{
			{Column: Column{Name: "table_name", Type: text()}},
			{Column: Column{Name: "index_name", Type: text()}},
		},
		Regular: []Column{
			{Name: "kind", Type: text()},
			{Name: "options", Type: types.MapOf(text(), text())},
		},
	}
}
