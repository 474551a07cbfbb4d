// Package exec plans and executes parsed CQL statements against the schema
// catalog and the row store.
package exec

import (
	"github.com/arkilian/minicql/pkg/types"
)

// Result is the outcome of executing one statement. The wire layer maps
// each concrete type onto its protocol RESULT kind.
type Result interface {
	resultNode()
}

// ResultColumn describes one column of a result set or one bind variable.
type ResultColumn struct {
	Keyspace string
	Table    string
	Name     string
	Type     types.ColumnType
}

// VoidResult is an acknowledgement with no payload.
type VoidResult struct{}

func (*VoidResult) resultNode() {}

// RowsResult is a result set. Every row has one value per column, with
// null marking absent cells.
type RowsResult struct {
	Columns []ResultColumn
	Rows    [][]types.Value
}

func (*RowsResult) resultNode() {}

// SetKeyspaceResult reports a successful USE.
type SetKeyspaceResult struct {
	Keyspace string
}

func (*SetKeyspaceResult) resultNode() {}

// SchemaChangeResult reports a DDL change.
type SchemaChangeResult struct {
	ChangeType string // "CREATED", "UPDATED" or "DROPPED"
	Target     string // "KEYSPACE" or "TABLE"
	Keyspace   string
	Object     string // Table name; empty for keyspace targets
}

func (*SchemaChangeResult) resultNode() {}

// PreparedStatementResult carries a prepared statement's id and metadata.
type PreparedStatementResult struct {
	ID        []byte
	Variables []ResultColumn
	PkIndices []uint16
	// Columns holds result-set metadata for SELECT statements, nil
	// otherwise.
	Columns []ResultColumn
}

func (*PreparedStatementResult) resultNode() {}
