package parser

import (
	"github.com/arkilian/minicql/pkg/types"
)

// Statement is the interface implemented by all CQL statement nodes.
type Statement interface {
	statementNode()
}

// Term is a value position in a DML statement: either a literal or a
// bind marker.
type Term interface {
	termNode()
}

// LiteralKind identifies the syntactic form of a literal.
type LiteralKind int

const (
	LitInteger LiteralKind = iota
	LitFloat
	LitString
	LitBoolean
	LitUuid
	LitBlob
	LitNull
	LitList
	LitSet
	LitMap
	LitTuple
)

// String returns the display name of the literal kind.
func (k LiteralKind) String() string {
	switch k {
	case LitInteger:
		return "integer"
	case LitFloat:
		return "float"
	case LitString:
		return "string"
	case LitBoolean:
		return "boolean"
	case LitUuid:
		return "uuid"
	case LitBlob:
		return "blob"
	case LitNull:
		return "null"
	case LitList:
		return "list"
	case LitSet:
		return "set"
	case LitMap:
		return "map"
	case LitTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Literal is a constant term. Scalar kinds carry their raw text; collection
// kinds carry nested terms.
type Literal struct {
	Kind    LiteralKind
	Text    string     // Raw text for scalar kinds
	Elems   []Term     // Elements for list, set and tuple kinds
	Entries []MapEntry // Entries for the map kind
}

func (*Literal) termNode() {}

// MapEntry is a single key/value pair in a map literal.
type MapEntry struct {
	Key Term
	Val Term
}

// BindMarker is a positional `?` or named `:name` placeholder. Index is the
// marker's appearance order within the statement, starting at zero.
type BindMarker struct {
	Name  string // Empty for positional markers
	Index int
}

func (*BindMarker) termNode() {}

// CompareOp is a WHERE clause comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
)

// String returns the CQL spelling of the operator.
func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpIn:
		return "IN"
	default:
		return "unknown"
	}
}

// Relation is a single WHERE clause comparison. Value holds the right-hand
// term for binary operators; Values holds the alternatives for IN.
type Relation struct {
	Column string
	Op     CompareOp
	Value  Term
	Values []Term
}

// Condition is a single lightweight transaction equality check from an
// IF clause.
type Condition struct {
	Column string
	Value  Term
}

// Assignment is a single SET clause entry in an UPDATE statement.
type Assignment struct {
	Column string
	Value  Term
}

// UsingClause carries USING options on a DML statement. TTL is accepted
// syntactically but has no storage effect.
type UsingClause struct {
	Timestamp Term
	TTL       Term
}

// Ordering is a single ORDER BY entry.
type Ordering struct {
	Column string
	Desc   bool
}

// Selector is a single projection entry in a SELECT statement.
type Selector struct {
	Star   bool
	Column string
	Alias  string
	ToJson bool // Selector is toJson(column)
}

// ColumnDef is a column declaration in a CREATE TABLE statement.
type ColumnDef struct {
	Name string
	Type types.ColumnType
}

// UseStatement switches the session keyspace.
type UseStatement struct {
	Keyspace string
}

func (*UseStatement) statementNode() {}

// CreateKeyspaceStatement creates a keyspace. Options such as replication
// and durable_writes are parsed but carry no behavior on a single node.
type CreateKeyspaceStatement struct {
	Name        string
	IfNotExists bool
	Options     map[string]Term
}

func (*CreateKeyspaceStatement) statementNode() {}

// DropKeyspaceStatement drops a keyspace and all of its tables.
type DropKeyspaceStatement struct {
	Name     string
	IfExists bool
}

func (*DropKeyspaceStatement) statementNode() {}

// CreateTableStatement creates a table.
type CreateTableStatement struct {
	Keyspace    string // Empty when unqualified
	Name        string
	IfNotExists bool
	Columns     []ColumnDef
	// PartitionKey and ClusteringKey hold the primary key split into its
	// partition and clustering components, in declaration order.
	PartitionKey  []string
	ClusteringKey []string
	// ClusteringOrder holds WITH CLUSTERING ORDER BY entries.
	ClusteringOrder []Ordering
}

func (*CreateTableStatement) statementNode() {}

// AlterOp identifies the kind of an ALTER TABLE operation.
type AlterOp int

const (
	AlterAdd AlterOp = iota
	AlterDrop
)

// AlterTableStatement adds or drops a regular column.
type AlterTableStatement struct {
	Keyspace string
	Name     string
	Op       AlterOp
	Column   string
	Type     types.ColumnType // Set for AlterAdd
}

func (*AlterTableStatement) statementNode() {}

// DropTableStatement drops a table.
type DropTableStatement struct {
	Keyspace string
	Name     string
	IfExists bool
}

func (*DropTableStatement) statementNode() {}

// CreateIndexStatement creates a secondary index. Indexes are accepted for
// driver compatibility and recorded by name only.
type CreateIndexStatement struct {
	Name        string // Empty when unnamed
	Keyspace    string
	Table       string
	Column      string
	IfNotExists bool
}

func (*CreateIndexStatement) statementNode() {}

// InsertStatement writes a full or partial row. Exactly one of
// Columns/Values or JSON is set.
type InsertStatement struct {
	Keyspace    string
	Table       string
	Columns     []string
	Values      []Term
	JSON        Term // INSERT ... JSON form
	IfNotExists bool
	Using       UsingClause
}

func (*InsertStatement) statementNode() {}

// UpdateStatement writes the assigned cells of a single row.
type UpdateStatement struct {
	Keyspace    string
	Table       string
	Using       UsingClause
	Assignments []Assignment
	Where       []Relation
	IfExists    bool
	Conditions  []Condition
}

func (*UpdateStatement) statementNode() {}

// DeleteStatement deletes cells, rows or ranges depending on which key
// columns the WHERE clause pins.
type DeleteStatement struct {
	Keyspace   string
	Table      string
	Columns    []string // Empty means whole-row/range delete
	Using      UsingClause
	Where      []Relation
	IfExists   bool
	Conditions []Condition
}

func (*DeleteStatement) statementNode() {}

// SelectStatement reads rows.
type SelectStatement struct {
	Keyspace       string
	Table          string
	JSON           bool
	Selectors      []Selector
	Where          []Relation
	OrderBy        []Ordering
	Limit          Term
	AllowFiltering bool
}

func (*SelectStatement) statementNode() {}

// BatchStatement groups INSERT, UPDATE and DELETE statements.
type BatchStatement struct {
	Unlogged bool
	Counter  bool
	Using    UsingClause
	Children []Statement
}

func (*BatchStatement) statementNode() {}
