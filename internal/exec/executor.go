package exec

import (
	stderrors "errors"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/cql/parser"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/internal/store"
	"github.com/arkilian/minicql/pkg/types"
)

// preparedCacheSize bounds the number of cached prepared statements.
const preparedCacheSize = 1024

// NodeInfo describes the single node as reported by system.local.
type NodeInfo struct {
	ClusterName string
	Address     string
	HostID      [16]byte
}

// Executor turns parsed statements into catalog and store operations.
type Executor struct {
	catalog  *catalog.Catalog
	store    *store.Store
	clock    *Timestamper
	prepared *lru.Cache
	logger   *zap.Logger
	node     NodeInfo
}

// New creates an executor, allocates storage for the system tables and
// seeds the rows drivers read on connect.
func New(cat *catalog.Catalog, st *store.Store, logger *zap.Logger, node NodeInfo) (*Executor, error) {
	cache, err := lru.New(preparedCacheSize)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryInternal, errors.CodeUnexpected,
			"prepared statement cache", err)
	}
	e := &Executor{
		catalog:  cat,
		store:    st,
		clock:    NewTimestamper(),
		prepared: cache,
		logger:   logger,
		node:     node,
	}
	if err := e.seedSystemTables(); err != nil {
		return nil, err
	}
	return e, nil
}

// Catalog returns the schema catalog.
func (e *Executor) Catalog() *catalog.Catalog { return e.catalog }

// Store returns the storage engine.
func (e *Executor) Store() *store.Store { return e.store }

// Query parses and executes one statement string.
func (e *Executor) Query(query, keyspace string, vals BoundValues) (Result, error) {
	stmt, err := parse(query)
	if err != nil {
		return nil, err
	}
	return e.executeStatement(stmt, keyspace, vals, nil)
}

// parse wraps parser failures in the engine's error type so they render
// as syntax errors at the wire boundary.
func parse(query string) (parser.Statement, error) {
	stmt, err := parser.Parse(query)
	if err == nil {
		return stmt, nil
	}
	var pe *parser.ParseError
	if stderrors.As(err, &pe) {
		return nil, errors.NewParseError(pe.Message, pe.Position)
	}
	return nil, errors.Wrap(errors.ErrCategoryParse, errors.CodeSyntaxError, "parse failed", err)
}

// executeStatement dispatches a parsed statement. defaultTS, when set,
// supplies the write timestamp for DML that carries no USING TIMESTAMP;
// batches use it to stamp all children alike.
func (e *Executor) executeStatement(stmt parser.Statement, keyspace string, vals BoundValues, defaultTS *int64) (Result, error) {
	switch s := stmt.(type) {
	case *parser.UseStatement:
		return e.execUse(s)
	case *parser.CreateKeyspaceStatement:
		return e.execCreateKeyspace(s, vals)
	case *parser.DropKeyspaceStatement:
		return e.execDropKeyspace(s)
	case *parser.CreateTableStatement:
		return e.execCreateTable(s, keyspace)
	case *parser.AlterTableStatement:
		return e.execAlterTable(s, keyspace)
	case *parser.DropTableStatement:
		return e.execDropTable(s, keyspace)
	case *parser.CreateIndexStatement:
		return e.execCreateIndex(s, keyspace)
	case *parser.InsertStatement:
		return e.execInsert(s, keyspace, vals, defaultTS)
	case *parser.UpdateStatement:
		return e.execUpdate(s, keyspace, vals, defaultTS)
	case *parser.DeleteStatement:
		return e.execDelete(s, keyspace, vals, defaultTS)
	case *parser.SelectStatement:
		return e.execSelect(s, keyspace, vals)
	case *parser.BatchStatement:
		return e.execQueryBatch(s, keyspace, vals)
	default:
		return nil, errors.New(errors.ErrCategoryInternal, errors.CodeUnexpected,
			"unhandled statement type")
	}
}

func (e *Executor) execUse(s *parser.UseStatement) (Result, error) {
	if e.catalog.Keyspace(s.Keyspace) == nil {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownKeyspace,
			"keyspace %s does not exist", s.Keyspace)
	}
	return &SetKeyspaceResult{Keyspace: s.Keyspace}, nil
}

// resolveTable picks the statement's keyspace, falling back to the session
// keyspace, and resolves the table.
func (e *Executor) resolveTable(stmtKeyspace, table, sessionKeyspace string) (*catalog.Table, error) {
	ks := stmtKeyspace
	if ks == "" {
		ks = sessionKeyspace
	}
	if ks == "" {
		return nil, errors.NewExecutionError(errors.CodeKeyspaceRequired,
			"no keyspace has been specified; USE a keyspace or qualify the table name")
	}
	return e.catalog.Resolve(ks, table)
}

// guardUserWrite rejects DML against engine-managed keyspaces.
func guardUserWrite(t *catalog.Table) error {
	if catalog.IsSystemKeyspace(t.Keyspace) {
		return errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
			"table %s.%s is read-only", t.Keyspace, t.Name)
	}
	return nil
}

// timestampFor resolves the effective write timestamp: USING TIMESTAMP
// first, then the batch default, then the monotonic clock.
func (e *Executor) timestampFor(using parser.UsingClause, vals BoundValues, defaultTS *int64) (int64, error) {
	if using.Timestamp != nil {
		v, err := resolveTerm(using.Timestamp, types.Scalar(types.KindBigint), vals)
		if err != nil {
			return 0, err
		}
		if v.IsNull() || v.IsUnset() {
			return 0, errors.NewTypeError(errors.CodeBadBindValue,
				"USING TIMESTAMP value must not be null")
		}
		return v.Int, nil
	}
	if defaultTS != nil {
		return *defaultTS, nil
	}
	return e.clock.Next(), nil
}

// rowValue reads one column from a visible row, covering key columns as
// well as regular cells.
func rowValue(t *catalog.Table, r *store.Row, name string) types.Value {
	for i, c := range t.PartitionKey {
		if c.Name == name {
			return r.PartitionKey[i]
		}
	}
	for i, c := range t.ClusteringKey {
		if c.Name == name {
			return r.Clustering[i]
		}
	}
	return r.Value(name)
}
