package exec

import (
	"crypto/md5"
	"sort"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/cql/parser"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/pkg/types"
)

// PreparedStatement is a parsed statement cached under a deterministic id
// with the metadata drivers need to bind and decode.
type PreparedStatement struct {
	ID        []byte
	Keyspace  string // Session keyspace at prepare time
	Query     string
	Statement parser.Statement
	Variables []ResultColumn
	PkIndices []uint16
	// Columns holds the result metadata for SELECT statements, nil for
	// everything else.
	Columns []ResultColumn
}

// preparedID derives the statement id from the keyspace and query text,
// so re-preparing the same statement yields the same id.
func preparedID(keyspace, query string) []byte {
	sum := md5.Sum([]byte(keyspace + query))
	return sum[:]
}

// Prepare parses and analyzes a statement, caching it under its id.
func (e *Executor) Prepare(query, sessionKeyspace string) (*PreparedStatementResult, error) {
	stmt, err := parse(query)
	if err != nil {
		return nil, err
	}
	vars, pkIdx, err := e.collectVariables(stmt, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	var columns []ResultColumn
	if sel, ok := stmt.(*parser.SelectStatement); ok {
		columns, err = e.selectMetadata(sel, sessionKeyspace)
		if err != nil {
			return nil, err
		}
	}
	p := &PreparedStatement{
		ID:        preparedID(sessionKeyspace, query),
		Keyspace:  sessionKeyspace,
		Query:     query,
		Statement: stmt,
		Variables: vars,
		PkIndices: pkIdx,
		Columns:   columns,
	}
	e.prepared.Add(string(p.ID), p)
	return &PreparedStatementResult{
		ID:        p.ID,
		Variables: vars,
		PkIndices: pkIdx,
		Columns:   columns,
	}, nil
}

func (e *Executor) lookupPrepared(id []byte) (*PreparedStatement, error) {
	v, ok := e.prepared.Get(string(id))
	if !ok {
		return nil, errors.NewExecutionError(errors.CodeUnprepared,
			"prepared statement not found; prepare it again")
	}
	return v.(*PreparedStatement), nil
}

// Execute runs a previously prepared statement with bound values.
func (e *Executor) Execute(id []byte, sessionKeyspace string, vals BoundValues) (Result, error) {
	p, err := e.lookupPrepared(id)
	if err != nil {
		return nil, err
	}
	ks := p.Keyspace
	if ks == "" {
		ks = sessionKeyspace
	}
	return e.executeStatement(p.Statement, ks, vals, nil)
}

// boundVar records one bind marker occurrence with its inferred type.
type boundVar struct {
	index  int
	name   string // Display name, the marker name or the bound column
	column string // Source column name, empty for LIMIT and USING markers
	typ    types.ColumnType
}

type varCollector struct {
	table *catalog.Table
	vars  []boundVar
}

func (c *varCollector) add(term parser.Term, name string, typ types.ColumnType) {
	bm, ok := term.(*parser.BindMarker)
	if !ok {
		return
	}
	display := name
	if bm.Name != "" {
		display = bm.Name
	}
	c.vars = append(c.vars, boundVar{index: bm.Index, name: display, column: name, typ: typ})
}

func (c *varCollector) addColumnTerm(term parser.Term, column string) error {
	col, role := c.table.Column(column)
	if role == catalog.RoleNone {
		return errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
			"unknown column %s in table %s.%s", column, c.table.Keyspace, c.table.Name)
	}
	c.add(term, column, col.Type)
	return nil
}

func (c *varCollector) addRelations(where []parser.Relation) error {
	for _, rel := range where {
		col, role := c.table.Column(rel.Column)
		if role == catalog.RoleNone {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
				"unknown column %s in table %s.%s", rel.Column, c.table.Keyspace, c.table.Name)
		}
		if rel.Op == parser.OpIn && rel.Value != nil {
			c.add(rel.Value, rel.Column, types.ListOf(col.Type))
			continue
		}
		if rel.Value != nil {
			c.add(rel.Value, rel.Column, col.Type)
		}
		for _, term := range rel.Values {
			c.add(term, rel.Column, col.Type)
		}
	}
	return nil
}

func (c *varCollector) addConditions(conds []parser.Condition) error {
	for _, cond := range conds {
		if err := c.addColumnTerm(cond.Value, cond.Column); err != nil {
			return err
		}
	}
	return nil
}

func (c *varCollector) addUsing(using parser.UsingClause) {
	if using.Timestamp != nil {
		c.add(using.Timestamp, "[timestamp]", types.Scalar(types.KindBigint))
	}
	if using.TTL != nil {
		c.add(using.TTL, "[ttl]", types.Scalar(types.KindInt))
	}
}

// collectVariables walks a statement gathering marker metadata in marker
// order. For DML binding the whole partition key, it also reports which
// variables form the key.
func (e *Executor) collectVariables(stmt parser.Statement, sessionKeyspace string) ([]ResultColumn, []uint16, error) {
	c := &varCollector{}
	resolve := func(ks, table string) error {
		t, err := e.resolveTable(ks, table, sessionKeyspace)
		if err != nil {
			return err
		}
		c.table = t
		return nil
	}

	var walk func(stmt parser.Statement) error
	walk = func(stmt parser.Statement) error {
		switch s := stmt.(type) {
		case *parser.InsertStatement:
			if err := resolve(s.Keyspace, s.Table); err != nil {
				return err
			}
			if s.JSON != nil {
				c.add(s.JSON, "[json]", types.Scalar(types.KindText))
			}
			for i, name := range s.Columns {
				if err := c.addColumnTerm(s.Values[i], name); err != nil {
					return err
				}
			}
			c.addUsing(s.Using)
		case *parser.UpdateStatement:
			if err := resolve(s.Keyspace, s.Table); err != nil {
				return err
			}
			c.addUsing(s.Using)
			for _, a := range s.Assignments {
				if err := c.addColumnTerm(a.Value, a.Column); err != nil {
					return err
				}
			}
			if err := c.addRelations(s.Where); err != nil {
				return err
			}
			if err := c.addConditions(s.Conditions); err != nil {
				return err
			}
		case *parser.DeleteStatement:
			if err := resolve(s.Keyspace, s.Table); err != nil {
				return err
			}
			c.addUsing(s.Using)
			if err := c.addRelations(s.Where); err != nil {
				return err
			}
			if err := c.addConditions(s.Conditions); err != nil {
				return err
			}
		case *parser.SelectStatement:
			if err := resolve(s.Keyspace, s.Table); err != nil {
				return err
			}
			if err := c.addRelations(s.Where); err != nil {
				return err
			}
			if s.Limit != nil {
				c.add(s.Limit, "[limit]", types.Scalar(types.KindInt))
			}
		case *parser.BatchStatement:
			c.addUsing(s.Using)
			for _, child := range s.Children {
				if err := walk(child); err != nil {
					return err
				}
			}
		default:
			// DDL and USE carry no bindable variables.
		}
		return nil
	}
	if err := walk(stmt); err != nil {
		return nil, nil, err
	}
	table := c.table

	sort.Slice(c.vars, func(i, j int) bool { return c.vars[i].index < c.vars[j].index })
	vars := make([]ResultColumn, len(c.vars))
	for i, v := range c.vars {
		if v.index != i {
			return nil, nil, errors.New(errors.ErrCategoryInternal, errors.CodeUnexpected,
				"bind marker numbering is not contiguous")
		}
		keyspace, tableName := "", ""
		if table != nil {
			keyspace, tableName = table.Keyspace, table.Name
		}
		vars[i] = ResultColumn{Keyspace: keyspace, Table: tableName, Name: v.name, Type: v.typ}
	}

	pkIdx := partitionKeyIndices(stmt, table, c.vars)
	return vars, pkIdx, nil
}

// partitionKeyIndices reports, for single-table DML whose partition key is
// entirely bound by markers, the variable indices forming the key in key
// order.
func partitionKeyIndices(stmt parser.Statement, table *catalog.Table, vars []boundVar) []uint16 {
	switch stmt.(type) {
	case *parser.InsertStatement, *parser.UpdateStatement, *parser.DeleteStatement, *parser.SelectStatement:
	default:
		return nil
	}
	if table == nil {
		return nil
	}
	out := make([]uint16, 0, len(table.PartitionKey))
	for _, c := range table.PartitionKey {
		found := false
		for i, v := range vars {
			if v.column == c.Name {
				out = append(out, uint16(i))
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}
	return out
}

// selectMetadata computes the result columns a prepared SELECT produces.
func (e *Executor) selectMetadata(s *parser.SelectStatement, sessionKeyspace string) ([]ResultColumn, error) {
	t, err := e.resolveTable(s.Keyspace, s.Table, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	if s.JSON {
		return []ResultColumn{{
			Keyspace: t.Keyspace, Table: t.Name,
			Name: jsonColumnName, Type: types.Scalar(types.KindText),
		}}, nil
	}
	plan := &selectPlan{table: t}
	if err := plan.buildProjection(t, s); err != nil {
		return nil, err
	}
	cols := make([]ResultColumn, len(plan.projs))
	for i, pr := range plan.projs {
		cols[i] = ResultColumn{Keyspace: t.Keyspace, Table: t.Name, Name: pr.name, Type: pr.typ}
	}
	return cols, nil
}
