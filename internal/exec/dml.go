package exec

import (
	"bytes"
	"encoding/json"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/cql/parser"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/internal/store"
	"github.com/arkilian/minicql/pkg/types"
)

const appliedColumnName = "[applied]"

// lwtClause captures the IF portion of a conditional statement.
type lwtClause struct {
	ifExists    bool
	ifNotExists bool
	conditions  []resolvedCondition
}

type resolvedCondition struct {
	column string
	typ    types.ColumnType
	value  types.Value
}

func (c lwtClause) active() bool {
	return c.ifExists || c.ifNotExists || len(c.conditions) > 0
}

// check evaluates the clause against the row visible before the write.
func (c lwtClause) check(existing *store.Row) bool {
	if c.ifNotExists {
		return existing == nil
	}
	if existing == nil {
		return false
	}
	for _, cond := range c.conditions {
		current := types.Null()
		if cell, ok := existing.Cells[cond.column]; ok {
			current = cell.Value
		}
		if cond.value.IsNull() {
			if !current.IsNull() {
				return false
			}
			continue
		}
		if current.IsNull() || !current.Equal(cond.value) {
			return false
		}
	}
	return true
}

func resolveConditions(t *catalog.Table, conds []parser.Condition, vals BoundValues) ([]resolvedCondition, error) {
	out := make([]resolvedCondition, 0, len(conds))
	for _, c := range conds {
		col, role := t.Column(c.Column)
		if role == catalog.RoleNone {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
				"unknown column %s in IF clause", c.Column)
		}
		if role != catalog.RoleRegular {
			return nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
				"IF conditions may only reference regular columns, not %s", c.Column)
		}
		v, err := resolveTerm(c.Value, col.Type, vals)
		if err != nil {
			return nil, err
		}
		if v.IsUnset() {
			return nil, errors.Newf(errors.ErrCategoryType, errors.CodeBadBindValue,
				"unset value in IF condition on %s", c.Column)
		}
		out = append(out, resolvedCondition{column: c.Column, typ: col.Type, value: v})
	}
	return out, nil
}

// lwtResult builds the [applied] row. A failed attempt also reports the
// current values the condition saw.
func lwtResult(t *catalog.Table, applied bool, existing *store.Row, clause lwtClause) *RowsResult {
	cols := []ResultColumn{{
		Keyspace: t.Keyspace, Table: t.Name,
		Name: appliedColumnName, Type: types.Scalar(types.KindBoolean),
	}}
	row := []types.Value{types.NewBoolean(applied)}
	if !applied {
		if clause.ifNotExists && existing != nil {
			for _, c := range t.AllColumns() {
				cols = append(cols, ResultColumn{Keyspace: t.Keyspace, Table: t.Name, Name: c.Name, Type: c.Type})
				row = append(row, rowValue(t, existing, c.Name))
			}
		} else if len(clause.conditions) > 0 && existing != nil {
			for _, cond := range clause.conditions {
				cols = append(cols, ResultColumn{Keyspace: t.Keyspace, Table: t.Name, Name: cond.column, Type: cond.typ})
				row = append(row, existing.Value(cond.column))
			}
		}
	}
	return &RowsResult{Columns: cols, Rows: [][]types.Value{row}}
}

// keyValues pulls the primary key out of a column to value mapping,
// enforcing presence and non-null key parts.
func keyValues(t *catalog.Table, values map[string]types.Value) (pk, ck []types.Value, err error) {
	pk = make([]types.Value, len(t.PartitionKey))
	for i, c := range t.PartitionKey {
		v, ok := values[c.Name]
		if !ok || v.IsUnset() {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeMissingPartitionKey,
				"missing value for partition key column %s", c.Name)
		}
		if v.IsNull() {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeNullInKey,
				"null value for partition key column %s", c.Name)
		}
		pk[i] = v
	}
	ck = make([]types.Value, len(t.ClusteringKey))
	for i, c := range t.ClusteringKey {
		v, ok := values[c.Name]
		if !ok || v.IsUnset() {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeMissingPartitionKey,
				"missing value for clustering column %s", c.Name)
		}
		if v.IsNull() {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeNullInKey,
				"null value for clustering column %s", c.Name)
		}
		ck[i] = v
	}
	return pk, ck, nil
}

func (e *Executor) execInsert(s *parser.InsertStatement, sessionKeyspace string, vals BoundValues, defaultTS *int64) (Result, error) {
	t, err := e.resolveTable(s.Keyspace, s.Table, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	if err := guardUserWrite(t); err != nil {
		return nil, err
	}

	values := make(map[string]types.Value)
	if s.JSON != nil {
		if err := e.insertValuesFromJSON(t, s.JSON, vals, values); err != nil {
			return nil, err
		}
	} else {
		for i, name := range s.Columns {
			col, role := t.Column(name)
			if role == catalog.RoleNone {
				return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
					"unknown column %s in table %s.%s", name, t.Keyspace, t.Name)
			}
			if _, dup := values[name]; dup {
				return nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
					"column %s appears twice", name)
			}
			v, err := resolveTerm(s.Values[i], col.Type, vals)
			if err != nil {
				return nil, err
			}
			values[name] = v
		}
	}

	pk, ck, err := keyValues(t, values)
	if err != nil {
		return nil, err
	}
	ts, err := e.timestampFor(s.Using, vals, defaultTS)
	if err != nil {
		return nil, err
	}

	var cells []store.CellWrite
	for _, c := range t.Regular {
		v, ok := values[c.Name]
		if !ok || v.IsUnset() {
			continue
		}
		if v.IsNull() {
			cells = append(cells, store.CellWrite{Column: c.Name, Tombstone: true})
			continue
		}
		cells = append(cells, store.CellWrite{Column: c.Name, Value: v})
	}
	w := store.Write{PartitionKey: pk, Clustering: ck, Cells: cells, Timestamp: ts, RowMarker: true}

	td, err := e.store.Table(t.Keyspace, t.Name)
	if err != nil {
		return nil, err
	}
	if !s.IfNotExists {
		if err := td.Apply(w); err != nil {
			return nil, err
		}
		return &VoidResult{}, nil
	}
	if defaultTS != nil {
		return nil, batchLWTError()
	}
	clause := lwtClause{ifNotExists: true}
	applied, existing, err := td.ApplyIf(w, clause.check)
	if err != nil {
		return nil, err
	}
	return lwtResult(t, applied, existing, clause), nil
}

// insertValuesFromJSON decodes the JSON payload of INSERT JSON into typed
// column values.
func (e *Executor) insertValuesFromJSON(t *catalog.Table, term parser.Term, vals BoundValues, values map[string]types.Value) error {
	doc, err := resolveTerm(term, types.Scalar(types.KindText), vals)
	if err != nil {
		return err
	}
	if doc.IsNull() || doc.IsUnset() {
		return errors.NewTypeError(errors.CodeBadBindValue,
			"INSERT JSON payload must not be null")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(doc.Text)))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return errors.Wrap(errors.ErrCategoryParse, errors.CodeBadLiteral,
			"INSERT JSON payload", err)
	}
	for name, raw := range obj {
		col, role := t.Column(name)
		if role == catalog.RoleNone {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
				"unknown column %s in JSON payload", name)
		}
		v, err := valueFromJSON(raw, col.Type)
		if err != nil {
			return err
		}
		values[name] = v
	}
	return nil
}

// writeKey extracts the primary key from a DML WHERE clause. All
// relations must be equality on key columns; requireFullCk demands every
// clustering column, otherwise a prefix is allowed.
func writeKey(t *catalog.Table, where []parser.Relation, vals BoundValues, requireFullCk bool) (pk, ck []types.Value, err error) {
	byColumn := make(map[string]types.Value, len(where))
	for _, rel := range where {
		col, role := t.Column(rel.Column)
		if role == catalog.RoleNone {
			return nil, nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
				"unknown column %s", rel.Column)
		}
		if role == catalog.RoleRegular {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
				"non-key column %s in DML WHERE clause", rel.Column)
		}
		if rel.Op != parser.OpEq {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
				"only equality restrictions are supported on %s in DML", rel.Column)
		}
		if _, dup := byColumn[rel.Column]; dup {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
				"column %s is restricted twice", rel.Column)
		}
		v, err := resolveTerm(rel.Value, col.Type, vals)
		if err != nil {
			return nil, nil, err
		}
		if v.IsNull() || v.IsUnset() {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeNullInKey,
				"null value for key column %s", rel.Column)
		}
		byColumn[rel.Column] = v
	}

	pk = make([]types.Value, len(t.PartitionKey))
	for i, c := range t.PartitionKey {
		v, ok := byColumn[c.Name]
		if !ok {
			return nil, nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeMissingPartitionKey,
				"missing restriction on partition key column %s", c.Name)
		}
		pk[i] = v
		delete(byColumn, c.Name)
	}
	for _, c := range t.ClusteringKey {
		v, ok := byColumn[c.Name]
		if !ok {
			break
		}
		ck = append(ck, v)
		delete(byColumn, c.Name)
	}
	if len(byColumn) != 0 {
		return nil, nil, errors.NewExecutionError(errors.CodeInvalidCondition,
			"clustering columns must be restricted in order")
	}
	if requireFullCk && len(ck) != len(t.ClusteringKey) {
		return nil, nil, errors.NewExecutionError(errors.CodeMissingPartitionKey,
			"all clustering columns are required")
	}
	return pk, ck, nil
}

func (e *Executor) execUpdate(s *parser.UpdateStatement, sessionKeyspace string, vals BoundValues, defaultTS *int64) (Result, error) {
	t, err := e.resolveTable(s.Keyspace, s.Table, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	if err := guardUserWrite(t); err != nil {
		return nil, err
	}
	pk, ck, err := writeKey(t, s.Where, vals, true)
	if err != nil {
		return nil, err
	}
	ts, err := e.timestampFor(s.Using, vals, defaultTS)
	if err != nil {
		return nil, err
	}

	var cells []store.CellWrite
	for _, a := range s.Assignments {
		col, role := t.Column(a.Column)
		if role == catalog.RoleNone {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
				"unknown column %s in table %s.%s", a.Column, t.Keyspace, t.Name)
		}
		if role != catalog.RoleRegular {
			return nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
				"primary key column %s cannot be assigned", a.Column)
		}
		v, err := resolveTerm(a.Value, col.Type, vals)
		if err != nil {
			return nil, err
		}
		if v.IsUnset() {
			continue
		}
		if v.IsNull() {
			cells = append(cells, store.CellWrite{Column: a.Column, Tombstone: true})
			continue
		}
		cells = append(cells, store.CellWrite{Column: a.Column, Value: v})
	}
	// UPDATE does not write a row marker: a row all of whose cells are
	// deleted later disappears.
	w := store.Write{PartitionKey: pk, Clustering: ck, Cells: cells, Timestamp: ts}

	td, err := e.store.Table(t.Keyspace, t.Name)
	if err != nil {
		return nil, err
	}
	clause := lwtClause{ifExists: s.IfExists}
	if len(s.Conditions) > 0 {
		clause.conditions, err = resolveConditions(t, s.Conditions, vals)
		if err != nil {
			return nil, err
		}
	}
	if !clause.active() {
		if err := td.Apply(w); err != nil {
			return nil, err
		}
		return &VoidResult{}, nil
	}
	if defaultTS != nil {
		return nil, batchLWTError()
	}
	applied, existing, err := td.ApplyIf(w, clause.check)
	if err != nil {
		return nil, err
	}
	return lwtResult(t, applied, existing, clause), nil
}

func (e *Executor) execDelete(s *parser.DeleteStatement, sessionKeyspace string, vals BoundValues, defaultTS *int64) (Result, error) {
	t, err := e.resolveTable(s.Keyspace, s.Table, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	if err := guardUserWrite(t); err != nil {
		return nil, err
	}
	ts, err := e.timestampFor(s.Using, vals, defaultTS)
	if err != nil {
		return nil, err
	}

	clause := lwtClause{ifExists: s.IfExists}
	if len(s.Conditions) > 0 {
		clause.conditions, err = resolveConditions(t, s.Conditions, vals)
		if err != nil {
			return nil, err
		}
	}
	td, err := e.store.Table(t.Keyspace, t.Name)
	if err != nil {
		return nil, err
	}

	// Cell deletions name specific columns and address exactly one row.
	if len(s.Columns) > 0 {
		pk, ck, err := writeKey(t, s.Where, vals, true)
		if err != nil {
			return nil, err
		}
		cells := make([]store.CellWrite, 0, len(s.Columns))
		for _, name := range s.Columns {
			_, role := t.Column(name)
			if role == catalog.RoleNone {
				return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
					"unknown column %s in table %s.%s", name, t.Keyspace, t.Name)
			}
			if role != catalog.RoleRegular {
				return nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
					"primary key column %s cannot be deleted", name)
			}
			cells = append(cells, store.CellWrite{Column: name, Tombstone: true})
		}
		w := store.Write{PartitionKey: pk, Clustering: ck, Cells: cells, Timestamp: ts}
		if !clause.active() {
			if err := td.Apply(w); err != nil {
				return nil, err
			}
			return &VoidResult{}, nil
		}
		if defaultTS != nil {
			return nil, batchLWTError()
		}
		applied, existing, err := td.ApplyIf(w, clause.check)
		if err != nil {
			return nil, err
		}
		return lwtResult(t, applied, existing, clause), nil
	}

	pk, ck, err := writeKey(t, s.Where, vals, false)
	if err != nil {
		return nil, err
	}
	switch {
	case len(ck) == len(t.ClusteringKey):
		w := store.Write{PartitionKey: pk, Clustering: ck, Timestamp: ts, RowTombstone: true}
		if !clause.active() {
			if err := td.Apply(w); err != nil {
				return nil, err
			}
			return &VoidResult{}, nil
		}
		if defaultTS != nil {
			return nil, batchLWTError()
		}
		applied, existing, err := td.ApplyIf(w, clause.check)
		if err != nil {
			return nil, err
		}
		return lwtResult(t, applied, existing, clause), nil
	case clause.active():
		return nil, errors.NewExecutionError(errors.CodeInvalidCondition,
			"conditional deletes must address a single row")
	case len(ck) == 0:
		if err := td.DeletePartition(pk, ts); err != nil {
			return nil, err
		}
		return &VoidResult{}, nil
	default:
		if err := td.DeleteRange(pk, ck, ts); err != nil {
			return nil, err
		}
		return &VoidResult{}, nil
	}
}

func batchLWTError() error {
	return errors.NewExecutionError(errors.CodeInvalidBatch,
		"conditional statements are not allowed in batches")
}

// execQueryBatch runs a BEGIN BATCH statement arriving as a single query
// string. Bind markers are numbered across the whole batch.
func (e *Executor) execQueryBatch(s *parser.BatchStatement, sessionKeyspace string, vals BoundValues) (Result, error) {
	ts, err := e.timestampFor(s.Using, vals, nil)
	if err != nil {
		return nil, err
	}
	for _, child := range s.Children {
		if _, err := e.executeStatement(child, sessionKeyspace, vals, &ts); err != nil {
			return nil, err
		}
	}
	return &VoidResult{}, nil
}

// BatchChild is one statement of a wire-protocol batch, given either as a
// query string or a prepared statement id, with its own bound values.
type BatchChild struct {
	Query  string
	ID     []byte
	Values BoundValues
}

// Batch executes a protocol-level batch. All children that carry no
// USING TIMESTAMP share one timestamp; atomicity is per child.
func (e *Executor) Batch(children []BatchChild, sessionKeyspace string, defaultTS *int64) (Result, error) {
	ts := e.clock.Next()
	if defaultTS != nil {
		ts = *defaultTS
	}
	for _, child := range children {
		var stmt parser.Statement
		if len(child.ID) > 0 {
			p, err := e.lookupPrepared(child.ID)
			if err != nil {
				return nil, err
			}
			stmt = p.Statement
		} else {
			var err error
			stmt, err = parse(child.Query)
			if err != nil {
				return nil, err
			}
		}
		switch stmt.(type) {
		case *parser.InsertStatement, *parser.UpdateStatement, *parser.DeleteStatement:
		default:
			return nil, errors.NewExecutionError(errors.CodeInvalidBatch,
				"batches may only contain INSERT, UPDATE and DELETE statements")
		}
		if _, err := e.executeStatement(stmt, sessionKeyspace, child.Values, &ts); err != nil {
			return nil, err
		}
	}
	return &VoidResult{}, nil
}
