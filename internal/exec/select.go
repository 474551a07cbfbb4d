package exec

import (
	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/cql/parser"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/internal/store"
	"github.com/arkilian/minicql/pkg/types"
)

// projection is one output column of a SELECT.
type projection struct {
	name   string // Result metadata name, after aliasing
	column string // Source column
	typ    types.ColumnType
	toJSON bool
}

// selectPlan is the access path chosen for a SELECT statement.
type selectPlan struct {
	table *catalog.Table
	// pinned is true when the whole partition key is restricted and
	// partitions lists the keys to read. Otherwise the plan scans the
	// table in token order.
	pinned     bool
	partitions [][]types.Value
	ckRange    store.ClusteringRange
	// residual holds restrictions the access path cannot serve. They are
	// applied row by row and require ALLOW FILTERING.
	residual []residualFilter
	reversed bool
	limit    int
	projs    []projection
	jsonMode bool
}

type residualFilter struct {
	column string
	op     parser.CompareOp
	value  types.Value
	in     []types.Value
}

func (f residualFilter) matches(t *catalog.Table, r *store.Row) bool {
	v := rowValue(t, r, f.column)
	if f.op == parser.OpIn {
		for _, want := range f.in {
			if !v.IsNull() && v.Equal(want) {
				return true
			}
		}
		return false
	}
	if v.IsNull() {
		return false
	}
	cmp := v.Compare(f.value)
	switch f.op {
	case parser.OpEq:
		return cmp == 0
	case parser.OpLt:
		return cmp < 0
	case parser.OpLe:
		return cmp <= 0
	case parser.OpGt:
		return cmp > 0
	case parser.OpGe:
		return cmp >= 0
	default:
		return false
	}
}

func (e *Executor) execSelect(s *parser.SelectStatement, sessionKeyspace string, vals BoundValues) (Result, error) {
	t, err := e.resolveTable(s.Keyspace, s.Table, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	plan, err := e.planSelect(t, s, vals)
	if err != nil {
		return nil, err
	}

	var rows []*store.Row
	td, err := e.store.Table(t.Keyspace, t.Name)
	if err != nil {
		return nil, err
	}
	opts := store.ReadOptions{Range: plan.ckRange, Reversed: plan.reversed}
	if len(plan.residual) > 0 {
		filters := plan.residual
		opts.Filter = func(r *store.Row) bool {
			for _, f := range filters {
				if !f.matches(t, r) {
					return false
				}
			}
			return true
		}
	}
	if !plan.pinned {
		it := td.Scan(opts)
		for r, ok := it.Next(); ok; r, ok = it.Next() {
			rows = append(rows, r)
			if plan.limit > 0 && len(rows) >= plan.limit {
				break
			}
		}
	} else {
		for _, pk := range plan.partitions {
			it, err := td.Read(pk, opts)
			if err != nil {
				return nil, err
			}
			for r, ok := it.Next(); ok; r, ok = it.Next() {
				rows = append(rows, r)
				if plan.limit > 0 && len(rows) >= plan.limit {
					break
				}
			}
			if plan.limit > 0 && len(rows) >= plan.limit {
				break
			}
		}
	}
	return projectRows(t, plan, rows)
}

// planSelect validates the statement against the table and picks the
// access path.
func (e *Executor) planSelect(t *catalog.Table, s *parser.SelectStatement, vals BoundValues) (*selectPlan, error) {
	plan := &selectPlan{table: t, jsonMode: s.JSON}

	if err := plan.buildProjection(t, s); err != nil {
		return nil, err
	}
	if err := plan.buildRestrictions(t, s, vals); err != nil {
		return nil, err
	}
	if err := plan.buildOrdering(t, s); err != nil {
		return nil, err
	}
	if len(plan.residual) > 0 && !s.AllowFiltering {
		return nil, errors.NewExecutionError(errors.CodeInvalidCondition,
			"this query requires ALLOW FILTERING")
	}

	if s.Limit != nil {
		v, err := resolveTerm(s.Limit, types.Scalar(types.KindInt), vals)
		if err != nil {
			return nil, err
		}
		if v.IsNull() || v.IsUnset() {
			return nil, errors.NewTypeError(errors.CodeBadBindValue,
				"LIMIT must not be null")
		}
		if v.Int <= 0 {
			return nil, errors.NewExecutionError(errors.CodeInvalidCondition,
				"LIMIT must be strictly positive")
		}
		plan.limit = int(v.Int)
	}
	return plan, nil
}

func (p *selectPlan) buildProjection(t *catalog.Table, s *parser.SelectStatement) error {
	for _, sel := range s.Selectors {
		if sel.Star {
			for _, c := range t.AllColumns() {
				p.projs = append(p.projs, projection{name: c.Name, column: c.Name, typ: c.Type})
			}
			continue
		}
		col, role := t.Column(sel.Column)
		if role == catalog.RoleNone {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
				"undefined column %s in table %s.%s", sel.Column, t.Keyspace, t.Name)
		}
		pr := projection{name: sel.Column, column: sel.Column, typ: col.Type}
		if sel.ToJson {
			pr.name = "system.tojson(" + sel.Column + ")"
			pr.typ = types.Scalar(types.KindText)
			pr.toJSON = true
		}
		if sel.Alias != "" {
			pr.name = sel.Alias
		}
		p.projs = append(p.projs, pr)
	}
	return nil
}

// buildRestrictions classifies WHERE relations into partition key lookups,
// a clustering range and residual filters.
func (p *selectPlan) buildRestrictions(t *catalog.Table, s *parser.SelectStatement, vals BoundValues) error {
	type restriction struct {
		rel  parser.Relation
		col  catalog.Column
		role catalog.ColumnRole
	}
	byColumn := make(map[string][]restriction)
	for _, rel := range s.Where {
		col, role := t.Column(rel.Column)
		if role == catalog.RoleNone {
			return errors.Newf(errors.ErrCategorySchema, errors.CodeUnknownColumn,
				"undefined column %s in table %s.%s", rel.Column, t.Keyspace, t.Name)
		}
		byColumn[rel.Column] = append(byColumn[rel.Column], restriction{rel: rel, col: col, role: role})
	}

	addResidual := func(r restriction) error {
		f := residualFilter{column: r.rel.Column, op: r.rel.Op}
		if r.rel.Op == parser.OpIn {
			in, err := resolveInValues(r.rel, r.col.Type, vals)
			if err != nil {
				return err
			}
			f.in = in
		} else {
			v, err := resolveTerm(r.rel.Value, r.col.Type, vals)
			if err != nil {
				return err
			}
			if v.IsNull() || v.IsUnset() {
				return errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
					"null restriction on column %s", r.rel.Column)
			}
			f.value = v
		}
		p.residual = append(p.residual, f)
		return nil
	}

	// Partition key: every column restricted by = or IN, else scan.
	pkPinned := true
	pkChoices := make([][]types.Value, len(t.PartitionKey))
	for i, c := range t.PartitionKey {
		rs := byColumn[c.Name]
		if len(rs) != 1 || (rs[0].rel.Op != parser.OpEq && rs[0].rel.Op != parser.OpIn) {
			pkPinned = false
			break
		}
		r := rs[0]
		if r.rel.Op == parser.OpEq {
			v, err := resolveTerm(r.rel.Value, c.Type, vals)
			if err != nil {
				return err
			}
			if v.IsNull() || v.IsUnset() {
				return errors.Newf(errors.ErrCategoryExecution, errors.CodeNullInKey,
					"null value for partition key column %s", c.Name)
			}
			pkChoices[i] = []types.Value{v}
		} else {
			in, err := resolveInValues(r.rel, c.Type, vals)
			if err != nil {
				return err
			}
			pkChoices[i] = in
		}
	}
	if pkPinned {
		p.pinned = true
		p.partitions = cartesian(pkChoices)
		for _, c := range t.PartitionKey {
			delete(byColumn, c.Name)
		}
	} else {
		// Scan path: every partition key restriction becomes residual.
		for _, c := range t.PartitionKey {
			for _, r := range byColumn[c.Name] {
				if err := addResidual(r); err != nil {
					return err
				}
			}
			delete(byColumn, c.Name)
		}
	}

	// Clustering key: an equality prefix, then at most one ranged column.
	prefixOpen := pkPinned
	rangeOpen := pkPinned
	for _, c := range t.ClusteringKey {
		rs := byColumn[c.Name]
		if len(rs) == 0 {
			prefixOpen = false
			rangeOpen = false
			continue
		}
		delete(byColumn, c.Name)
		if prefixOpen && len(rs) == 1 && rs[0].rel.Op == parser.OpEq {
			v, err := resolveTerm(rs[0].rel.Value, c.Type, vals)
			if err != nil {
				return err
			}
			if v.IsNull() || v.IsUnset() {
				return errors.Newf(errors.ErrCategoryExecution, errors.CodeNullInKey,
					"null value for clustering column %s", c.Name)
			}
			p.ckRange.Prefix = append(p.ckRange.Prefix, v)
			continue
		}
		rangeOnly := true
		for _, r := range rs {
			switch r.rel.Op {
			case parser.OpLt, parser.OpLe, parser.OpGt, parser.OpGe:
			default:
				rangeOnly = false
			}
		}
		if rangeOpen && rangeOnly {
			for _, r := range rs {
				v, err := resolveTerm(r.rel.Value, c.Type, vals)
				if err != nil {
					return err
				}
				if v.IsNull() || v.IsUnset() {
					return errors.Newf(errors.ErrCategoryExecution, errors.CodeNullInKey,
						"null bound for clustering column %s", c.Name)
				}
				b := &store.Bound{Value: v, Inclusive: r.rel.Op == parser.OpLe || r.rel.Op == parser.OpGe}
				switch r.rel.Op {
				case parser.OpGt, parser.OpGe:
					if p.ckRange.Start != nil {
						return errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
							"column %s has more than one lower bound", c.Name)
					}
					p.ckRange.Start = b
				case parser.OpLt, parser.OpLe:
					if p.ckRange.End != nil {
						return errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
							"column %s has more than one upper bound", c.Name)
					}
					p.ckRange.End = b
				}
			}
			prefixOpen = false
			rangeOpen = false
			continue
		}
		// Out-of-order or IN restrictions on clustering columns fall back
		// to row filtering.
		for _, r := range rs {
			if err := addResidual(r); err != nil {
				return err
			}
		}
		prefixOpen = false
		rangeOpen = false
	}

	// Whatever remains restricts regular columns.
	for _, rs := range byColumn {
		for _, r := range rs {
			if r.role != catalog.RoleRegular {
				continue
			}
			if err := addResidual(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *selectPlan) buildOrdering(t *catalog.Table, s *parser.SelectStatement) error {
	if len(s.OrderBy) == 0 {
		return nil
	}
	if !p.pinned {
		return errors.NewExecutionError(errors.CodeInvalidOrdering,
			"ORDER BY is only supported when the partition key is restricted")
	}
	if len(s.OrderBy) > len(t.ClusteringKey) {
		return errors.NewExecutionError(errors.CodeInvalidOrdering,
			"ORDER BY may only name clustering columns")
	}
	reversed := s.OrderBy[0].Desc != t.ClusteringKey[0].Desc
	for i, o := range s.OrderBy {
		ck := t.ClusteringKey[i]
		if o.Column != ck.Name {
			return errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidOrdering,
				"ORDER BY must follow the clustering order; expected %s", ck.Name)
		}
		if (o.Desc != ck.Desc) != reversed {
			return errors.NewExecutionError(errors.CodeInvalidOrdering,
				"ORDER BY directions must all follow or all reverse the clustering order")
		}
	}
	p.reversed = reversed
	return nil
}

// resolveInValues resolves the value list of an IN relation. A single bind
// marker stands for the whole list.
func resolveInValues(rel parser.Relation, t types.ColumnType, vals BoundValues) ([]types.Value, error) {
	if rel.Value != nil {
		v, err := resolveTerm(rel.Value, types.ListOf(t), vals)
		if err != nil {
			return nil, err
		}
		if v.IsNull() || v.IsUnset() {
			return nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
				"null IN list on column %s", rel.Column)
		}
		return v.Elems, nil
	}
	out := make([]types.Value, 0, len(rel.Values))
	for _, term := range rel.Values {
		v, err := resolveTerm(term, t, vals)
		if err != nil {
			return nil, err
		}
		if v.IsNull() || v.IsUnset() {
			return nil, errors.Newf(errors.ErrCategoryExecution, errors.CodeInvalidCondition,
				"null value in IN list on column %s", rel.Column)
		}
		out = append(out, v)
	}
	return out, nil
}

// cartesian expands per-column value choices into full partition keys,
// varying the last column fastest.
func cartesian(choices [][]types.Value) [][]types.Value {
	out := [][]types.Value{nil}
	for _, values := range choices {
		next := make([][]types.Value, 0, len(out)*len(values))
		for _, prefix := range out {
			for _, v := range values {
				key := make([]types.Value, len(prefix)+1)
				copy(key, prefix)
				key[len(prefix)] = v
				next = append(next, key)
			}
		}
		out = next
	}
	return out
}

// projectRows renders visible rows through the plan's projection, in JSON
// mode as a single text column per row.
func projectRows(t *catalog.Table, plan *selectPlan, rows []*store.Row) (*RowsResult, error) {
	if plan.jsonMode {
		res := &RowsResult{Columns: []ResultColumn{{
			Keyspace: t.Keyspace, Table: t.Name,
			Name: jsonColumnName, Type: types.Scalar(types.KindText),
		}}}
		names := make([]string, len(plan.projs))
		for i, pr := range plan.projs {
			names[i] = pr.name
		}
		for _, r := range rows {
			values := make([]types.Value, len(plan.projs))
			for i, pr := range plan.projs {
				values[i] = rowValue(t, r, pr.column)
			}
			doc, err := rowToJSON(names, values)
			if err != nil {
				return nil, err
			}
			res.Rows = append(res.Rows, []types.Value{types.NewText(doc)})
		}
		return res, nil
	}

	res := &RowsResult{}
	for _, pr := range plan.projs {
		res.Columns = append(res.Columns, ResultColumn{
			Keyspace: t.Keyspace, Table: t.Name, Name: pr.name, Type: pr.typ,
		})
	}
	for _, r := range rows {
		row := make([]types.Value, len(plan.projs))
		for i, pr := range plan.projs {
			v := rowValue(t, r, pr.column)
			if pr.toJSON {
				doc, err := valueToJSON(v)
				if err != nil {
					return nil, err
				}
				v = types.NewText(string(doc))
			}
			row[i] = v
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
