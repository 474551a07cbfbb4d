package exec

import (
	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/cql/parser"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/pkg/types"
)

// defaultReplication is applied when CREATE KEYSPACE omits a replication
// option. A single node replicates nothing either way.
func defaultReplication() map[string]string {
	return map[string]string{
		"class":              "SimpleStrategy",
		"replication_factor": "1",
	}
}

// optionText renders a literal option value as the string form stored in
// the schema tables.
func optionText(term parser.Term) (string, error) {
	lit, ok := term.(*parser.Literal)
	if !ok {
		return "", errors.New(errors.ErrCategoryParse, errors.CodeBadLiteral,
			"option values must be literals")
	}
	switch lit.Kind {
	case parser.LitString, parser.LitInteger, parser.LitFloat:
		return lit.Text, nil
	case parser.LitBoolean:
		return lit.Text, nil
	default:
		return "", errors.Newf(errors.ErrCategoryParse, errors.CodeBadLiteral,
			"unsupported option value %s", lit.Kind)
	}
}

func replicationFromOptions(opts map[string]parser.Term) (map[string]string, bool, error) {
	repl := defaultReplication()
	durable := true
	for name, term := range opts {
		switch name {
		case "replication":
			lit, ok := term.(*parser.Literal)
			if !ok || lit.Kind != parser.LitMap {
				return nil, false, errors.New(errors.ErrCategoryParse, errors.CodeBadLiteral,
					"replication must be a map of options")
			}
			repl = make(map[string]string, len(lit.Entries))
			for _, entry := range lit.Entries {
				k, err := optionText(entry.Key)
				if err != nil {
					return nil, false, err
				}
				v, err := optionText(entry.Val)
				if err != nil {
					return nil, false, err
				}
				repl[k] = v
			}
			if _, ok := repl["class"]; !ok {
				return nil, false, errors.New(errors.ErrCategoryParse, errors.CodeBadLiteral,
					"replication options must name a class")
			}
		case "durable_writes":
			v, err := optionText(term)
			if err != nil {
				return nil, false, err
			}
			durable = v == "true"
		default:
			// Unknown keyspace options are accepted and ignored.
		}
	}
	return repl, durable, nil
}

func (e *Executor) execCreateKeyspace(s *parser.CreateKeyspaceStatement, vals BoundValues) (Result, error) {
	repl, durable, err := replicationFromOptions(s.Options)
	if err != nil {
		return nil, err
	}
	created, err := e.catalog.CreateKeyspace(s.Name, repl, durable, s.IfNotExists)
	if err != nil {
		return nil, err
	}
	if !created {
		return &VoidResult{}, nil
	}
	if err := e.syncKeyspaceRow(e.catalog.Keyspace(s.Name)); err != nil {
		return nil, err
	}
	if err := e.bumpSchemaVersion(); err != nil {
		return nil, err
	}
	e.logger.Info("keyspace created", zap.String("keyspace", s.Name))
	return &SchemaChangeResult{ChangeType: "CREATED", Target: "KEYSPACE", Keyspace: s.Name}, nil
}

func (e *Executor) execDropKeyspace(s *parser.DropKeyspaceStatement) (Result, error) {
	dropped, ok, err := e.catalog.DropKeyspace(s.Name, s.IfExists)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &VoidResult{}, nil
	}
	for _, t := range dropped {
		e.store.DropTable(t.Keyspace, t.Name)
	}
	if err := e.removeKeyspaceRows(s.Name); err != nil {
		return nil, err
	}
	if err := e.bumpSchemaVersion(); err != nil {
		return nil, err
	}
	e.logger.Info("keyspace dropped", zap.String("keyspace", s.Name))
	return &SchemaChangeResult{ChangeType: "DROPPED", Target: "KEYSPACE", Keyspace: s.Name}, nil
}

// ddlKeyspace resolves the keyspace a DDL statement targets and rejects
// the engine-managed ones.
func (e *Executor) ddlKeyspace(stmtKeyspace, sessionKeyspace string) (string, error) {
	ks := stmtKeyspace
	if ks == "" {
		ks = sessionKeyspace
	}
	if ks == "" {
		return "", errors.NewExecutionError(errors.CodeKeyspaceRequired,
			"no keyspace has been specified; USE a keyspace or qualify the table name")
	}
	if catalog.IsSystemKeyspace(ks) {
		return "", errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
			"keyspace %s is reserved", ks)
	}
	return ks, nil
}

// tableFromStatement assembles a catalog table from a CREATE TABLE
// statement, splitting declared columns into key and regular roles.
func tableFromStatement(keyspace string, s *parser.CreateTableStatement) (*catalog.Table, error) {
	byName := make(map[string]types.ColumnType, len(s.Columns))
	for _, c := range s.Columns {
		if _, dup := byName[c.Name]; dup {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"duplicate column %s", c.Name)
		}
		byName[c.Name] = c.Type
	}
	inKey := make(map[string]bool, len(s.PartitionKey)+len(s.ClusteringKey))

	t := &catalog.Table{Keyspace: keyspace, Name: s.Name}
	for _, name := range s.PartitionKey {
		typ, ok := byName[name]
		if !ok {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"unknown partition key column %s", name)
		}
		if inKey[name] {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"duplicate key column %s", name)
		}
		inKey[name] = true
		t.PartitionKey = append(t.PartitionKey, catalog.Column{Name: name, Type: typ})
	}
	desc := make(map[string]bool, len(s.ClusteringOrder))
	for _, o := range s.ClusteringOrder {
		desc[o.Column] = o.Desc
	}
	for _, name := range s.ClusteringKey {
		typ, ok := byName[name]
		if !ok {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"unknown clustering column %s", name)
		}
		if inKey[name] {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"duplicate key column %s", name)
		}
		inKey[name] = true
		t.ClusteringKey = append(t.ClusteringKey, catalog.ClusteringColumn{
			Column: catalog.Column{Name: name, Type: typ},
			Desc:   desc[name],
		})
	}
	for name := range desc {
		if !inKey[name] {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSchema,
				"CLUSTERING ORDER BY names non-clustering column %s", name)
		}
	}
	for _, c := range s.Columns {
		if !inKey[c.Name] {
			t.Regular = append(t.Regular, catalog.Column{Name: c.Name, Type: c.Type})
		}
	}
	return t, nil
}

func (e *Executor) execCreateTable(s *parser.CreateTableStatement, sessionKeyspace string) (Result, error) {
	ks, err := e.ddlKeyspace(s.Keyspace, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	t, err := tableFromStatement(ks, s)
	if err != nil {
		return nil, err
	}
	created, err := e.catalog.CreateTable(t, s.IfNotExists)
	if err != nil {
		return nil, err
	}
	if !created {
		return &VoidResult{}, nil
	}
	e.store.CreateTable(t)
	if err := e.syncTableRows(t); err != nil {
		return nil, err
	}
	if err := e.bumpSchemaVersion(); err != nil {
		return nil, err
	}
	e.logger.Info("table created", zap.String("keyspace", ks), zap.String("table", s.Name))
	return &SchemaChangeResult{ChangeType: "CREATED", Target: "TABLE", Keyspace: ks, Object: s.Name}, nil
}

func (e *Executor) execAlterTable(s *parser.AlterTableStatement, sessionKeyspace string) (Result, error) {
	ks, err := e.ddlKeyspace(s.Keyspace, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	var updated *catalog.Table
	switch s.Op {
	case parser.AlterAdd:
		updated, err = e.catalog.AddColumn(ks, s.Name, catalog.Column{Name: s.Column, Type: s.Type})
	case parser.AlterDrop:
		updated, err = e.catalog.DropColumn(ks, s.Name, s.Column)
	default:
		err = errors.New(errors.ErrCategoryInternal, errors.CodeUnexpected, "unhandled ALTER operation")
	}
	if err != nil {
		return nil, err
	}
	td, err := e.store.Table(ks, s.Name)
	if err != nil {
		return nil, err
	}
	td.UpdateDef(updated)
	if err := e.syncTableRows(updated); err != nil {
		return nil, err
	}
	if err := e.bumpSchemaVersion(); err != nil {
		return nil, err
	}
	return &SchemaChangeResult{ChangeType: "UPDATED", Target: "TABLE", Keyspace: ks, Object: s.Name}, nil
}

func (e *Executor) execDropTable(s *parser.DropTableStatement, sessionKeyspace string) (Result, error) {
	ks, err := e.ddlKeyspace(s.Keyspace, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	dropped, err := e.catalog.DropTable(ks, s.Name, s.IfExists)
	if err != nil {
		return nil, err
	}
	if !dropped {
		return &VoidResult{}, nil
	}
	e.store.DropTable(ks, s.Name)
	if err := e.removeTableRows(ks, s.Name); err != nil {
		return nil, err
	}
	if err := e.bumpSchemaVersion(); err != nil {
		return nil, err
	}
	e.logger.Info("table dropped", zap.String("keyspace", ks), zap.String("table", s.Name))
	return &SchemaChangeResult{ChangeType: "DROPPED", Target: "TABLE", Keyspace: ks, Object: s.Name}, nil
}

func (e *Executor) execCreateIndex(s *parser.CreateIndexStatement, sessionKeyspace string) (Result, error) {
	ks, err := e.ddlKeyspace(s.Keyspace, sessionKeyspace)
	if err != nil {
		return nil, err
	}
	name := s.Name
	if name == "" {
		name = s.Table + "_" + s.Column + "_idx"
	}
	created, err := e.catalog.CreateIndex(ks, s.Table, catalog.Index{Name: name, Column: s.Column}, s.IfNotExists)
	if err != nil {
		return nil, err
	}
	if !created {
		return &VoidResult{}, nil
	}
	updated, err := e.catalog.Resolve(ks, s.Table)
	if err != nil {
		return nil, err
	}
	td, err := e.store.Table(ks, s.Table)
	if err != nil {
		return nil, err
	}
	td.UpdateDef(updated)
	if err := e.syncIndexRows(updated); err != nil {
		return nil, err
	}
	if err := e.bumpSchemaVersion(); err != nil {
		return nil, err
	}
	return &SchemaChangeResult{ChangeType: "UPDATED", Target: "TABLE", Keyspace: ks, Object: s.Table}, nil
}
