package parser

import (
	"testing"

	"github.com/arkilian/minicql/pkg/types"
)

func mustParse(t *testing.T, input string) Statement {
	t.Helper()
	stmt, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	return stmt
}

func litText(t *testing.T, term Term) string {
	t.Helper()
	lit, ok := term.(*Literal)
	if !ok {
		t.Fatalf("term = %T, want *Literal", term)
	}
	return lit.Text
}

func TestParse_Use(t *testing.T) {
	stmt := mustParse(t, "USE store;").(*UseStatement)
	if stmt.Keyspace != "store" {
		t.Errorf("keyspace = %q, want store", stmt.Keyspace)
	}
}

func TestParse_CreateKeyspace(t *testing.T) {
	stmt := mustParse(t, `CREATE KEYSPACE IF NOT EXISTS store
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}
		AND durable_writes = true`).(*CreateKeyspaceStatement)
	if stmt.Name != "store" {
		t.Errorf("name = %q, want store", stmt.Name)
	}
	if !stmt.IfNotExists {
		t.Error("IfNotExists = false, want true")
	}
	repl, ok := stmt.Options["replication"].(*Literal)
	if !ok || repl.Kind != LitMap {
		t.Fatalf("replication option = %#v, want map literal", stmt.Options["replication"])
	}
	if len(repl.Entries) != 2 {
		t.Errorf("replication entries = %d, want 2", len(repl.Entries))
	}
}

func TestParse_DropKeyspace(t *testing.T) {
	stmt := mustParse(t, "DROP KEYSPACE IF EXISTS store").(*DropKeyspaceStatement)
	if stmt.Name != "store" || !stmt.IfExists {
		t.Errorf("got %+v, want name=store IfExists=true", stmt)
	}
}

func TestParse_CreateTable(t *testing.T) {
	stmt := mustParse(t, `CREATE TABLE store.orders (
		customer text,
		bucket int,
		placed_at timestamp,
		id uuid,
		total decimal,
		tags set<text>,
		meta map<text, text>,
		PRIMARY KEY ((customer, bucket), placed_at, id)
	) WITH CLUSTERING ORDER BY (placed_at DESC, id ASC) AND comment = 'orders'`).(*CreateTableStatement)

	if stmt.Keyspace != "store" || stmt.Name != "orders" {
		t.Errorf("table = %s.%s, want store.orders", stmt.Keyspace, stmt.Name)
	}
	if len(stmt.Columns) != 7 {
		t.Fatalf("columns = %d, want 7", len(stmt.Columns))
	}
	if stmt.Columns[5].Type.Kind != types.KindSet {
		t.Errorf("tags type = %s, want set<text>", stmt.Columns[5].Type)
	}
	if stmt.Columns[6].Type.Kind != types.KindMap {
		t.Errorf("meta type = %s, want map<text, text>", stmt.Columns[6].Type)
	}
	wantPK := []string{"customer", "bucket"}
	if len(stmt.PartitionKey) != 2 || stmt.PartitionKey[0] != wantPK[0] || stmt.PartitionKey[1] != wantPK[1] {
		t.Errorf("partition key = %v, want %v", stmt.PartitionKey, wantPK)
	}
	wantCK := []string{"placed_at", "id"}
	if len(stmt.ClusteringKey) != 2 || stmt.ClusteringKey[0] != wantCK[0] || stmt.ClusteringKey[1] != wantCK[1] {
		t.Errorf("clustering key = %v, want %v", stmt.ClusteringKey, wantCK)
	}
	if len(stmt.ClusteringOrder) != 2 || !stmt.ClusteringOrder[0].Desc || stmt.ClusteringOrder[1].Desc {
		t.Errorf("clustering order = %v, want placed_at DESC, id ASC", stmt.ClusteringOrder)
	}
}

func TestParse_CreateTableInlineKey(t *testing.T) {
	stmt := mustParse(t, "CREATE TABLE kv (key text PRIMARY KEY, value blob)").(*CreateTableStatement)
	if len(stmt.PartitionKey) != 1 || stmt.PartitionKey[0] != "key" {
		t.Errorf("partition key = %v, want [key]", stmt.PartitionKey)
	}
	if len(stmt.ClusteringKey) != 0 {
		t.Errorf("clustering key = %v, want empty", stmt.ClusteringKey)
	}
}

func TestParse_AlterTable(t *testing.T) {
	add := mustParse(t, "ALTER TABLE store.orders ADD note text").(*AlterTableStatement)
	if add.Op != AlterAdd || add.Column != "note" || add.Type.Kind != types.KindText {
		t.Errorf("got %+v, want ADD note text", add)
	}

	drop := mustParse(t, "ALTER TABLE orders DROP note").(*AlterTableStatement)
	if drop.Op != AlterDrop || drop.Column != "note" {
		t.Errorf("got %+v, want DROP note", drop)
	}
}

func TestParse_CreateIndex(t *testing.T) {
	stmt := mustParse(t, "CREATE INDEX IF NOT EXISTS by_total ON store.orders (total)").(*CreateIndexStatement)
	if stmt.Name != "by_total" || stmt.Table != "orders" || stmt.Column != "total" || !stmt.IfNotExists {
		t.Errorf("got %+v", stmt)
	}

	unnamed := mustParse(t, "CREATE INDEX ON orders (total)").(*CreateIndexStatement)
	if unnamed.Name != "" || unnamed.Column != "total" {
		t.Errorf("got %+v, want unnamed index on total", unnamed)
	}
}

func TestParse_Insert(t *testing.T) {
	stmt := mustParse(t, `INSERT INTO store.orders (customer, bucket, total)
		VALUES ('ada', 1, 19.99) IF NOT EXISTS USING TIMESTAMP 1000`).(*InsertStatement)
	if stmt.Keyspace != "store" || stmt.Table != "orders" {
		t.Errorf("table = %s.%s, want store.orders", stmt.Keyspace, stmt.Table)
	}
	if len(stmt.Columns) != 3 || len(stmt.Values) != 3 {
		t.Fatalf("columns/values = %d/%d, want 3/3", len(stmt.Columns), len(stmt.Values))
	}
	if got := litText(t, stmt.Values[0]); got != "ada" {
		t.Errorf("first value = %q, want ada", got)
	}
	if !stmt.IfNotExists {
		t.Error("IfNotExists = false, want true")
	}
	if got := litText(t, stmt.Using.Timestamp); got != "1000" {
		t.Errorf("timestamp = %q, want 1000", got)
	}
}

func TestParse_InsertJson(t *testing.T) {
	stmt := mustParse(t, `INSERT INTO orders JSON '{"customer": "ada"}'`).(*InsertStatement)
	if stmt.JSON == nil {
		t.Fatal("JSON term is nil")
	}
	if len(stmt.Columns) != 0 {
		t.Errorf("columns = %v, want empty", stmt.Columns)
	}
}

func TestParse_InsertColumnValueMismatch(t *testing.T) {
	_, err := Parse("INSERT INTO t (a, b) VALUES (1)")
	if err == nil {
		t.Fatal("expected error for column/value count mismatch")
	}
}

func TestParse_Update(t *testing.T) {
	stmt := mustParse(t, `UPDATE store.orders USING TIMESTAMP 99
		SET total = 25.00, note = 'rush'
		WHERE customer = 'ada' AND bucket = 1
		IF total = 19.99`).(*UpdateStatement)
	if len(stmt.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(stmt.Assignments))
	}
	if stmt.Assignments[0].Column != "total" {
		t.Errorf("first assignment = %q, want total", stmt.Assignments[0].Column)
	}
	if len(stmt.Where) != 2 {
		t.Fatalf("relations = %d, want 2", len(stmt.Where))
	}
	if len(stmt.Conditions) != 1 || stmt.Conditions[0].Column != "total" {
		t.Errorf("conditions = %+v, want one on total", stmt.Conditions)
	}
	if got := litText(t, stmt.Using.Timestamp); got != "99" {
		t.Errorf("timestamp = %q, want 99", got)
	}
}

func TestParse_UpdateIfExists(t *testing.T) {
	stmt := mustParse(t, "UPDATE t SET v = 1 WHERE k = 2 IF EXISTS").(*UpdateStatement)
	if !stmt.IfExists {
		t.Error("IfExists = false, want true")
	}
	if len(stmt.Conditions) != 0 {
		t.Errorf("conditions = %+v, want empty", stmt.Conditions)
	}
}

func TestParse_Delete(t *testing.T) {
	stmt := mustParse(t, `DELETE note, total FROM store.orders USING TIMESTAMP 7
		WHERE customer = 'ada' AND bucket = 1 AND placed_at = 1000`).(*DeleteStatement)
	if len(stmt.Columns) != 2 || stmt.Columns[0] != "note" {
		t.Errorf("columns = %v, want [note total]", stmt.Columns)
	}
	if len(stmt.Where) != 3 {
		t.Errorf("relations = %d, want 3", len(stmt.Where))
	}

	whole := mustParse(t, "DELETE FROM t WHERE k = 1").(*DeleteStatement)
	if len(whole.Columns) != 0 {
		t.Errorf("columns = %v, want empty for whole-row delete", whole.Columns)
	}
}

func TestParse_Select(t *testing.T) {
	stmt := mustParse(t, `SELECT customer, total AS amount, toJson(meta)
		FROM store.orders
		WHERE customer = 'ada' AND bucket IN (1, 2) AND placed_at >= 500
		ORDER BY placed_at DESC LIMIT 20 ALLOW FILTERING`).(*SelectStatement)

	if len(stmt.Selectors) != 3 {
		t.Fatalf("selectors = %d, want 3", len(stmt.Selectors))
	}
	if stmt.Selectors[1].Alias != "amount" {
		t.Errorf("alias = %q, want amount", stmt.Selectors[1].Alias)
	}
	if !stmt.Selectors[2].ToJson || stmt.Selectors[2].Column != "meta" {
		t.Errorf("third selector = %+v, want toJson(meta)", stmt.Selectors[2])
	}

	if len(stmt.Where) != 3 {
		t.Fatalf("relations = %d, want 3", len(stmt.Where))
	}
	if stmt.Where[1].Op != OpIn || len(stmt.Where[1].Values) != 2 {
		t.Errorf("second relation = %+v, want IN with 2 values", stmt.Where[1])
	}
	if stmt.Where[2].Op != OpGe {
		t.Errorf("third relation op = %s, want >=", stmt.Where[2].Op)
	}

	if len(stmt.OrderBy) != 1 || !stmt.OrderBy[0].Desc {
		t.Errorf("order by = %+v, want placed_at DESC", stmt.OrderBy)
	}
	if got := litText(t, stmt.Limit); got != "20" {
		t.Errorf("limit = %q, want 20", got)
	}
	if !stmt.AllowFiltering {
		t.Error("AllowFiltering = false, want true")
	}
}

func TestParse_SelectStar(t *testing.T) {
	stmt := mustParse(t, "SELECT * FROM t").(*SelectStatement)
	if len(stmt.Selectors) != 1 || !stmt.Selectors[0].Star {
		t.Errorf("selectors = %+v, want single star", stmt.Selectors)
	}
}

func TestParse_SelectJson(t *testing.T) {
	stmt := mustParse(t, "SELECT JSON * FROM t WHERE k = 1").(*SelectStatement)
	if !stmt.JSON {
		t.Error("JSON = false, want true")
	}
}

func TestParse_UnreservedKeywordColumns(t *testing.T) {
	stmt := mustParse(t, "SELECT * FROM system.local WHERE key = 'local'").(*SelectStatement)
	if len(stmt.Where) != 1 || stmt.Where[0].Column != "key" {
		t.Fatalf("where = %+v, want single relation on key", stmt.Where)
	}

	stmt = mustParse(t, "SELECT key, TIMESTAMP FROM system.local").(*SelectStatement)
	if len(stmt.Selectors) != 2 {
		t.Fatalf("selectors = %d, want 2", len(stmt.Selectors))
	}
	if stmt.Selectors[0].Column != "key" || stmt.Selectors[1].Column != "timestamp" {
		t.Errorf("selectors = %+v, want key and timestamp", stmt.Selectors)
	}

	del := mustParse(t, "DELETE ttl FROM t WHERE key = 1").(*DeleteStatement)
	if len(del.Columns) != 1 || del.Columns[0] != "ttl" {
		t.Errorf("delete columns = %+v, want [ttl]", del.Columns)
	}

	ins := mustParse(t, "INSERT INTO t (key, json) VALUES (1, 2)").(*InsertStatement)
	if len(ins.Columns) != 2 || ins.Columns[0] != "key" || ins.Columns[1] != "json" {
		t.Errorf("insert columns = %+v, want [key json]", ins.Columns)
	}
}

func TestParse_BindMarkers(t *testing.T) {
	stmt := mustParse(t, "INSERT INTO t (a, b, c) VALUES (?, :name, ?)").(*InsertStatement)
	first, ok := stmt.Values[0].(*BindMarker)
	if !ok || first.Index != 0 || first.Name != "" {
		t.Errorf("first marker = %+v, want positional index 0", stmt.Values[0])
	}
	named, ok := stmt.Values[1].(*BindMarker)
	if !ok || named.Index != 1 || named.Name != "name" {
		t.Errorf("second marker = %+v, want :name index 1", stmt.Values[1])
	}
	third, ok := stmt.Values[2].(*BindMarker)
	if !ok || third.Index != 2 {
		t.Errorf("third marker = %+v, want index 2", stmt.Values[2])
	}
}

func TestParse_BindMarkersInClauses(t *testing.T) {
	stmt := mustParse(t, "SELECT * FROM t WHERE k = ? LIMIT ?").(*SelectStatement)
	if _, ok := stmt.Where[0].Value.(*BindMarker); !ok {
		t.Errorf("where value = %T, want *BindMarker", stmt.Where[0].Value)
	}
	if _, ok := stmt.Limit.(*BindMarker); !ok {
		t.Errorf("limit = %T, want *BindMarker", stmt.Limit)
	}

	ts := mustParse(t, "UPDATE t USING TIMESTAMP ? SET v = 1 WHERE k = 1").(*UpdateStatement)
	if _, ok := ts.Using.Timestamp.(*BindMarker); !ok {
		t.Errorf("using timestamp = %T, want *BindMarker", ts.Using.Timestamp)
	}
}

func TestParse_CollectionLiterals(t *testing.T) {
	stmt := mustParse(t, `INSERT INTO t (a, b, c, d) VALUES
		([1, 2], {'x', 'y'}, {'k': 1}, (1, 'two'))`).(*InsertStatement)

	list := stmt.Values[0].(*Literal)
	if list.Kind != LitList || len(list.Elems) != 2 {
		t.Errorf("first value = %+v, want list of 2", list)
	}
	set := stmt.Values[1].(*Literal)
	if set.Kind != LitSet || len(set.Elems) != 2 {
		t.Errorf("second value = %+v, want set of 2", set)
	}
	m := stmt.Values[2].(*Literal)
	if m.Kind != LitMap || len(m.Entries) != 1 {
		t.Errorf("third value = %+v, want map of 1", m)
	}
	tup := stmt.Values[3].(*Literal)
	if tup.Kind != LitTuple || len(tup.Elems) != 2 {
		t.Errorf("fourth value = %+v, want tuple of 2", tup)
	}
}

func TestParse_EmptyBraces(t *testing.T) {
	stmt := mustParse(t, "INSERT INTO t (a) VALUES ({})").(*InsertStatement)
	lit := stmt.Values[0].(*Literal)
	if lit.Kind != LitMap || len(lit.Entries) != 0 || len(lit.Elems) != 0 {
		t.Errorf("empty braces = %+v, want empty map literal", lit)
	}
}

func TestParse_Batch(t *testing.T) {
	stmt := mustParse(t, `BEGIN UNLOGGED BATCH
		INSERT INTO t (k, v) VALUES (1, 'a');
		UPDATE t SET v = 'b' WHERE k = 2;
		DELETE FROM t WHERE k = 3;
	APPLY BATCH`).(*BatchStatement)

	if !stmt.Unlogged {
		t.Error("Unlogged = false, want true")
	}
	if len(stmt.Children) != 3 {
		t.Fatalf("children = %d, want 3", len(stmt.Children))
	}
	if _, ok := stmt.Children[0].(*InsertStatement); !ok {
		t.Errorf("first child = %T, want *InsertStatement", stmt.Children[0])
	}
	if _, ok := stmt.Children[2].(*DeleteStatement); !ok {
		t.Errorf("third child = %T, want *DeleteStatement", stmt.Children[2])
	}
}

func TestParse_BatchRejectsSelect(t *testing.T) {
	_, err := Parse("BEGIN BATCH SELECT * FROM t; APPLY BATCH")
	if err == nil {
		t.Fatal("expected error for SELECT in batch")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "FLY ME TO THE MOON"},
		{"select without from", "SELECT a b c"},
		{"trailing input", "SELECT * FROM t extra"},
		{"unterminated values", "INSERT INTO t (a) VALUES (1"},
		{"bad operator", "SELECT * FROM t WHERE k != 1"},
		{"create without kind", "CREATE SOMETHING x"},
		{"bad type", "CREATE TABLE t (a whatsit PRIMARY KEY)"},
		{"unterminated batch", "BEGIN BATCH INSERT INTO t (a) VALUES (1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("SELECT * FROM t WHERE k ~ 1")
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error = %T, want *ParseError", err)
	}
	if pe.Position != 24 {
		t.Errorf("position = %d, want 24", pe.Position)
	}
}
