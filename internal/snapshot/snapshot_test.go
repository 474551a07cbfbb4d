package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/exec"
	"github.com/arkilian/minicql/internal/store"
)

func newLoadedExecutor(t *testing.T, statements []string) *exec.Executor {
	t.Helper()
	ex, err := exec.New(catalog.New(), store.New(), zap.NewNop(), exec.NodeInfo{
		ClusterName: "test cluster",
		Address:     "127.0.0.1",
		HostID:      [16]byte{1},
	})
	if err != nil {
		t.Fatalf("exec.New: %v", err)
	}
	for _, stmt := range statements {
		if _, err := ex.Query(stmt, "app", exec.BoundValues{}); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	return ex
}

var fixture = []string{
	"CREATE KEYSPACE app WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}",
	"CREATE TABLE app.events (id int, seq int, body text, PRIMARY KEY (id, seq))",
	"CREATE INDEX ON app.events (body)",
	"INSERT INTO app.events (id, seq, body) VALUES (1, 1, 'a') USING TIMESTAMP 100",
	"INSERT INTO app.events (id, seq, body) VALUES (1, 2, 'b') USING TIMESTAMP 100",
	"INSERT INTO app.events (id, seq, body) VALUES (2, 1, 'c') USING TIMESTAMP 100",
	"DELETE FROM app.events USING TIMESTAMP 101 WHERE id = 1 AND seq = 2",
}

func TestCapture(t *testing.T) {
	ex := newLoadedExecutor(t, fixture)
	snap, err := Capture(ex.Catalog(), ex.Store())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if len(snap.Keyspaces) != 1 {
		t.Fatalf("keyspaces = %d, want 1 (system keyspaces excluded)", len(snap.Keyspaces))
	}
	ks := snap.Keyspaces[0]
	if ks.Name != "app" {
		t.Fatalf("keyspace = %q", ks.Name)
	}
	if len(ks.Replication) != 2 || ks.Replication[0].Name != "class" {
		t.Fatalf("replication = %+v", ks.Replication)
	}
	if len(ks.Tables) != 1 {
		t.Fatalf("tables = %d", len(ks.Tables))
	}

	tbl := ks.Tables[0]
	if tbl.Name != "events" {
		t.Fatalf("table = %q", tbl.Name)
	}
	if len(tbl.PartitionKey) != 1 || tbl.PartitionKey[0].Name != "id" || tbl.PartitionKey[0].Type != "int" {
		t.Fatalf("partition key = %+v", tbl.PartitionKey)
	}
	if len(tbl.ClusteringKey) != 1 || tbl.ClusteringKey[0].Order != "asc" {
		t.Fatalf("clustering key = %+v", tbl.ClusteringKey)
	}
	if len(tbl.Indexes) != 1 || tbl.Indexes[0].Column != "body" {
		t.Fatalf("indexes = %+v", tbl.Indexes)
	}

	// Two partitions, the deleted row invisible.
	if len(tbl.Partitions) != 2 {
		t.Fatalf("partitions = %d, want 2", len(tbl.Partitions))
	}
	rows := 0
	for _, p := range tbl.Partitions {
		rows += len(p.Rows)
	}
	if rows != 2 {
		t.Fatalf("visible rows = %d, want 2", rows)
	}
}

func TestCaptureIsDeterministic(t *testing.T) {
	first := newLoadedExecutor(t, fixture)
	second := newLoadedExecutor(t, fixture)

	a, err := Capture(first.Catalog(), first.Store())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	b, err := Capture(second.Catalog(), second.Store())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	docA, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	docB, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(docA, docB) {
		t.Fatalf("snapshots differ:\n%s\n---\n%s", docA, docB)
	}
}

func TestWriteFile(t *testing.T) {
	ex := newLoadedExecutor(t, fixture)
	path := filepath.Join(t.TempDir(), "snapshots", "state.yaml")

	if err := WriteFile(ex.Catalog(), ex.Store(), path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	text := string(doc)
	for _, want := range []string{"name: app", "name: events", "column: body", "order: asc"} {
		if !strings.Contains(text, want) {
			t.Fatalf("snapshot missing %q:\n%s", want, text)
		}
	}
}
