package benchmark

import (
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/exec"
	"github.com/arkilian/minicql/internal/store"
)

func newBenchExecutor(b *testing.B) *exec.Executor {
	b.Helper()
	ex, err := exec.New(catalog.New(), store.New(), zap.NewNop(), exec.NodeInfo{
		ClusterName: "bench cluster",
		Address:     "127.0.0.1",
		HostID:      [16]byte{1},
	})
	if err != nil {
		b.Fatalf("exec.New: %v", err)
	}
	mustQuery(b, ex, "CREATE KEYSPACE bench WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}")
	mustQuery(b, ex, "CREATE TABLE bench.events (id int, seq int, body text, PRIMARY KEY (id, seq))")
	return ex
}

func mustQuery(b *testing.B, ex *exec.Executor, cql string) {
	b.Helper()
	if _, err := ex.Query(cql, "", exec.BoundValues{}); err != nil {
		b.Fatalf("%s: %v", cql, err)
	}
}

func BenchmarkInsert(b *testing.B) {
	ex := newBenchExecutor(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cql := fmt.Sprintf("INSERT INTO bench.events (id, seq, body) VALUES (%d, %d, 'payload')", i%64, i)
		if _, err := ex.Query(cql, "", exec.BoundValues{}); err != nil {
			b.Fatalf("insert: %v", err)
		}
	}
}

func BenchmarkPreparedInsert(b *testing.B) {
	ex := newBenchExecutor(b)
	prepared, err := ex.Prepare("INSERT INTO bench.events (id, seq, body) VALUES (?, ?, ?)", "")
	if err != nil {
		b.Fatalf("prepare: %v", err)
	}
	body := []byte("payload")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := int32(i % 64)
		vals := exec.BoundValues{Positional: []exec.Param{
			{Data: []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}},
			{Data: []byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)}},
			{Data: body},
		}}
		if _, err := ex.Execute(prepared.ID, "", vals); err != nil {
			b.Fatalf("execute: %v", err)
		}
	}
}

func BenchmarkSelectPartition(b *testing.B) {
	ex := newBenchExecutor(b)
	for i := 0; i < 1000; i++ {
		mustQuery(b, ex, fmt.Sprintf("INSERT INTO bench.events (id, seq, body) VALUES (%d, %d, 'payload')", i%10, i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ex.Query("SELECT seq, body FROM bench.events WHERE id = 3 LIMIT 50", "", exec.BoundValues{}); err != nil {
			b.Fatalf("select: %v", err)
		}
	}
}

func BenchmarkScanWithFilter(b *testing.B) {
	ex := newBenchExecutor(b)
	for i := 0; i < 1000; i++ {
		mustQuery(b, ex, fmt.Sprintf("INSERT INTO bench.events (id, seq, body) VALUES (%d, %d, 'payload')", i%10, i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ex.Query("SELECT id FROM bench.events WHERE seq > 900 ALLOW FILTERING", "", exec.BoundValues{}); err != nil {
			b.Fatalf("scan: %v", err)
		}
	}
}
