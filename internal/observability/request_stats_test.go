package observability

import (
	"sync"
	"testing"
	"time"
)

func TestRecordAndOpcode(t *testing.T) {
	stats := NewRequestStats()

	stats.Record("QUERY", 10*time.Millisecond, false)
	stats.Record("QUERY", 30*time.Millisecond, true)
	stats.Record("PREPARE", 5*time.Millisecond, false)

	q := stats.Opcode("QUERY")
	if q == nil {
		t.Fatal("QUERY stats missing")
	}
	if q.Count != 2 {
		t.Errorf("count = %d, want 2", q.Count)
	}
	if q.Errors != 1 {
		t.Errorf("errors = %d, want 1", q.Errors)
	}
	if q.Max != 30*time.Millisecond {
		t.Errorf("max = %v, want 30ms", q.Max)
	}
	if q.Mean() != 20*time.Millisecond {
		t.Errorf("mean = %v, want 20ms", q.Mean())
	}
	if stats.Total() != 3 {
		t.Errorf("total = %d, want 3", stats.Total())
	}
	if stats.Opcode("BATCH") != nil {
		t.Error("expected nil for unrecorded opcode")
	}
}

func TestSnapshotOrdering(t *testing.T) {
	stats := NewRequestStats()
	stats.Record("EXECUTE", time.Millisecond, false)
	stats.Record("QUERY", time.Millisecond, false)
	stats.Record("QUERY", time.Millisecond, false)
	stats.Record("BATCH", time.Millisecond, false)

	snap := stats.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot entries = %d, want 3", len(snap))
	}
	if snap[0].Opcode != "QUERY" {
		t.Errorf("first = %s, want QUERY", snap[0].Opcode)
	}
	// Equal counts sort by name.
	if snap[1].Opcode != "BATCH" || snap[2].Opcode != "EXECUTE" {
		t.Errorf("tie order = %s, %s", snap[1].Opcode, snap[2].Opcode)
	}
}

func TestRecordConcurrent(t *testing.T) {
	stats := NewRequestStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.Record("QUERY", time.Microsecond, j%10 == 0)
			}
		}()
	}
	wg.Wait()

	q := stats.Opcode("QUERY")
	if q.Count != 800 {
		t.Errorf("count = %d, want 800", q.Count)
	}
	if q.Errors != 80 {
		t.Errorf("errors = %d, want 80", q.Errors)
	}
}
