package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/minicql/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Listener.Addr = "127.0.0.1:0"
	cfg.Snapshot.Dir = filepath.Join(t.TempDir(), "snapshots")
	cfg.Logging.Level = "error"
	return cfg
}

func TestAppStartStop(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.Addr() == "" {
		t.Fatal("Addr is empty after Start")
	}
	if err := a.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop after stop: %v", err)
	}
}

func TestAppWriteSnapshot(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := a.WriteSnapshot("state.yaml")
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if filepath.Dir(path) != cfg.Snapshot.Dir {
		t.Fatalf("path = %q, want under %q", path, cfg.Snapshot.Dir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file: %v", err)
	}
}
