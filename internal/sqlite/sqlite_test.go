package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_CreatesFileAndConnects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")
	db, err := Open(context.Background(), DefaultConfig(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file to be created: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE t (id TEXT)"); err != nil {
		t.Fatalf("exec on fresh database: %v", err)
	}
}

func TestOpen_ExistingFileIsReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	ctx := context.Background()

	db, err := Open(ctx, DefaultConfig(path))
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE persisted (id TEXT)"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	db.Close()

	db, err = Open(ctx, DefaultConfig(path))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var count int
	err = db.QueryRow("SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'persisted'").Scan(&count)
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	if count != 1 {
		t.Fatal("expected seeded table to survive reopen")
	}
}

func TestOpen_AppliesJournalMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := Open(context.Background(), DefaultConfig(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected wal journal mode, got %s", mode)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty path", Config{}},
		{"negative busy timeout", Config{Path: "/tmp/x.db", BusyTimeout: -time.Second}},
		{"bad journal mode", Config{Path: "/tmp/x.db", JournalMode: "SIDEWAYS"}},
		{"negative max conns", Config{Path: "/tmp/x.db", MaxOpenConns: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(context.Background(), tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/data/app.db")
	if cfg.Path != "/data/app.db" {
		t.Errorf("Path: got %s", cfg.Path)
	}
	if cfg.BusyTimeout != 30*time.Second {
		t.Errorf("BusyTimeout: got %s", cfg.BusyTimeout)
	}
	if cfg.JournalMode != "WAL" {
		t.Errorf("JournalMode: got %s", cfg.JournalMode)
	}
	if !cfg.EnableForeignKeys {
		t.Error("expected foreign keys enabled")
	}
	if cfg.MaxOpenConns != 1 {
		t.Errorf("MaxOpenConns: got %d", cfg.MaxOpenConns)
	}
}
