package migration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/deploykit-migrator/internal/sqlite"
)

// newTestDB opens a file-backed SQLite database in a per-test temp dir.
// File-backed rather than :memory: so backup snapshots and restores have a
// real target file to work against.
func newTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.db")
	db, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

// newTestLog returns an initialized migration log over a fresh database.
func newTestLog(t *testing.T) (*SQLLog, *sql.DB) {
	t.Helper()
	db, _ := newTestDB(t)
	log := NewSQLLog(db)
	if err := log.Init(context.Background()); err != nil {
		t.Fatalf("init migration log: %v", err)
	}
	return log, db
}

// writeMigrationFiles populates dir with the given filename -> payload map.
func writeMigrationFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write migration file %s: %v", name, err)
		}
	}
}

// testEngine wires a full runner over one temp database and migration dir.
type testEngine struct {
	db        *sql.DB
	dbPath    string
	dir       string
	backupDir string
	log       *SQLLog
	locks     *SQLLockManager
	runner    *Runner
}

func newTestEngine(t *testing.T, files map[string]string) *testEngine {
	t.Helper()
	db, dbPath := newTestDB(t)
	dir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")
	writeMigrationFiles(t, dir, files)

	log := NewSQLLog(db)
	locks := NewSQLLockManager(db)
	catalog := NewDirCatalog(dir)
	executor := NewSQLExecutor(db, log, "test@host")
	backups := NewFileBackupManager(db, dbPath, backupDir)
	runner := NewRunner(db, catalog, log, locks, executor, backups, "migration", time.Minute)

	return &testEngine{
		db:        db,
		dbPath:    dbPath,
		dir:       dir,
		backupDir: backupDir,
		log:       log,
		locks:     locks,
		runner:    runner,
	}
}

func mustRecord(t *testing.T, log *SQLLog, rec Record) {
	t.Helper()
	if err := log.Record(context.Background(), rec); err != nil {
		t.Fatalf("record %s: %v", rec.Name, err)
	}
}

func countRecords(t *testing.T, db *sql.DB) int {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM " + logTable).Scan(&count); err != nil {
		t.Fatalf("count records: %v", err)
	}
	return count
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return count > 0
}
