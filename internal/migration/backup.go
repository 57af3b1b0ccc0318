package migration

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/example/deploykit-migrator/internal/logging"
)

// sqliteHeader prefixes every valid SQLite database file.
var sqliteHeader = []byte("SQLite format 3\x00")

// FileBackupManager snapshots the target database with VACUUM INTO and
// restores snapshots by replacing the database file. Snapshots are never
// deleted by the engine; retention is an operator concern.
type FileBackupManager struct {
	db        *sql.DB // may be nil for restore-only use
	dbPath    string
	backupDir string
	now       func() time.Time
	newID     func() string
}

// NewFileBackupManager returns a backup manager for the database at dbPath.
// db is the live handle used for snapshots; pass nil when the manager is
// only used to restore (the target must not be open during a restore).
func NewFileBackupManager(db *sql.DB, dbPath, backupDir string) *FileBackupManager {
	return &FileBackupManager{
		db:        db,
		dbPath:    dbPath,
		backupDir: backupDir,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Snapshot dumps the target's current state into the backup directory and
// returns the snapshot path. A failed dump aborts loudly; the runner treats
// it as fatal before any migration is attempted.
func (b *FileBackupManager) Snapshot(ctx context.Context, label string) (BackupRef, error) {
	if b.db == nil {
		return "", fmt.Errorf("%w: no database handle", ErrBackupFailed)
	}
	if err := os.MkdirAll(b.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create backup directory: %v", ErrBackupFailed, err)
	}
	if label == "" {
		label = "backup"
	}
	name := fmt.Sprintf("%s_%s_%s.db", label, b.now().UTC().Format("20060102T150405"), b.newID()[:8])
	path := filepath.Join(b.backupDir, name)

	if _, err := b.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}
	logging.FromContext(ctx).Info("backup snapshot taken", "ref", path)
	return BackupRef(path), nil
}

// Restore recreates the target database from ref. Destructive: all state
// written since the snapshot is discarded, so force must be set explicitly.
// Every handle to the target must be closed before calling; the CLI
// sequences that.
func (b *FileBackupManager) Restore(ctx context.Context, ref BackupRef, force bool) error {
	if !force {
		return fmt.Errorf("%w: restore of %s", ErrConfirmationRequired, ref)
	}
	if err := b.verifySnapshot(string(ref)); err != nil {
		return err
	}

	// Replace via a sibling temp file so a failed copy never leaves the
	// target half-written.
	tmp := b.dbPath + ".restore-tmp"
	if err := copyFile(string(ref), tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrRestoreFailed, err)
	}
	if err := os.Rename(tmp, b.dbPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replace target: %v", ErrRestoreFailed, err)
	}
	// Stale WAL sidecars would shadow the restored state on next open.
	os.Remove(b.dbPath + "-wal")
	os.Remove(b.dbPath + "-shm")

	logging.FromContext(ctx).Info("database restored from snapshot", "ref", string(ref))
	return nil
}

func (b *FileBackupManager) verifySnapshot(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open snapshot: %v", ErrRestoreFailed, err)
	}
	defer file.Close()

	header := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(file, header); err != nil {
		return fmt.Errorf("%w: read snapshot header: %v", ErrRestoreFailed, err)
	}
	if !bytes.Equal(header, sqliteHeader) {
		return fmt.Errorf("%w: %s is not a SQLite database", ErrRestoreFailed, path)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
