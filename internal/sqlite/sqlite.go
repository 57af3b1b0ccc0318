// Package sqlite manages connections to the SQLite database targeted by the
// migration engine. It owns DSN validation, database file creation, pragma
// configuration and connection pool tuning so that the engine packages only
// ever see a ready *sql.DB.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config holds SQLite connection settings.
type Config struct {
	// Path is the database file path.
	Path string

	// BusyTimeout sets how long to wait for database locks.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, ...).
	JournalMode string

	// EnableForeignKeys enables foreign key constraint checking.
	EnableForeignKeys bool

	// MaxOpenConns caps open connections. Migration runs are sequential, so a
	// single connection avoids SQLITE_BUSY between the log, lock and executor.
	MaxOpenConns int
}

// DefaultConfig returns connection settings suitable for migration runs.
func DefaultConfig(path string) Config {
	return Config{
		Path:              path,
		BusyTimeout:       30 * time.Second,
		JournalMode:       "WAL",
		EnableForeignKeys: true,
		MaxOpenConns:      1,
	}
}

// Open validates the configuration, creates the database file if absent and
// returns a configured connection pool.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid sqlite configuration: %w", err)
	}
	if err := createFile(cfg.Path); err != nil {
		return nil, fmt.Errorf("create database file: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := configure(ctx, db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}

// configure applies PRAGMA settings to every new connection in the pool.
func configure(ctx context.Context, db *sql.DB, cfg Config) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA journal_mode = %s", cfg.JournalMode))
	}
	if cfg.EnableForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("set %s: %w", pragma, err)
		}
	}
	return nil
}

func createFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return file.Close()
}

func validate(cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if cfg.BusyTimeout < 0 {
		return fmt.Errorf("busy timeout cannot be negative")
	}
	switch cfg.JournalMode {
	case "", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("invalid journal mode: %s", cfg.JournalMode)
	}
	if cfg.MaxOpenConns < 0 {
		return fmt.Errorf("max open connections cannot be negative")
	}
	return nil
}
