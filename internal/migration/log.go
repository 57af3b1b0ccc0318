package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
)

// logTable holds one row per migration name. It lives in the same database
// as the schema being migrated, so log state shares the target's
// transactional universe.
const logTable = "schema_migrations"

// timeLayout is used for every persisted timestamp. A fixed-width UTC format
// keeps lexicographic and chronological order aligned, which the lock expiry
// comparison relies on.
const timeLayout = time.RFC3339

// SQLLog implements Log on top of the target database.
type SQLLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLLog returns a migration log backed by db.
func NewSQLLog(db *sql.DB) *SQLLog {
	return &SQLLog{db: db, now: time.Now}
}

// Init creates the backing table if absent. Calling it repeatedly is safe.
func (l *SQLLog) Init(ctx context.Context) error {
	const create = `CREATE TABLE IF NOT EXISTS ` + logTable + ` (
	name TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL,
	checksum TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	rollback_sql TEXT,
	applied_by TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schema_migrations_status ON ` + logTable + ` (status);`
	if _, err := l.db.ExecContext(ctx, create); err != nil {
		return &StoreError{Op: "create migration log table", Err: err}
	}
	return nil
}

// IsApplied reports whether name has a record in status applied.
func (l *SQLLog) IsApplied(ctx context.Context, name string) (bool, error) {
	query, args, err := squirrel.Select("COUNT(1)").
		From(logTable).
		Where(squirrel.Eq{"name": name, "status": string(StatusApplied)}).
		ToSql()
	if err != nil {
		return false, &StoreError{Op: "build applied query", Err: err}
	}
	var count int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, &StoreError{Op: "check applied", Err: err}
	}
	return count > 0, nil
}

// Record upserts rec keyed by name. Reapplying overwrites status, timestamp
// and checksum while the name stays unique.
func (l *SQLLog) Record(ctx context.Context, rec Record) error {
	appliedAt := rec.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = l.now()
	}
	query, args, err := squirrel.Insert(logTable).
		Columns("name", "applied_at", "checksum", "execution_time_ms", "status",
			"error_message", "rollback_sql", "applied_by").
		Values(rec.Name, appliedAt.UTC().Format(timeLayout), rec.Checksum, rec.ExecutionTimeMs,
			string(rec.Status), rec.ErrorMessage, rec.RollbackStatements, rec.AppliedBy).
		Suffix(`ON CONFLICT(name) DO UPDATE SET
	applied_at = excluded.applied_at,
	checksum = excluded.checksum,
	execution_time_ms = excluded.execution_time_ms,
	status = excluded.status,
	error_message = excluded.error_message,
	rollback_sql = excluded.rollback_sql,
	applied_by = excluded.applied_by`).
		ToSql()
	if err != nil {
		return &StoreError{Op: "build record upsert", Err: err}
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return &StoreError{Op: "record migration " + rec.Name, Err: err}
	}
	return nil
}

// Get returns the record for name, or nil when none exists.
func (l *SQLLog) Get(ctx context.Context, name string) (*Record, error) {
	query, args, err := recordSelect().
		Where(squirrel.Eq{"name": name}).
		ToSql()
	if err != nil {
		return nil, &StoreError{Op: "build record query", Err: err}
	}
	var row recordRow
	if err := sqlscan.Get(ctx, l.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil
		}
		return nil, &StoreError{Op: "get record " + name, Err: err}
	}
	rec, err := row.toRecord()
	if err != nil {
		return nil, &StoreError{Op: "decode record " + name, Err: err}
	}
	return rec, nil
}

// List returns up to limit records, most recently applied first. A limit of
// zero or less means no limit.
func (l *SQLLog) List(ctx context.Context, limit int) ([]Record, error) {
	builder := recordSelect().OrderBy("applied_at DESC", "name DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, &StoreError{Op: "build list query", Err: err}
	}
	var rows []recordRow
	if err := sqlscan.Select(ctx, l.db, &rows, query, args...); err != nil {
		return nil, &StoreError{Op: "list records", Err: err}
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, &StoreError{Op: "decode record " + row.Name, Err: err}
		}
		records = append(records, *rec)
	}
	return records, nil
}

// CountByStatus counts records with the given status.
func (l *SQLLog) CountByStatus(ctx context.Context, status Status) (int, error) {
	query, args, err := squirrel.Select("COUNT(1)").
		From(logTable).
		Where(squirrel.Eq{"status": string(status)}).
		ToSql()
	if err != nil {
		return 0, &StoreError{Op: "build count query", Err: err}
	}
	var count int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, &StoreError{Op: "count by status", Err: err}
	}
	return count, nil
}

func recordSelect() squirrel.SelectBuilder {
	return squirrel.Select(
		"name",
		"applied_at",
		"checksum",
		"execution_time_ms",
		"status",
		"COALESCE(error_message, '') AS error_message",
		"COALESCE(rollback_sql, '') AS rollback_sql",
		"applied_by",
	).From(logTable)
}

// recordRow mirrors the table layout; timestamps are persisted as text.
type recordRow struct {
	Name            string `db:"name"`
	AppliedAt       string `db:"applied_at"`
	Checksum        string `db:"checksum"`
	ExecutionTimeMs int64  `db:"execution_time_ms"`
	Status          string `db:"status"`
	ErrorMessage    string `db:"error_message"`
	RollbackSQL     string `db:"rollback_sql"`
	AppliedBy       string `db:"applied_by"`
}

func (r recordRow) toRecord() (*Record, error) {
	appliedAt, err := time.Parse(timeLayout, r.AppliedAt)
	if err != nil {
		return nil, fmt.Errorf("parse applied_at %q: %w", r.AppliedAt, err)
	}
	return &Record{
		Name:               r.Name,
		AppliedAt:          appliedAt,
		Checksum:           r.Checksum,
		ExecutionTimeMs:    r.ExecutionTimeMs,
		Status:             Status(r.Status),
		ErrorMessage:       r.ErrorMessage,
		RollbackStatements: r.RollbackSQL,
		AppliedBy:          r.AppliedBy,
	}, nil
}
