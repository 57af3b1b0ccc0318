package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// lockTable holds at most one live row per lock name. Rows are inserted on
// acquire and deleted on release; an expired row is purged by the next
// acquirer, which heals locks abandoned by crashed holders.
const lockTable = "schema_lock"

// SQLLockManager implements LockManager on top of the target database.
type SQLLockManager struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// NewSQLLockManager returns a lock manager backed by db.
func NewSQLLockManager(db *sql.DB) *SQLLockManager {
	return &SQLLockManager{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Init creates the lock table if absent. Calling it repeatedly is safe.
func (m *SQLLockManager) Init(ctx context.Context) error {
	const create = `CREATE TABLE IF NOT EXISTS ` + lockTable + ` (
	lock_name TEXT PRIMARY KEY,
	locked_at TEXT NOT NULL,
	locked_by TEXT NOT NULL,
	expires_at TEXT NOT NULL
);`
	if _, err := m.db.ExecContext(ctx, create); err != nil {
		return &StoreError{Op: "create lock table", Err: err}
	}
	return nil
}

// Acquire purges any expired row for name and then attempts an atomic
// insert-if-absent. The returned token identifies this owner and is required
// by Release. Store errors fail closed: acquired is false and the error is
// propagated, never optimistically swallowed.
func (m *SQLLockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	now := m.now().UTC()

	purge, args, err := squirrel.Delete(lockTable).
		Where(squirrel.Eq{"lock_name": name}).
		Where(squirrel.LtOrEq{"expires_at": now.Format(timeLayout)}).
		ToSql()
	if err != nil {
		return "", false, &StoreError{Op: "build lock purge", Err: err}
	}
	if _, err := m.db.ExecContext(ctx, purge, args...); err != nil {
		return "", false, &StoreError{Op: "purge expired lock", Err: fmt.Errorf("%w: %v", ErrConnectivity, err)}
	}

	token := m.newID()
	insert, args, err := squirrel.Insert(lockTable).
		Columns("lock_name", "locked_at", "locked_by", "expires_at").
		Values(name, now.Format(timeLayout), token, now.Add(ttl).Format(timeLayout)).
		Suffix("ON CONFLICT(lock_name) DO NOTHING").
		ToSql()
	if err != nil {
		return "", false, &StoreError{Op: "build lock insert", Err: err}
	}
	result, err := m.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return "", false, &StoreError{Op: "insert lock", Err: fmt.Errorf("%w: %v", ErrConnectivity, err)}
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return "", false, &StoreError{Op: "inspect lock insert", Err: err}
	}
	if inserted == 0 {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lock row for name, but only when token matches the
// owner recorded at acquire time. Releasing a lock this owner does not hold
// returns ErrLockNotHeld rather than silently deleting another run's lock.
func (m *SQLLockManager) Release(ctx context.Context, name, token string) error {
	query, args, err := squirrel.Delete(lockTable).
		Where(squirrel.Eq{"lock_name": name, "locked_by": token}).
		ToSql()
	if err != nil {
		return &StoreError{Op: "build lock delete", Err: err}
	}
	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &StoreError{Op: "release lock", Err: err}
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return &StoreError{Op: "inspect lock delete", Err: err}
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotHeld, name)
	}
	return nil
}
