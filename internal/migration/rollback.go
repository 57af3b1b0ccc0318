package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/deploykit-migrator/internal/logging"
)

// SQLRollbackManager executes a migration's stored inverse statements.
//
// Rollback is a point operation on one unit: rolling back unit N does not
// cascade to units N+1..M that may depend on it. Documented limitation.
type SQLRollbackManager struct {
	db  *sql.DB
	log Log
	now func() time.Time
}

// NewSQLRollbackManager returns a rollback manager backed by db.
func NewSQLRollbackManager(db *sql.DB, log Log) *SQLRollbackManager {
	return &SQLRollbackManager{db: db, log: log, now: time.Now}
}

// Rollback executes the inverse payload stored for name and flips the record
// status to rolled_back. The record is preserved as an audit trail. force
// must be set explicitly; confirmation UX is a caller concern.
func (r *SQLRollbackManager) Rollback(ctx context.Context, name string, force bool) error {
	if !force {
		return fmt.Errorf("%w: rollback of %s", ErrConfirmationRequired, name)
	}

	rec, err := r.log.Get(ctx, name)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status != StatusApplied {
		return fmt.Errorf("%w: %s has no applied record", ErrRollbackUnavailable, name)
	}
	if rec.RollbackStatements == "" {
		return fmt.Errorf("%w: %s has no stored rollback statements", ErrRollbackUnavailable, name)
	}

	if err := r.execute(ctx, rec.RollbackStatements); err != nil {
		return &UnitError{Name: name, Op: "rollback",
			Err: fmt.Errorf("%w: %v", ErrRollbackFailed, err)}
	}

	rec.Status = StatusRolledBack
	rec.AppliedAt = r.now()
	if err := r.log.Record(ctx, *rec); err != nil {
		return fmt.Errorf("rollback of %s executed but status update failed: %w", name, err)
	}
	logging.FromContext(ctx).Info("migration rolled back", "name", name)
	return nil
}

func (r *SQLRollbackManager) execute(ctx context.Context, payload string) error {
	statements := splitStatements(payload)
	if len(statements) == 0 {
		return fmt.Errorf("no SQL statements in rollback payload")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("statement %d: %v (rollback: %v)", i+1, err, rbErr)
			}
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
