package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/deploykit-migrator/internal/logging"
)

// SQLExecutor applies units against the target database. Each attempt is
// recorded in the migration log whether it succeeds or fails, so status
// reporting stays accurate after a halted batch.
type SQLExecutor struct {
	db        *sql.DB
	log       Log
	appliedBy string
	now       func() time.Time
}

// NewSQLExecutor returns an executor writing records as appliedBy.
func NewSQLExecutor(db *sql.DB, log Log, appliedBy string) *SQLExecutor {
	return &SQLExecutor{db: db, log: log, appliedBy: appliedBy, now: time.Now}
}

// Apply runs one unit's statements as a single transaction. An already
// applied unit short-circuits as a no-op success, which is what makes
// re-running a whole batch safe. No retries: a failed statement is terminal
// for this unit within the current run.
func (e *SQLExecutor) Apply(ctx context.Context, unit Unit) (ExecutionOutcome, error) {
	logger := logging.FromContext(ctx)

	applied, err := e.log.IsApplied(ctx, unit.Name)
	if err != nil {
		return ExecutionOutcome{Status: OutcomeFailed, Err: err}, err
	}
	if applied {
		logger.Debug("migration already applied, skipping", "name", unit.Name)
		return ExecutionOutcome{Status: OutcomeSkipped}, nil
	}

	start := e.now()
	execErr := e.execute(ctx, unit)
	durationMs := time.Since(start).Milliseconds()

	rec := Record{
		Name:               unit.Name,
		AppliedAt:          e.now(),
		Checksum:           unit.Checksum,
		ExecutionTimeMs:    durationMs,
		RollbackStatements: unit.RollbackStatements,
		AppliedBy:          e.appliedBy,
	}
	if execErr != nil {
		rec.Status = StatusFailed
		rec.ErrorMessage = execErr.Error()
	} else {
		rec.Status = StatusApplied
	}
	// The record is written even on failure so a human can see why the
	// batch halted.
	if recordErr := e.log.Record(ctx, rec); recordErr != nil {
		if execErr != nil {
			return ExecutionOutcome{Status: OutcomeFailed, DurationMs: durationMs, Err: execErr},
				fmt.Errorf("record failed migration %s (%v): %w", unit.Name, execErr, recordErr)
		}
		return ExecutionOutcome{Status: OutcomeFailed, DurationMs: durationMs, Err: recordErr},
			fmt.Errorf("record migration %s: %w", unit.Name, recordErr)
	}

	if execErr != nil {
		logger.Error("migration failed", "name", unit.Name, "duration_ms", durationMs, "error", execErr)
		wrapped := &UnitError{Name: unit.Name, Path: unit.Path, Op: "execute",
			Err: fmt.Errorf("%w: %v", ErrExecutionFailed, execErr)}
		return ExecutionOutcome{Status: OutcomeFailed, DurationMs: durationMs, Err: wrapped}, wrapped
	}

	logger.Info("migration applied", "name", unit.Name, "duration_ms", durationMs)
	return ExecutionOutcome{Status: OutcomeApplied, DurationMs: durationMs}, nil
}

// execute runs the unit's statements inside one transaction through the
// prepared-execution path; the payload is never interpolated into query text.
func (e *SQLExecutor) execute(ctx context.Context, unit Unit) error {
	statements := splitStatements(unit.Statements)
	if len(statements) == 0 {
		return fmt.Errorf("%w: no SQL statements found", ErrInvalidUnitFile)
	}

	tx, err := e.db.BeginTx(ctx, nil)
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

// splitStatements divides an opaque SQL payload into individual statements,
// dropping comment-only fragments. The engine never inspects the statements
// beyond this split.
func splitStatements(payload string) []string {
	var statements []string
	for _, stmt := range strings.Split(payload, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
