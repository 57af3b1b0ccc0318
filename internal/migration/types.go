package migration

import (
	"context"
	"time"
)

// Status is the recorded outcome of attempting a migration unit.
type Status string

const (
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Unit is a named, ordered, immutable schema change discovered in the source
// directory. The payload is opaque to the engine; only the executor hands it
// to the database.
type Unit struct {
	Name               string // unique, order-significant (numeric prefix)
	Statements         string // forward SQL payload
	RollbackStatements string // optional inverse payload, empty when absent
	Checksum           string // content hash computed at discovery time
	Path               string // source file path, for reporting
}

// Record is the persisted outcome of attempting a unit. At most one record
// exists per unit name; re-applying upserts the existing row.
type Record struct {
	Name               string
	AppliedAt          time.Time
	Checksum           string
	ExecutionTimeMs    int64
	Status             Status
	ErrorMessage       string // empty when the attempt succeeded
	RollbackStatements string // empty when the unit has no inverse payload
	AppliedBy          string
}

// Catalog discovers migration units and diffs them against the log.
type Catalog interface {
	// List returns every discovered unit in application order.
	List() ([]Unit, error)

	// Diff returns the units with no applied record, in application order.
	// Units recorded as failed or rolled back are pending again.
	Diff(ctx context.Context, log Log) ([]Unit, error)
}

// Log is the durable record of applied, failed and rolled-back units; it is
// the source of truth for idempotency checks.
type Log interface {
	// Init creates the backing table if absent. Safe to call repeatedly.
	Init(ctx context.Context) error

	// IsApplied reports whether name has a record in status applied.
	IsApplied(ctx context.Context, name string) (bool, error)

	// Record upserts rec keyed by name.
	Record(ctx context.Context, rec Record) error

	// Get returns the record for name, or nil when none exists.
	Get(ctx context.Context, name string) (*Record, error)

	// List returns up to limit records, most recently applied first.
	List(ctx context.Context, limit int) ([]Record, error)

	// CountByStatus counts records with the given status.
	CountByStatus(ctx context.Context, status Status) (int, error)
}

// LockManager serializes batch runs across processes. It is the only
// synchronization primitive in the engine.
type LockManager interface {
	// Init creates the lock table if absent. Safe to call repeatedly.
	Init(ctx context.Context) error

	// Acquire purges expired rows for name and then attempts an atomic
	// insert-if-absent with expiry now+ttl. On success it returns an opaque
	// owner token required by Release. acquired is false when a live lock is
	// held elsewhere. Store errors fail closed: the caller must not proceed.
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, acquired bool, err error)

	// Release deletes the lock row, but only when token matches the owner
	// recorded at acquire time.
	Release(ctx context.Context, name, token string) error
}

// OutcomeStatus classifies one executor attempt.
type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// ExecutionOutcome reports a single unit attempt.
type ExecutionOutcome struct {
	Status     OutcomeStatus
	DurationMs int64
	Err        error
}

// Executor applies one unit against the target, recording the outcome in the
// log whether it succeeds or fails.
type Executor interface {
	Apply(ctx context.Context, unit Unit) (ExecutionOutcome, error)
}

// BackupRef identifies a snapshot produced before a batch run.
type BackupRef string

// BackupManager snapshots the target before a batch run and can restore it.
type BackupManager interface {
	// Snapshot dumps the current target state and returns a reference to it.
	Snapshot(ctx context.Context, label string) (BackupRef, error)

	// Restore recreates the target from ref. Destructive: everything written
	// since the snapshot is discarded, so force must be set explicitly. The
	// caller must have closed all handles to the target first.
	Restore(ctx context.Context, ref BackupRef, force bool) error
}

// RollbackManager executes a unit's stored inverse statements.
type RollbackManager interface {
	// Rollback applies the inverse payload stored for name and flips the
	// record status to rolled_back. The record itself is preserved.
	Rollback(ctx context.Context, name string, force bool) error
}
