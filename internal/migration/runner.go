package migration

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/example/deploykit-migrator/internal/logging"
)

// RunOutcome classifies a finished batch run.
type RunOutcome string

const (
	// RunCompleted means every pending unit was applied.
	RunCompleted RunOutcome = "completed"
	// RunNothingToDo means no units were pending.
	RunNothingToDo RunOutcome = "nothing_to_do"
	// RunHalted means a unit failed and the batch stopped there.
	RunHalted RunOutcome = "halted"
)

// RunReport is the structured result of one batch run. Callers distinguish
// "nothing to do" from "halted on error" here, not via the exit code alone.
type RunReport struct {
	Outcome   RunOutcome
	DryRun    bool
	Pending   []string  // units that were pending at the start of the run
	Applied   []string  // units applied by this run
	Skipped   []string  // units skipped as already applied
	Failed    string    // name of the unit that halted the batch, if any
	BackupRef BackupRef // snapshot taken before the first unit ran
}

// UnitState labels a discovered unit for status reporting.
type UnitState string

const (
	UnitApplied UnitState = "APPLIED"
	UnitPending UnitState = "PENDING"
)

// UnitStatus pairs a discovered unit with its log state.
type UnitStatus struct {
	Name  string
	State UnitState
}

// StatusReport combines recent log records with a catalog cross-reference.
type StatusReport struct {
	Records []Record
	Units   []UnitStatus
}

// ValidationCheck is one independent validate() probe.
type ValidationCheck struct {
	Name   string
	Passed bool
	Detail string
}

// ValidationReport aggregates all checks; a failed check never aborts the
// process, it is reported.
type ValidationReport struct {
	Checks []ValidationCheck
	Passed bool
}

// Runner composes the catalog, log, lock manager, executor and backup
// manager into the run, status, validate and init workflows. All
// collaborators are injected so tests can substitute their own stores.
type Runner struct {
	db       *sql.DB // raw handle, used only by the validate probes
	catalog  Catalog
	log      Log
	locks    LockManager
	executor Executor
	backups  BackupManager
	lockName string
	lockTTL  time.Duration
}

// NewRunner wires a runner from its collaborators.
func NewRunner(db *sql.DB, catalog Catalog, log Log, locks LockManager, executor Executor, backups BackupManager, lockName string, lockTTL time.Duration) *Runner {
	return &Runner{
		db:       db,
		catalog:  catalog,
		log:      log,
		locks:    locks,
		executor: executor,
		backups:  backups,
		lockName: lockName,
		lockTTL:  lockTTL,
	}
}

// Init creates the migration log and lock tables. Idempotent.
func (r *Runner) Init(ctx context.Context) error {
	if err := r.log.Init(ctx); err != nil {
		return err
	}
	return r.locks.Init(ctx)
}

// Run executes one batch: acquire the lock, snapshot the target, then apply
// pending units in order, stopping on the first failure. The lock is always
// released, including on abort and context cancellation.
//
// In dry-run mode the run is read-only by contract: it reports what would
// run without acquiring the lock, taking a backup or writing any record.
func (r *Runner) Run(ctx context.Context, pattern string, dryRun bool) (*RunReport, error) {
	logger := logging.FromContext(ctx)
	report := &RunReport{Outcome: RunNothingToDo, DryRun: dryRun}

	if err := r.Init(ctx); err != nil {
		return report, err
	}

	if !dryRun {
		token, acquired, err := r.locks.Acquire(ctx, r.lockName, r.lockTTL)
		if err != nil {
			return report, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if !acquired {
			return report, fmt.Errorf("%w: another run holds %q", ErrLockUnavailable, r.lockName)
		}
		// Release must survive cancellation: an interrupted run still
		// cleans up its lock before the process exits.
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := r.locks.Release(releaseCtx, r.lockName, token); err != nil {
				logger.Error("failed to release migration lock", "lock", r.lockName, "error", err)
			}
		}()
	}

	pending, err := r.pending(ctx, pattern)
	if err != nil {
		return report, err
	}
	for _, unit := range pending {
		report.Pending = append(report.Pending, unit.Name)
	}

	if dryRun {
		if len(pending) > 0 {
			report.Outcome = RunCompleted
		}
		logger.Info("dry run complete", "pending", len(pending))
		return report, nil
	}
	if len(pending) == 0 {
		logger.Info("no pending migrations")
		return report, nil
	}

	ref, err := r.backups.Snapshot(ctx, "pre-migrate")
	if err != nil {
		// Abort before touching schema.
		return report, err
	}
	report.BackupRef = ref

	for _, unit := range pending {
		outcome, err := r.executor.Apply(ctx, unit)
		switch outcome.Status {
		case OutcomeApplied:
			report.Applied = append(report.Applied, unit.Name)
		case OutcomeSkipped:
			report.Skipped = append(report.Skipped, unit.Name)
		case OutcomeFailed:
			// Stop on first failure; earlier units keep their applied
			// records and the snapshot is surfaced for manual recovery.
			report.Failed = unit.Name
			report.Outcome = RunHalted
			return report, fmt.Errorf("batch halted at %s (backup: %s): %w", unit.Name, ref, err)
		}
	}

	report.Outcome = RunCompleted
	logger.Info("batch run complete", "applied", len(report.Applied), "backup", string(ref))
	return report, nil
}

// Status lists recent migration records and, independently, labels each
// discovered unit APPLIED or PENDING by cross-referencing the log.
func (r *Runner) Status(ctx context.Context) (*StatusReport, error) {
	if err := r.log.Init(ctx); err != nil {
		return nil, err
	}
	records, err := r.log.List(ctx, 50)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{Records: records}

	units, err := r.catalog.List()
	if err != nil {
		return nil, err
	}
	for _, unit := range units {
		applied, err := r.log.IsApplied(ctx, unit.Name)
		if err != nil {
			return nil, err
		}
		state := UnitPending
		if applied {
			state = UnitApplied
		}
		report.Units = append(report.Units, UnitStatus{Name: unit.Name, State: state})
	}
	return report, nil
}

// Validate runs independent health checks and reports pass/fail per check
// plus an aggregate. Checks degrade gracefully: a failing probe is recorded,
// never fatal to the process.
func (r *Runner) Validate(ctx context.Context) (*ValidationReport, error) {
	report := &ValidationReport{Passed: true}
	add := func(name string, passed bool, detail string) {
		report.Checks = append(report.Checks, ValidationCheck{Name: name, Passed: passed, Detail: detail})
		if !passed {
			report.Passed = false
		}
	}

	if err := r.db.PingContext(ctx); err != nil {
		add("connectivity", false, err.Error())
		// The remaining probes all need the database; report them as
		// unreachable rather than aborting.
		add("migration_log_table", false, "database unreachable")
		add("no_failed_migrations", false, "database unreachable")
		add("schema_introspection", false, "database unreachable")
		add("checksum_drift", false, "database unreachable")
		return report, nil
	}
	add("connectivity", true, "")

	var tableCount int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?", logTable).Scan(&tableCount)
	switch {
	case err != nil:
		add("migration_log_table", false, err.Error())
	case tableCount == 0:
		add("migration_log_table", false, "table "+logTable+" does not exist; run init")
	default:
		add("migration_log_table", true, "")
	}

	if tableCount > 0 {
		failed, err := r.log.CountByStatus(ctx, StatusFailed)
		switch {
		case err != nil:
			add("no_failed_migrations", false, err.Error())
		case failed > 0:
			add("no_failed_migrations", false, fmt.Sprintf("%d migration(s) in failed status", failed))
		default:
			add("no_failed_migrations", true, "")
		}
	} else {
		add("no_failed_migrations", true, "no migration log yet")
	}

	var objects int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sqlite_master").Scan(&objects); err != nil {
		add("schema_introspection", false, err.Error())
	} else {
		add("schema_introspection", true, fmt.Sprintf("%d schema objects", objects))
	}

	r.checkDrift(ctx, tableCount > 0, add)
	return report, nil
}

// checkDrift compares each applied record's checksum against the payload
// currently on disk. Drift between an applied migration and its file is
// surfaced as a validation failure instead of being silently ignored.
func (r *Runner) checkDrift(ctx context.Context, haveLog bool, add func(string, bool, string)) {
	if !haveLog {
		add("checksum_drift", true, "no migration log yet")
		return
	}
	units, err := r.catalog.List()
	if err != nil {
		add("checksum_drift", false, err.Error())
		return
	}
	var drifted []string
	for _, unit := range units {
		rec, err := r.log.Get(ctx, unit.Name)
		if err != nil {
			add("checksum_drift", false, err.Error())
			return
		}
		if rec != nil && rec.Status == StatusApplied && rec.Checksum != unit.Checksum {
			drifted = append(drifted, unit.Name)
		}
	}
	if len(drifted) > 0 {
		add("checksum_drift", false, fmt.Sprintf("payload drift since apply: %v", drifted))
		return
	}
	add("checksum_drift", true, "")
}

// pending diffs the catalog against the log and applies the name filter.
func (r *Runner) pending(ctx context.Context, pattern string) ([]Unit, error) {
	pending, err := r.catalog.Diff(ctx, r.log)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return pending, nil
	}
	var filtered []Unit
	for _, unit := range pending {
		matched, err := filepath.Match(pattern, unit.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if matched {
			filtered = append(filtered, unit)
		}
	}
	return filtered, nil
}
