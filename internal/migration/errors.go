package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity indicates the target database is unreachable.
	ErrConnectivity = errors.New("target database unreachable")

	// ErrLockUnavailable indicates another run holds the migration lock.
	ErrLockUnavailable = errors.New("migration lock unavailable")

	// ErrLockNotHeld indicates a release with a token that does not own the lock.
	ErrLockNotHeld = errors.New("migration lock not held by this owner")

	// ErrExecutionFailed indicates one unit's statements failed.
	ErrExecutionFailed = errors.New("migration execution failed")

	// ErrBackupFailed indicates the pre-run snapshot could not be taken.
	ErrBackupFailed = errors.New("backup snapshot failed")

	// ErrRestoreFailed indicates a snapshot could not be restored.
	ErrRestoreFailed = errors.New("backup restore failed")

	// ErrRollbackUnavailable indicates a rollback precondition is not met:
	// the unit has no applied record or no stored inverse statements.
	ErrRollbackUnavailable = errors.New("no rollback available")

	// ErrRollbackFailed indicates the stored inverse statements failed.
	ErrRollbackFailed = errors.New("rollback execution failed")

	// ErrConfirmationRequired guards the destructive restore and rollback
	// paths: callers must pass force explicitly.
	ErrConfirmationRequired = errors.New("destructive operation requires explicit confirmation")

	// ErrInvalidUnitFile indicates a migration file violates the naming
	// convention or carries an empty payload.
	ErrInvalidUnitFile = errors.New("invalid migration file")

	// ErrDuplicateVersion indicates two files share a numeric version prefix.
	ErrDuplicateVersion = errors.New("duplicate migration version")
)

// UnitError wraps a failure tied to one migration unit.
type UnitError struct {
	Name string // unit name, may be empty before parsing
	Path string // source file path
	Op   string // operation being performed
	Err  error
}

func (e *UnitError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("migration %s (%s): %s: %v", e.Name, e.Path, e.Op, e.Err)
	}
	return fmt.Sprintf("migration file %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

func (e *UnitError) Is(target error) bool { return errors.Is(e.Err, target) }

// StoreError wraps a failure in the migration log or lock store.
type StoreError struct {
	Op  string // store operation
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("migration store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return errors.Is(e.Err, target) }
