package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/example/deploykit-migrator/internal/config"
	"github.com/example/deploykit-migrator/internal/logging"
	"github.com/example/deploykit-migrator/internal/migration"
	"github.com/example/deploykit-migrator/internal/sqlite"
)

// app bundles the wired engine for one command invocation.
type app struct {
	cfg    config.Config
	ctx    context.Context
	db     *sql.DB
	runner *migration.Runner

	log       migration.Log
	backups   migration.BackupManager
	rollbacks migration.RollbackManager
}

// newApp loads configuration, opens the target database and wires the engine
// components together. Callers must invoke close when done.
func newApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.LogLevel)
	ctx := logging.ContextWithLogger(runCtx, logger)

	db, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.DBPath))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", migration.ErrConnectivity, err)
	}

	catalog := migration.NewDirCatalog(cfg.MigrationsDir)
	log := migration.NewSQLLog(db)
	locks := migration.NewSQLLockManager(db)
	executor := migration.NewSQLExecutor(db, log, cfg.AppliedBy)
	backups := migration.NewFileBackupManager(db, cfg.DBPath, cfg.BackupDir)
	runner := migration.NewRunner(db, catalog, log, locks, executor, backups, cfg.LockName, cfg.LockTTL)

	a := &app{
		cfg:       cfg,
		ctx:       ctx,
		db:        db,
		runner:    runner,
		log:       log,
		backups:   backups,
		rollbacks: migration.NewSQLRollbackManager(db, log),
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	return a, closeFn, nil
}

type initCommand struct{}

func (c *initCommand) Execute([]string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	if err := a.runner.Init(a.ctx); err != nil {
		return err
	}
	fmt.Println("migration log and lock tables ready")
	return nil
}

type runCommand struct {
	Pattern string `long:"pattern" short:"p" description:"Only apply units whose name matches this glob"`
	DryRun  bool   `long:"dry-run" description:"Report what would run without applying anything"`
}

func (c *runCommand) Execute([]string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	report, err := a.runner.Run(a.ctx, c.Pattern, c.DryRun)
	printRunReport(report)
	return err
}

func printRunReport(report *migration.RunReport) {
	if report == nil {
		return
	}
	if report.DryRun {
		fmt.Printf("dry run: %d migration(s) pending\n", len(report.Pending))
		for _, name := range report.Pending {
			fmt.Printf("  would apply %s\n", name)
		}
		return
	}
	for _, name := range report.Applied {
		fmt.Printf("applied %s\n", name)
	}
	switch report.Outcome {
	case migration.RunNothingToDo:
		fmt.Println("nothing to do: no pending migrations")
	case migration.RunCompleted:
		fmt.Printf("completed: %d migration(s) applied\n", len(report.Applied))
	case migration.RunHalted:
		fmt.Printf("halted at %s; restore point: %s\n", report.Failed, report.BackupRef)
	}
}

type statusCommand struct{}

func (c *statusCommand) Execute([]string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	report, err := a.runner.Status(a.ctx)
	if err != nil {
		return err
	}
	fmt.Println("catalog:")
	for _, unit := range report.Units {
		fmt.Printf("  %-8s %s\n", unit.State, unit.Name)
	}
	fmt.Println("recent records:")
	for _, rec := range report.Records {
		line := fmt.Sprintf("  %-12s %s at %s by %s (%dms)",
			rec.Status, rec.Name, rec.AppliedAt.Format("2006-01-02 15:04:05"), rec.AppliedBy, rec.ExecutionTimeMs)
		if rec.ErrorMessage != "" {
			line += " error: " + rec.ErrorMessage
		}
		fmt.Println(line)
	}
	return nil
}

type validateCommand struct{}

func (c *validateCommand) Execute([]string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	report, err := a.runner.Validate(a.ctx)
	if err != nil {
		return err
	}
	for _, check := range report.Checks {
		mark := "PASS"
		if !check.Passed {
			mark = "FAIL"
		}
		line := fmt.Sprintf("%s %s", mark, check.Name)
		if check.Detail != "" {
			line += ": " + check.Detail
		}
		fmt.Println(line)
	}
	if !report.Passed {
		return errors.New("validation failed")
	}
	fmt.Println("all checks passed")
	return nil
}

type backupCommand struct {
	Label string `long:"label" description:"Snapshot label" default:"manual"`
}

func (c *backupCommand) Execute([]string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	ref, err := a.backups.Snapshot(a.ctx, c.Label)
	if err != nil {
		return err
	}
	fmt.Println(string(ref))
	return nil
}

type restoreCommand struct {
	Yes  bool `long:"yes" short:"y" description:"Skip the confirmation prompt"`
	Args struct {
		Ref string `positional-arg-name:"ref" required:"yes" description:"Snapshot reference printed by backup"`
	} `positional-args:"yes"`
}

func (c *restoreCommand) Execute([]string) error {
	// Restore replaces the database file, so the target must not be open:
	// wire a restore-only backup manager instead of the full engine.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel)
	ctx := logging.ContextWithLogger(runCtx, logger)

	if !c.Yes && !confirm(fmt.Sprintf("restore %s over %s, discarding all later state?", c.Args.Ref, cfg.DBPath)) {
		return errors.New("restore aborted")
	}

	backups := migration.NewFileBackupManager(nil, cfg.DBPath, cfg.BackupDir)
	if err := backups.Restore(ctx, migration.BackupRef(c.Args.Ref), true); err != nil {
		return err
	}
	fmt.Printf("restored %s from %s\n", cfg.DBPath, c.Args.Ref)
	return nil
}

type rollbackCommand struct {
	Yes  bool `long:"yes" short:"y" description:"Skip the confirmation prompt"`
	Args struct {
		Name string `positional-arg-name:"name" required:"yes" description:"Name of the applied migration to roll back"`
	} `positional-args:"yes"`
}

func (c *rollbackCommand) Execute([]string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	if !c.Yes && !confirm(fmt.Sprintf("roll back %s?", c.Args.Name)) {
		return errors.New("rollback aborted")
	}
	if err := a.rollbacks.Rollback(a.ctx, c.Args.Name, true); err != nil {
		return err
	}
	fmt.Printf("rolled back %s\n", c.Args.Name)
	return nil
}

// confirm asks the operator a yes/no question on stdin. The engine itself
// only sees an explicit force flag; this prompt is purely a CLI concern.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
