// Package migration implements the schema migration engine used by the
// deployment tooling: versioned schema changes are applied exactly once, in
// order, safely under concurrent invocation, with an audit trail and a
// rollback path.
//
// Migration files live in a source directory and follow the naming
// convention {version}_{description}.sql (e.g. "001_initial_schema.sql");
// an optional {version}_{description}.down.sql carries the inverse payload.
// Applied outcomes are tracked in a schema_migrations table and concurrent
// batch runs are serialized through a schema_lock table, both co-located in
// the target database.
//
// The Runner composes the individual components into the run, status,
// validate and init workflows:
//
//	runner := migration.NewRunner(db, catalog, log, locks, executor, backups, "migration", 15*time.Minute)
//	report, err := runner.Run(ctx, "", false)
package migration
