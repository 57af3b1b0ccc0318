package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures environment driven configuration for the migration engine.
//
// The surrounding deployment tooling is expected to provide the database
// location and the migrations directory; everything else has a default.
type Config struct {
	// DBPath is the path of the SQLite database being migrated.
	DBPath string `env:"MIGRATOR_DB_PATH,required"`

	// MigrationsDir holds the versioned migration files.
	MigrationsDir string `env:"MIGRATOR_MIGRATIONS_DIR" envDefault:"migrations"`

	// BackupDir receives pre-run snapshots. Retention is an operator concern;
	// the engine never deletes snapshots.
	BackupDir string `env:"MIGRATOR_BACKUP_DIR" envDefault:"backups"`

	// LockName serializes batch runs. Runs sharing a lock name are mutually
	// exclusive.
	LockName string `env:"MIGRATOR_LOCK_NAME" envDefault:"migration"`

	// LockTTL bounds how long a crashed holder can block other runs.
	LockTTL time.Duration `env:"MIGRATOR_LOCK_TTL" envDefault:"15m"`

	// AppliedBy is recorded as the actor identity on every migration record.
	AppliedBy string `env:"MIGRATOR_APPLIED_BY"`

	LogLevel string `env:"MIGRATOR_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LockTTL <= 0 {
		return Config{}, fmt.Errorf("MIGRATOR_LOCK_TTL must be positive, got %s", cfg.LockTTL)
	}
	if cfg.AppliedBy == "" {
		cfg.AppliedBy = defaultActor()
	}
	return cfg, nil
}

// defaultActor derives an actor identity from the invoking user and host.
func defaultActor() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return user + "@" + host
}
