package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// unsetenv clears key for the duration of the test. t.Setenv is called first
// by the callers so the original value is restored on cleanup.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expectError string
		check       func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults with required path",
			env:  map[string]string{"MIGRATOR_DB_PATH": "/data/app.db"},
			check: func(t *testing.T, cfg Config) {
				if cfg.DBPath != "/data/app.db" {
					t.Errorf("DBPath: got %s", cfg.DBPath)
				}
				if cfg.MigrationsDir != "migrations" {
					t.Errorf("MigrationsDir default: got %s", cfg.MigrationsDir)
				}
				if cfg.BackupDir != "backups" {
					t.Errorf("BackupDir default: got %s", cfg.BackupDir)
				}
				if cfg.LockName != "migration" {
					t.Errorf("LockName default: got %s", cfg.LockName)
				}
				if cfg.LockTTL != 15*time.Minute {
					t.Errorf("LockTTL default: got %s", cfg.LockTTL)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("LogLevel default: got %s", cfg.LogLevel)
				}
			},
		},
		{
			name: "explicit values override defaults",
			env: map[string]string{
				"MIGRATOR_DB_PATH":        "/data/app.db",
				"MIGRATOR_MIGRATIONS_DIR": "/etc/app/migrations",
				"MIGRATOR_BACKUP_DIR":     "/var/backups/app",
				"MIGRATOR_LOCK_NAME":      "app-schema",
				"MIGRATOR_LOCK_TTL":       "1h",
				"MIGRATOR_APPLIED_BY":     "ci-deployer",
				"MIGRATOR_LOG_LEVEL":      "debug",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.MigrationsDir != "/etc/app/migrations" {
					t.Errorf("MigrationsDir: got %s", cfg.MigrationsDir)
				}
				if cfg.LockTTL != time.Hour {
					t.Errorf("LockTTL: got %s", cfg.LockTTL)
				}
				if cfg.AppliedBy != "ci-deployer" {
					t.Errorf("AppliedBy: got %s", cfg.AppliedBy)
				}
			},
		},
		{
			name:        "missing db path",
			env:         map[string]string{},
			expectError: "MIGRATOR_DB_PATH",
		},
		{
			name: "non-positive lock ttl",
			env: map[string]string{
				"MIGRATOR_DB_PATH":  "/data/app.db",
				"MIGRATOR_LOCK_TTL": "0s",
			},
			expectError: "MIGRATOR_LOCK_TTL",
		},
		{
			name: "malformed lock ttl",
			env: map[string]string{
				"MIGRATOR_DB_PATH":  "/data/app.db",
				"MIGRATOR_LOCK_TTL": "soon",
			},
			expectError: "parse env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"MIGRATOR_DB_PATH", "MIGRATOR_MIGRATIONS_DIR", "MIGRATOR_BACKUP_DIR",
				"MIGRATOR_LOCK_NAME", "MIGRATOR_LOCK_TTL", "MIGRATOR_APPLIED_BY",
				"MIGRATOR_LOG_LEVEL",
			} {
				t.Setenv(key, "")
				if _, ok := tt.env[key]; !ok {
					// t.Setenv registered the restore; unset for this case.
					unsetenv(t, key)
				}
			}
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			if tt.expectError != "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.expectError) {
					t.Fatalf("expected error mentioning %q, got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_DefaultActor(t *testing.T) {
	t.Setenv("MIGRATOR_DB_PATH", "/data/app.db")
	t.Setenv("MIGRATOR_APPLIED_BY", "")
	unsetenv(t, "MIGRATOR_APPLIED_BY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(cfg.AppliedBy, "@") {
		t.Fatalf("expected user@host actor, got %q", cfg.AppliedBy)
	}
}
