package storage

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations runs Postgres cache-schema migrations
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RollbackMigrations rolls back the last migration
func RollbackMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	return nil
}

// clickhouse audit schema, created idempotently at startup rather than via
// versioned migrations: the sink is append-only and additive.
var clickhouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS validation_runs (
		run_id        String,
		checked_at    DateTime,
		invoice_count UInt32,
		issue_count   UInt32,
		health_score  UInt8,
		consistent    UInt8
	) ENGINE = MergeTree() ORDER BY checked_at`,

	`CREATE TABLE IF NOT EXISTS validation_issues (
		run_id        String,
		checked_at    DateTime,
		entity_id     Int64,
		entity_kind   String,
		issue_type    String,
		severity      String,
		description   String,
		auto_healable UInt8
	) ENGINE = MergeTree() ORDER BY (checked_at, run_id)`,

	`CREATE TABLE IF NOT EXISTS backfill_runs (
		run_id      String,
		entity_kind String,
		started_at  DateTime,
		last_id     Int64,
		written     UInt32,
		skipped     UInt32,
		duration_ms UInt64
	) ENGINE = MergeTree() ORDER BY started_at`,
}

// EnsureClickHouseSchema creates the audit tables if they do not exist.
func EnsureClickHouseSchema(ctx context.Context, db *ClickHouseDB) error {
	for _, stmt := range clickhouseSchema {
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit table: %w", err)
		}
	}
	return nil
}
