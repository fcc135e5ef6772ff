package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrateLogPrefix = "db:migrate"

const createSchemaMigrations = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// MigrationState is a migration and when it was applied, if it was.
type MigrationState struct {
	Migration
	AppliedAt *time.Time
}

// MigrateUp applies every migration not yet recorded in schema_migrations, each
// in its own transaction, and returns how many ran.
func MigrateUp(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) (int, error) {
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return 0, err
	}

	todo := pending(migrations, applied)
	for i, m := range todo {
		slog.Info(fmt.Sprintf("%s - Applying %s_%s", migrateLogPrefix, m.Version, m.Name))
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return i, fmt.Errorf("%s - migration %s_%s failed: %w", migrateLogPrefix, m.Version, m.Name, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Applied %d of %d migrations", migrateLogPrefix, len(todo), len(migrations)))
	return len(todo), nil
}

// MigrateDown rolls back the most recently applied migration. It returns nil
// when no migration is applied.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) (*Migration, error) {
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return nil, err
	}
	m := latestApplied(migrations, applied)
	if m == nil {
		return nil, nil
	}
	if m.Down == "" {
		return nil, fmt.Errorf("%s - migration %s_%s has no down script", migrateLogPrefix, m.Version, m.Name)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - rollback of %s_%s failed: %w", migrateLogPrefix, m.Version, m.Name, err)
	}
	slog.Info(fmt.Sprintf("%s - Rolled back %s_%s", migrateLogPrefix, m.Version, m.Name))
	return m, nil
}

// MigrationStates reports, for each migration, when it was applied.
func MigrationStates(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) ([]MigrationState, error) {
	if err := ensureSchemaMigrations(ctx, pool); err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read schema_migrations: %w", migrateLogPrefix, err)
	}
	appliedAt := map[string]time.Time{}
	var (
		version string
		at      time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&version, &at}, func() error {
		appliedAt[version] = at
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan schema_migrations: %w", migrateLogPrefix, err)
	}

	out := make([]MigrationState, len(migrations))
	for i, m := range migrations {
		out[i].Migration = m
		if t, ok := appliedAt[m.Version]; ok {
			out[i].AppliedAt = &t
		}
	}
	return out, nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	if err := ensureSchemaMigrations(ctx, pool); err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read schema_migrations: %w", migrateLogPrefix, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan schema_migrations: %w", migrateLogPrefix, err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func ensureSchemaMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, createSchemaMigrations); err != nil {
		return fmt.Errorf("%s - failed to create schema_migrations: %w", migrateLogPrefix, err)
	}
	return nil
}
