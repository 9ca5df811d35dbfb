package store

import (
	"context"
	"fmt"
)

// SchemaVersion returns the applied schema version, 0 for an empty database
func SchemaVersion(ctx context.Context, db DB) (int, error) {
	var exists int
	q := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`
	if db.Dialect() == DialectPostgres {
		q = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = 'schema_version'`
	}
	if err := db.QueryRow(ctx, q).Scan(&exists); err != nil {
		return 0, wrapStorage("schema_version", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	if err := db.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, wrapStorage("schema_version", err)
	}
	return version, nil
}

// migrate applies pending migrations in a single transaction
func migrate(ctx context.Context, db DB) error {
	version, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	migrations := migrationsFor(db.Dialect())
	if version >= len(migrations) {
		return nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertVersion := Rebind(db.Dialect(), "INSERT INTO schema_version (version) VALUES (?)")
	for v := version; v < len(migrations); v++ {
		if err := tx.Exec(ctx, migrations[v]); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", v+1, err)
		}
		if err := tx.Exec(ctx, insertVersion, v+1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
