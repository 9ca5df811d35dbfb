package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/franz/songplay-etl/internal/util"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite is the embedded warehouse backend
type SQLite struct {
	db   *sql.DB
	path string
}

var _ DB = (*SQLite)(nil)

// OpenSQLite opens or creates a SQLite warehouse at path
func OpenSQLite(ctx context.Context, path string, opts *OpenOptions) (*SQLite, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	pragmas := url.Values{}
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "busy_timeout(5000)")
	pragmas.Add("_pragma", "foreign_keys(1)")
	// timestamps as "YYYY-MM-DD HH:MM:SS.SSS+00:00" so SQLite date functions can read them
	pragmas.Add("_time_format", "sqlite")
	dsn := fmt.Sprintf("file:%s?%s", path, pragmas.Encode())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", util.ErrConnection, err)
	}

	// One writer, one logical thread of control.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db, path: path}

	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if !opts.SkipMigrations {
		if err := migrate(ctx, s); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return s, nil
}

// Dialect implements DB
func (s *SQLite) Dialect() Dialect {
	return DialectSQLite
}

// Path returns the database file
func (s *SQLite) Path() string {
	return s.path
}

// Ping verifies the database file can be queried
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: failed to reach database: %w", util.ErrConnection, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Begin starts a transaction
func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", util.ErrConnection, err)
	}
	return &sqliteTx{tx: tx}, nil
}

// QueryRow implements Querier
func (s *SQLite) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqliteRow{row: s.db.QueryRowContext(ctx, query, args...)}
}

// Query implements Querier
func (s *SQLite) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqliteRows{rows: rows}, nil
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *SQLite) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// SQLiteVersion returns the SQLite library version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *sqliteTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqliteRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *sqliteTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqliteRows{rows: rows}, nil
}

func (t *sqliteTx) Commit(context.Context) error {
	return wrapStorage("commit", t.tx.Commit())
}

func (t *sqliteTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type sqliteRow struct {
	row *sql.Row
}

func (r sqliteRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

type sqliteRows struct {
	rows *sql.Rows
}

func (r sqliteRows) Next() bool             { return r.rows.Next() }
func (r sqliteRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqliteRows) Err() error             { return r.rows.Err() }
func (r sqliteRows) Close()                 { r.rows.Close() }
