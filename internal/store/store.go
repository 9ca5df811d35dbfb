// Package store is the warehouse sink: the five star-schema tables plus the
// load ledger, behind a small transaction interface implemented for SQLite
// (modernc.org/sqlite) and PostgreSQL (pgx).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/franz/songplay-etl/internal/util"
)

// Dialect identifies the SQL flavour of a backend
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect validates a driver name from configuration
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectSQLite, DialectPostgres:
		return d, nil
	case "pgx", "postgresql":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("%w: unknown driver %q (expected sqlite or postgres)", util.ErrInvalidConfig, s)
}

// ErrNoRows is returned by Row.Scan when a query matched nothing
var ErrNoRows = errors.New("no rows in result set")

// Row is a single-row query result
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier runs read queries
type Querier interface {
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Tx is a unit of work; the loader opens one per input file
type Tx interface {
	Querier
	Exec(ctx context.Context, query string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB is an open warehouse connection
type DB interface {
	Querier
	Dialect() Dialect
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Driver string // sqlite or postgres
	Path   string // SQLite database file
	DSN    string // PostgreSQL connection string

	// SkipMigrations leaves schema management to someone else;
	// the tables must already exist.
	SkipMigrations bool
}

// Open connects to the configured backend and applies migrations
func Open(ctx context.Context, cfg Config) (DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: dsn is required for the postgres driver", util.ErrInvalidConfig)
		}
		return OpenPostgres(ctx, cfg.DSN, &OpenOptions{SkipMigrations: cfg.SkipMigrations})
	default:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: db path is required for the sqlite driver", util.ErrInvalidConfig)
		}
		return OpenSQLite(ctx, cfg.Path, &OpenOptions{SkipMigrations: cfg.SkipMigrations})
	}
}

// OpenOptions holds options shared by both backends
type OpenOptions struct {
	SkipMigrations bool
}

// StorageError wraps a failed statement with the name of the operation
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the storage sentinel and the driver error
func (e *StorageError) Unwrap() []error {
	return []error{util.ErrStorage, e.Err}
}

func wrapStorage(op string, err error) error {
	if err == nil || errors.Is(err, ErrNoRows) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
