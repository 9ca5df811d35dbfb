package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/franz/songplay-etl/internal/util"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the server warehouse backend
type Postgres struct {
	pool *pgxpool.Pool
}

var _ DB = (*Postgres)(nil)

// OpenPostgres connects to PostgreSQL and applies migrations
func OpenPostgres(ctx context.Context, dsn string, opts *OpenOptions) (*Postgres, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing database URL: %w", util.ErrInvalidConfig, err)
	}
	// Loading is sequential; a single connection is all it ever uses.
	config.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: creating connection pool: %w", util.ErrConnection, err)
	}

	p := &Postgres{pool: pool}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if !opts.SkipMigrations {
		if err := migrate(ctx, p); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return p, nil
}

// Dialect implements DB
func (p *Postgres) Dialect() Dialect {
	return DialectPostgres
}

// Ping verifies the server is reachable
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: pinging database: %w", util.ErrConnection, err)
	}
	return nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Begin starts a transaction
func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", util.ErrConnection, err)
	}
	return &pgTx{tx: tx}, nil
}

// QueryRow implements Querier
func (p *Postgres) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgRow{row: p.pool.QueryRow(ctx, query, args...)}
}

// Query implements Querier
func (p *Postgres) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

func (t *pgTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgRow{row: t.tx.QueryRow(ctx, query, args...)}
}

func (t *pgTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return wrapStorage("commit", t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

type pgRow struct {
	row pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	return err
}
