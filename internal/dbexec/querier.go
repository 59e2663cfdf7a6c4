// Package dbexec defines the narrow database-access interface the stage
// writer, auditor, publisher, and DLQ cleaner depend on, so the dialect
// layer and the retry wrapper stay driver-agnostic (spec.md §9 "Dialect
// polymorphism"). *pgxpool.Pool satisfies this directly.
package dbexec

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Row is the single-row result type pgx.Row already satisfies.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the multi-row result type pgx.Rows already satisfies.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier is the subset of *pgxpool.Pool's surface the pipeline touches.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxQuerier additionally supports transactions, needed by the Publisher's
// single-statement merge and the Auditor's independent read transactions.
type TxQuerier interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}
