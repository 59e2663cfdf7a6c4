// Package publish merges a stage table into its target table with
// change-detected update semantics (spec.md §4.7).
package publish

import (
	"context"

	"fileingest/internal/catalog"
	"fileingest/internal/dbexec"
	"fileingest/internal/dialect"
	pipeerr "fileingest/internal/errors"
)

// Result carries the pre-merge counts lineage needs (spec.md §4.7).
type Result struct {
	Inserts int64
	Updates int64
}

// Publisher merges one stage table into its target, one dialect-specific
// statement per attempt, wrapped in a single transaction.
type Publisher struct {
	db dbexec.TxQuerier
	d  dialect.Dialect
}

// New builds a Publisher bound to one dialect and connection.
func New(db dbexec.TxQuerier, d dialect.Dialect) *Publisher {
	return &Publisher{db: db, d: d}
}

// Publish computes expected insert/update counts, then runs the merge
// inside one transaction (spec.md §4.7). On any failure the transaction is
// rolled back and the attempt fails.
func (p *Publisher) Publish(ctx context.Context, source catalog.DeclaredSource, stageTable string) (Result, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return Result{}, pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to begin publish transaction")
	}
	defer tx.Rollback(ctx)

	var result Result
	if err := tx.QueryRow(ctx, p.d.CountInsertsSQL(source.TableName, stageTable, source.Grain)).Scan(&result.Inserts); err != nil {
		return Result{}, pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to compute expected insert count")
	}
	if err := tx.QueryRow(ctx, p.d.CountUpdatesSQL(source.TableName, stageTable, source.Grain)).Scan(&result.Updates); err != nil {
		return Result{}, pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to compute expected update count")
	}

	mergeSQL := p.d.MergeSQL(source.TableName, stageTable, source.RecordSchema, source.Grain)
	if _, err := tx.Exec(ctx, mergeSQL); err != nil {
		return Result{}, pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "merge statement failed")
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to commit publish transaction")
	}
	return result, nil
}
