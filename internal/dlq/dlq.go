// Package dlq removes superseded dead-letter rows for a filename once a
// later attempt has succeeded (spec.md §4.8).
package dlq

import (
	"context"

	"fileingest/internal/dbexec"
	"fileingest/internal/dialect"
	pipeerr "fileingest/internal/errors"
)

// Cleaner deletes DLQ rows in batches, idempotent and retriable.
type Cleaner struct {
	db        dbexec.Querier
	d         dialect.Dialect
	batchSize int
}

// New builds a Cleaner bound to one dialect and connection.
func New(db dbexec.Querier, d dialect.Dialect, batchSize int) *Cleaner {
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &Cleaner{db: db, d: d, batchSize: batchSize}
}

// CleanupSuperseded deletes file_load_dlq rows for sourceFilename whose
// file_load_log_id is below currentLogID, in batches, until none remain
// (spec.md §4.8).
func (c *Cleaner) CleanupSuperseded(ctx context.Context, sourceFilename string, currentLogID int64) error {
	sql := c.d.DLQDeleteBatchSQL(c.batchSize)
	for {
		tag, err := c.db.Exec(ctx, sql, sourceFilename, currentLogID)
		if err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to delete superseded DLQ batch")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
	}
}
