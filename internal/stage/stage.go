// Package stage buffers accepted and rejected records and flushes them to
// the per-file stage table and the DLQ table (spec.md §4.5).
package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgtype"

	"fileingest/internal/catalog"
	"fileingest/internal/dbexec"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/model"
)

// Writer buffers both streams to the configured batch size and flushes at
// the end of input (spec.md §4.5). Not safe for concurrent use; one Writer
// per file attempt.
type Writer struct {
	db          dbexec.Querier
	table       string
	targetTable string
	schema      []catalog.SchemaField
	batchSize   int

	acceptedBuf []model.AcceptedRecord
	rejectedBuf []model.RejectedRecord

	rowsWrittenToStage int
}

// New builds a Writer targeting the given stage table; targetTable is
// recorded on DLQ rows so a rejected record can be traced to its
// destination even though it never reached it (spec.md §3).
func New(db dbexec.Querier, table, targetTable string, schema []catalog.SchemaField, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &Writer{db: db, table: table, targetTable: targetTable, schema: schema, batchSize: batchSize}
}

// WriteBatch appends one validator output batch, flushing whichever stream
// crosses the configured batch size.
func (w *Writer) WriteBatch(ctx context.Context, vb model.ValidatedBatch) error {
	w.acceptedBuf = append(w.acceptedBuf, vb.Accepted...)
	w.rejectedBuf = append(w.rejectedBuf, vb.Rejected...)

	for len(w.acceptedBuf) >= w.batchSize {
		if err := w.flushAccepted(ctx, w.batchSize); err != nil {
			return err
		}
	}
	for len(w.rejectedBuf) >= w.batchSize {
		if err := w.flushRejected(ctx, w.batchSize); err != nil {
			return err
		}
	}
	return nil
}

// Flush drains any remaining buffered rows of both streams.
func (w *Writer) Flush(ctx context.Context) error {
	for len(w.acceptedBuf) > 0 {
		n := min(len(w.acceptedBuf), w.batchSize)
		if err := w.flushAccepted(ctx, n); err != nil {
			return err
		}
	}
	for len(w.rejectedBuf) > 0 {
		n := min(len(w.rejectedBuf), w.batchSize)
		if err := w.flushRejected(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// RowsWrittenToStage is the accepted-stream counter (spec.md §4.5).
func (w *Writer) RowsWrittenToStage() int { return w.rowsWrittenToStage }

// maxBindParams is Postgres/pgx's limit on the number of parameters a
// single extended-query statement can bind (spec.md §4.5 "max-parameter-
// budget constraints"). Multi-row INSERTs are split into sub-statements
// that stay under it.
const maxBindParams = 65535

func (w *Writer) flushAccepted(ctx context.Context, n int) error {
	chunk := w.acceptedBuf[:n]
	w.acceptedBuf = w.acceptedBuf[n:]

	cols := make([]string, 0, len(w.schema)+3)
	for _, f := range w.schema {
		cols = append(cols, f.Name)
	}
	cols = append(cols, "etl_row_hash", "source_filename", "file_load_log_id")

	rowsPerStmt := maxBindParams / len(cols)
	if rowsPerStmt < 1 {
		rowsPerStmt = 1
	}

	for len(chunk) > 0 {
		sub := chunk
		if len(sub) > rowsPerStmt {
			sub = sub[:rowsPerStmt]
		}
		chunk = chunk[len(sub):]

		var sb strings.Builder
		fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", quoteTable(w.table), strings.Join(quoteAll(cols), ", "))

		args := make([]any, 0, len(sub)*len(cols))
		for i, rec := range sub {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(")
			for j, f := range w.schema {
				if j > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", len(args)+1)
				args = append(args, rec.Fields[f.Name])
			}
			fmt.Fprintf(&sb, ", $%d, $%d, $%d)", len(args)+1, len(args)+2, len(args)+3)
			args = append(args, rec.RowHash[:], rec.SourceFilename, rec.FileLoadLogID)
		}

		if _, err := w.db.Exec(ctx, sb.String(), args...); err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to write accepted rows to stage table")
		}
		w.rowsWrittenToStage += len(sub)
	}
	return nil
}

func (w *Writer) flushRejected(ctx context.Context, n int) error {
	chunk := w.rejectedBuf[:n]
	w.rejectedBuf = w.rejectedBuf[n:]

	const paramsPerRow = 6
	rowsPerStmt := maxBindParams / paramsPerRow
	if rowsPerStmt < 1 {
		rowsPerStmt = 1
	}

	for len(chunk) > 0 {
		sub := chunk
		if len(sub) > rowsPerStmt {
			sub = sub[:rowsPerStmt]
		}
		chunk = chunk[len(sub):]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO file_load_dlq (source_filename, file_row_number, file_record_data, validation_errors, file_load_log_id, target_table_name, failed_at) VALUES `)

		args := make([]any, 0, len(sub)*paramsPerRow)
		for i, rec := range sub {
			if i > 0 {
				sb.WriteString(", ")
			}
			recordData := &pgtype.JSONB{}
			if err := recordData.Set(rec.RecordData); err != nil {
				return pipeerr.Wrap(pipeerr.FamilyFatal, pipeerr.KindDatabaseError, err, "failed to encode DLQ record_data")
			}
			errorsJSON := &pgtype.JSONB{}
			if err := errorsJSON.Set(rec.Errors); err != nil {
				return pipeerr.Wrap(pipeerr.FamilyFatal, pipeerr.KindDatabaseError, err, "failed to encode DLQ validation_errors")
			}

			base := len(args)
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, now())",
				base+1, base+2, base+3, base+4, base+5, base+6)
			args = append(args, rec.SourceFilename, rec.FileRowNumber, recordData, errorsJSON, rec.FileLoadLogID, w.targetTable)
		}

		if _, err := w.db.Exec(ctx, sb.String(), args...); err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to write rejected rows to DLQ table")
		}
	}
	return nil
}

func quoteTable(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
