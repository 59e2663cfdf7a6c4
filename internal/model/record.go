// Package model defines the record shapes that flow between the reader,
// validator, stage writer, auditor, and publisher.
package model

// RawRecord is one record as decoded straight off the wire, before alias
// resolution or type coercion: file-header key -> untyped value.
type RawRecord map[string]any

// Batch is a fixed-size slice of raw records, the unit the Reader emits and
// the Validator/StageWriter consume, preserving input order (spec.md §5).
type Batch struct {
	Records         []RawRecord
	FirstRowNumber  int // 1-based file_row_number of Records[0]
}

// AcceptedRecord is a raw record that passed validation, renamed to schema
// field names, coerced to typed values, and carrying its derived columns
// (spec.md §3).
type AcceptedRecord struct {
	Fields         map[string]any // schema field name -> typed value
	RowHash        [16]byte
	SourceFilename string
	FileLoadLogID  int64
}

// ValidationError is one structured failure entry (spec.md §3 DLQ).
type ValidationError struct {
	ColumnName  string
	ColumnValue string
	ErrorType   string
	ErrorMsg    string
}

// RejectedRecord is a raw record that failed validation, reduced to the
// union of its failing fields and the source's grain fields, in their
// external-alias form, plus structured errors (spec.md §3, §4.4).
type RejectedRecord struct {
	FileRowNumber   int
	RecordData      map[string]any // alias name -> coerced value if the field coerced, else raw value
	Errors          []ValidationError
	SourceFilename  string
	FileLoadLogID   int64
}

// ValidatedBatch is the Validator's output unit: accepted and rejected
// records from one input Batch, in original relative order (spec.md §5).
type ValidatedBatch struct {
	Accepted []AcceptedRecord
	Rejected []RejectedRecord
}
