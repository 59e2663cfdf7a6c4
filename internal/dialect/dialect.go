// Package dialect generates the per-database-engine SQL fragments the
// pipeline needs, as pure data rather than a class hierarchy (spec.md §9
// "Dialect polymorphism"). Each implementation is exercised independently
// of any live connection; only Postgres is wired to a driver
// (internal/dbexec), the rest generate text exercised by unit tests.
package dialect

import (
	"fmt"
	"strings"

	"fileingest/internal/catalog"
)

// Dialect is the capability set the Stage Writer, Auditor, Publisher, and
// DLQ Cleaner depend on (spec.md §9).
type Dialect interface {
	// Name identifies the dialect for logging and error messages.
	Name() string

	// StageDDL returns the CREATE TABLE statement for a per-file stage
	// table with no primary key and no timestamps (spec.md §3).
	StageDDL(table string, schema []catalog.SchemaField) string

	// GrainCheckSQL returns a query returning a single row with one column
	// (distinct_ok) that is 1 iff the grain tuple is unique across table.
	GrainCheckSQL(table string, grain []string) string

	// DuplicateExamplesSQL returns a query listing up to 5 grain tuples
	// that repeat, each paired with its occurrence count.
	DuplicateExamplesSQL(table string, grain []string) string

	// MergeSQL returns the single statement that inserts new grain tuples
	// and updates matched ones whose row hash differs (spec.md §4.7).
	MergeSQL(target, stage string, schema []catalog.SchemaField, grain []string) string

	// CountInsertsSQL / CountUpdatesSQL pre-compute the merge's expected
	// row counts for lineage, before the merge runs (spec.md §4.7).
	CountInsertsSQL(target, stage string, grain []string) string
	CountUpdatesSQL(target, stage string, grain []string) string

	// DLQDeleteBatchSQL deletes up to batchSize superseded DLQ rows for a
	// filename whose attempt id is below the current one (spec.md §4.8).
	DLQDeleteBatchSQL(batchSize int) string

	// ColumnType maps a schema field type to this dialect's column type.
	ColumnType(f catalog.SchemaField) string
}

// SanitizeTableName implements spec.md §6's stage-table naming rule:
// replace every non-alphanumeric character with "_" and prepend "t_" if the
// result does not start with a letter.
func SanitizeTableName(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	sanitized := b.String()
	if len(sanitized) == 0 || !isLetter(rune(sanitized[0])) {
		sanitized = "t_" + sanitized
	}
	return "stage_" + sanitized
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// stageColumns returns the full column list of a stage table: schema
// fields in declared order, followed by the three derived columns
// (spec.md §3).
func stageColumns(schema []catalog.SchemaField) []string {
	cols := make([]string, 0, len(schema)+3)
	for _, f := range schema {
		cols = append(cols, f.Name)
	}
	return append(cols, "etl_row_hash", "source_filename", "file_load_log_id")
}

func quoteIdentList(cols []string, quote func(string) string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quote(c)
	}
	return strings.Join(out, ", ")
}

func grainEquals(target, stage string, grain []string, quote func(string) string) string {
	parts := make([]string, len(grain))
	for i, g := range grain {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", target, quote(g), stage, quote(g))
	}
	return strings.Join(parts, " AND ")
}
