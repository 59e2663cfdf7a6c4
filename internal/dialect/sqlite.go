package dialect

import (
	"fmt"
	"strings"

	"fileingest/internal/catalog"
)

// SQLite generates syntax only; exercised by unit tests asserting generated
// SQL text (spec.md §9).
type SQLite struct{}

func quoteSQLite(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

func (SQLite) Name() string { return "sqlite" }

func (SQLite) ColumnType(f catalog.SchemaField) string {
	switch f.Type {
	case catalog.FieldInt:
		return "INTEGER"
	case catalog.FieldFloat:
		return "REAL"
	case catalog.FieldBool:
		return "INTEGER"
	case catalog.FieldDecimal:
		return "TEXT"
	case catalog.FieldDate, catalog.FieldDateTime:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (s SQLite) StageDDL(table string, schema []catalog.SchemaField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", quoteSQLite(table))
	for _, f := range schema {
		fmt.Fprintf(&b, "  %s %s,\n", quoteSQLite(f.Name), s.ColumnType(f))
	}
	b.WriteString("  etl_row_hash BLOB,\n")
	b.WriteString("  source_filename TEXT,\n")
	b.WriteString("  file_load_log_id INTEGER\n")
	b.WriteString(")")
	return b.String()
}

func (s SQLite) GrainCheckSQL(table string, grain []string) string {
	cols := quoteIdentList(grain, quoteSQLite)
	return fmt.Sprintf(
		`SELECT CASE WHEN COUNT(*) = COUNT(DISTINCT (%s)) THEN 1 ELSE 0 END AS distinct_ok FROM %s`,
		cols, quoteSQLite(table),
	)
}

func (s SQLite) DuplicateExamplesSQL(table string, grain []string) string {
	cols := quoteIdentList(grain, quoteSQLite)
	return fmt.Sprintf(
		`SELECT %s, COUNT(*) AS occurrence_count FROM %s GROUP BY %s HAVING COUNT(*) > 1 ORDER BY occurrence_count DESC LIMIT 5`,
		cols, quoteSQLite(table), cols,
	)
}

func (s SQLite) CountInsertsSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quoteSQLite)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE %s)`,
		quoteSQLite(stage), quoteSQLite(target), cond,
	)
}

func (s SQLite) CountUpdatesSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quoteSQLite)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s JOIN %s t ON %s WHERE s.etl_row_hash IS NOT t.etl_row_hash`,
		quoteSQLite(stage), quoteSQLite(target), cond,
	)
}

// MergeSQL uses SQLite's INSERT ... ON CONFLICT ... DO UPDATE (UPSERT,
// available since 3.24).
func (s SQLite) MergeSQL(target, stage string, schema []catalog.SchemaField, grain []string) string {
	cols := stageColumns(schema)
	insertCols := append(append([]string{}, cols...), "etl_created_at", "etl_updated_at")

	selectList := make([]string, 0, len(insertCols))
	for _, c := range cols {
		selectList = append(selectList, quoteSQLite(c))
	}
	selectList = append(selectList, "datetime('now')", "NULL")

	grainQuoted := quoteIdentList(grain, quoteSQLite)

	updateSet := make([]string, 0, len(schema))
	for _, f := range schema {
		if isGrainField(f.Name, grain) {
			continue
		}
		updateSet = append(updateSet, fmt.Sprintf("%s = excluded.%s", quoteSQLite(f.Name), quoteSQLite(f.Name)))
	}
	updateSet = append(updateSet,
		fmt.Sprintf("%s = excluded.%s", quoteSQLite("etl_row_hash"), quoteSQLite("etl_row_hash")),
		fmt.Sprintf("%s = excluded.%s", quoteSQLite("source_filename"), quoteSQLite("source_filename")),
		fmt.Sprintf("%s = excluded.%s", quoteSQLite("file_load_log_id"), quoteSQLite("file_load_log_id")),
		fmt.Sprintf("%s = datetime('now')", quoteSQLite("etl_updated_at")),
	)

	return fmt.Sprintf(
		`INSERT INTO %s (%s)
SELECT %s FROM %s
ON CONFLICT (%s) DO UPDATE SET %s
WHERE excluded.etl_row_hash IS NOT %s.etl_row_hash`,
		quoteSQLite(target), quoteIdentList(insertCols, quoteSQLite),
		strings.Join(selectList, ", "), quoteSQLite(stage),
		grainQuoted, strings.Join(updateSet, ", "),
		quoteSQLite(target),
	)
}

func (s SQLite) DLQDeleteBatchSQL(batchSize int) string {
	return fmt.Sprintf(
		`DELETE FROM file_load_dlq WHERE rowid IN (
  SELECT rowid FROM file_load_dlq WHERE source_filename = ? AND file_load_log_id < ? LIMIT %d
)`, batchSize)
}
