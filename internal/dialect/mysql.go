package dialect

import (
	"fmt"
	"strings"

	"fileingest/internal/catalog"
)

// MySQL generates syntax only; no live MySQL driver is wired into this
// repo (spec.md §9's dialect layer is specified as swappable data).
type MySQL struct{}

func quoteMySQL(ident string) string { return "`" + strings.ReplaceAll(ident, "`", "``") + "`" }

func (MySQL) Name() string { return "mysql" }

func (MySQL) ColumnType(f catalog.SchemaField) string {
	switch f.Type {
	case catalog.FieldInt:
		return "BIGINT"
	case catalog.FieldFloat:
		return "DOUBLE"
	case catalog.FieldBool:
		return "TINYINT(1)"
	case catalog.FieldDecimal:
		return "DECIMAL(38,10)"
	case catalog.FieldDate:
		return "DATE"
	case catalog.FieldDateTime:
		return "DATETIME"
	case catalog.FieldEmail:
		return "VARCHAR(320)"
	default:
		if f.MaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.MaxLength)
		}
		return "TEXT"
	}
}

func (m MySQL) StageDDL(table string, schema []catalog.SchemaField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", quoteMySQL(table))
	for _, f := range schema {
		fmt.Fprintf(&b, "  %s %s,\n", quoteMySQL(f.Name), m.ColumnType(f))
	}
	b.WriteString("  etl_row_hash VARBINARY(16),\n")
	b.WriteString("  source_filename VARCHAR(1024),\n")
	b.WriteString("  file_load_log_id BIGINT\n")
	b.WriteString(")")
	return b.String()
}

func (m MySQL) GrainCheckSQL(table string, grain []string) string {
	cols := quoteIdentList(grain, quoteMySQL)
	return fmt.Sprintf(
		`SELECT IF(COUNT(*) = COUNT(DISTINCT CONCAT_WS('\x1f', %s)), 1, 0) AS distinct_ok FROM %s`,
		cols, quoteMySQL(table),
	)
}

func (m MySQL) DuplicateExamplesSQL(table string, grain []string) string {
	cols := quoteIdentList(grain, quoteMySQL)
	return fmt.Sprintf(
		`SELECT %s, COUNT(*) AS occurrence_count FROM %s GROUP BY %s HAVING COUNT(*) > 1 ORDER BY occurrence_count DESC LIMIT 5`,
		cols, quoteMySQL(table), cols,
	)
}

func (m MySQL) CountInsertsSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quoteMySQL)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE %s)`,
		quoteMySQL(stage), quoteMySQL(target), cond,
	)
}

func (m MySQL) CountUpdatesSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quoteMySQL)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s JOIN %s t ON %s WHERE s.etl_row_hash <> t.etl_row_hash`,
		quoteMySQL(stage), quoteMySQL(target), cond,
	)
}

// MergeSQL emits INSERT ... ON DUPLICATE KEY UPDATE, relying on a unique
// key over the grain columns existing on target (created alongside the
// table, outside this generator's scope).
func (m MySQL) MergeSQL(target, stage string, schema []catalog.SchemaField, grain []string) string {
	cols := stageColumns(schema)
	insertCols := append(append([]string{}, cols...), "etl_created_at", "etl_updated_at")

	selectList := make([]string, 0, len(insertCols))
	for _, c := range cols {
		selectList = append(selectList, quoteMySQL(c))
	}
	selectList = append(selectList, "UTC_TIMESTAMP()", "NULL")

	updateSet := make([]string, 0, len(schema))
	for _, f := range schema {
		if isGrainField(f.Name, grain) {
			continue
		}
		updateSet = append(updateSet, fmt.Sprintf(
			"%s = IF(VALUES(%s) <> %s, VALUES(%s), %s)",
			quoteMySQL(f.Name), quoteMySQL("etl_row_hash"), quoteMySQL("etl_row_hash"), quoteMySQL(f.Name), quoteMySQL(f.Name)))
	}
	// MySQL applies these assignments left to right, so every hash comparison
	// runs before etl_row_hash itself is overwritten at the end.
	for _, c := range []string{"source_filename", "file_load_log_id"} {
		updateSet = append(updateSet, fmt.Sprintf(
			"%s = IF(VALUES(%s) <> %s, VALUES(%s), %s)",
			quoteMySQL(c), quoteMySQL("etl_row_hash"), quoteMySQL("etl_row_hash"), quoteMySQL(c), quoteMySQL(c)))
	}
	updateSet = append(updateSet,
		fmt.Sprintf("%s = IF(VALUES(%s) <> %s, UTC_TIMESTAMP(), %s)",
			quoteMySQL("etl_updated_at"), quoteMySQL("etl_row_hash"), quoteMySQL("etl_row_hash"), quoteMySQL("etl_updated_at")),
		fmt.Sprintf("%s = VALUES(%s)", quoteMySQL("etl_row_hash"), quoteMySQL("etl_row_hash")),
	)

	return fmt.Sprintf(
		`INSERT INTO %s (%s)
SELECT %s FROM %s
ON DUPLICATE KEY UPDATE %s`,
		quoteMySQL(target), quoteIdentList(insertCols, quoteMySQL),
		strings.Join(selectList, ", "), quoteMySQL(stage),
		strings.Join(updateSet, ", "),
	)
}

func (m MySQL) DLQDeleteBatchSQL(batchSize int) string {
	return fmt.Sprintf(
		`DELETE FROM file_load_dlq WHERE source_filename = ? AND file_load_log_id < ? LIMIT %d`, batchSize)
}
