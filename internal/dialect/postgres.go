package dialect

import (
	"fmt"
	"strings"

	"fileingest/internal/catalog"
)

// Postgres is the only dialect wired to a live driver (internal/dbexec,
// backed by jackc/pgx/v4's pgxpool.Pool).
type Postgres struct{}

func quotePG(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

func (Postgres) Name() string { return "postgres" }

func (Postgres) ColumnType(f catalog.SchemaField) string {
	switch f.Type {
	case catalog.FieldInt:
		return "BIGINT"
	case catalog.FieldFloat:
		return "DOUBLE PRECISION"
	case catalog.FieldBool:
		return "BOOLEAN"
	case catalog.FieldDecimal:
		return "NUMERIC"
	case catalog.FieldDate:
		return "DATE"
	case catalog.FieldDateTime:
		return "TIMESTAMPTZ"
	case catalog.FieldEmail:
		return "TEXT"
	default:
		if f.MaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.MaxLength)
		}
		return "TEXT"
	}
}

func (p Postgres) StageDDL(table string, schema []catalog.SchemaField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", quotePG(table))
	for _, f := range schema {
		fmt.Fprintf(&b, "  %s %s,\n", quotePG(f.Name), p.ColumnType(f))
	}
	b.WriteString("  etl_row_hash BYTEA,\n")
	b.WriteString("  source_filename TEXT,\n")
	b.WriteString("  file_load_log_id BIGINT\n")
	b.WriteString(")")
	return b.String()
}

func (p Postgres) GrainCheckSQL(table string, grain []string) string {
	cols := quoteIdentList(grain, quotePG)
	return fmt.Sprintf(
		`SELECT CASE WHEN COUNT(*) = COUNT(DISTINCT (%s)) THEN 1 ELSE 0 END AS distinct_ok FROM %s`,
		cols, quotePG(table),
	)
}

func (p Postgres) DuplicateExamplesSQL(table string, grain []string) string {
	cols := quoteIdentList(grain, quotePG)
	return fmt.Sprintf(
		`SELECT %s, COUNT(*) AS occurrence_count FROM %s GROUP BY %s HAVING COUNT(*) > 1 ORDER BY occurrence_count DESC LIMIT 5`,
		cols, quotePG(table), cols,
	)
}

func (p Postgres) CountInsertsSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quotePG)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE %s)`,
		quotePG(stage), quotePG(target), cond,
	)
}

func (p Postgres) CountUpdatesSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quotePG)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s JOIN %s t ON %s WHERE s.etl_row_hash IS DISTINCT FROM t.etl_row_hash`,
		quotePG(stage), quotePG(target), cond,
	)
}

// MergeSQL emits a single INSERT ... ON CONFLICT (grain) DO UPDATE
// statement. The WHERE clause on the update limits it to rows whose hash
// actually changed, leaving etl_updated_at null (and unchanged) otherwise,
// per spec.md §4.7.
func (p Postgres) MergeSQL(target, stage string, schema []catalog.SchemaField, grain []string) string {
	cols := stageColumns(schema)
	insertCols := append(append([]string{}, cols...), "etl_created_at", "etl_updated_at")

	selectList := make([]string, 0, len(insertCols))
	for _, c := range cols {
		selectList = append(selectList, quotePG(c))
	}
	selectList = append(selectList, "now()", "NULL")

	grainQuoted := quoteIdentList(grain, quotePG)

	updateSet := make([]string, 0, len(schema))
	for _, f := range schema {
		if isGrainField(f.Name, grain) {
			continue
		}
		updateSet = append(updateSet, fmt.Sprintf("%s = EXCLUDED.%s", quotePG(f.Name), quotePG(f.Name)))
	}
	updateSet = append(updateSet,
		fmt.Sprintf("%s = EXCLUDED.%s", quotePG("etl_row_hash"), quotePG("etl_row_hash")),
		fmt.Sprintf("%s = EXCLUDED.%s", quotePG("source_filename"), quotePG("source_filename")),
		fmt.Sprintf("%s = EXCLUDED.%s", quotePG("file_load_log_id"), quotePG("file_load_log_id")),
		fmt.Sprintf("%s = now()", quotePG("etl_updated_at")),
	)

	return fmt.Sprintf(
		`INSERT INTO %s (%s)
SELECT %s FROM %s
ON CONFLICT (%s) DO UPDATE SET %s
WHERE %s.etl_row_hash IS DISTINCT FROM EXCLUDED.etl_row_hash`,
		quotePG(target), quoteIdentList(insertCols, quotePG),
		strings.Join(selectList, ", "), quotePG(stage),
		grainQuoted, strings.Join(updateSet, ", "),
		quotePG(target),
	)
}

func (p Postgres) DLQDeleteBatchSQL(batchSize int) string {
	return fmt.Sprintf(
		`DELETE FROM file_load_dlq WHERE id IN (
  SELECT id FROM file_load_dlq WHERE source_filename = $1 AND file_load_log_id < $2 LIMIT %d
)`, batchSize)
}

func isGrainField(name string, grain []string) bool {
	for _, g := range grain {
		if g == name {
			return true
		}
	}
	return false
}
