package dialect

import (
	"fmt"
	"strings"

	"fileingest/internal/catalog"
)

// SQLServer generates syntax only; exercised by unit tests. A caller that
// sets SQL_SERVER_BULKCOPY_FLAG (spec.md §6) would bypass StageDDL/MergeSQL
// for a native bulk-copy path — that fast path is out of scope here.
type SQLServer struct{}

func quoteMSSQL(ident string) string { return "[" + strings.ReplaceAll(ident, "]", "]]") + "]" }

func (SQLServer) Name() string { return "sqlserver" }

func (SQLServer) ColumnType(f catalog.SchemaField) string {
	switch f.Type {
	case catalog.FieldInt:
		return "BIGINT"
	case catalog.FieldFloat:
		return "FLOAT"
	case catalog.FieldBool:
		return "BIT"
	case catalog.FieldDecimal:
		return "DECIMAL(38,10)"
	case catalog.FieldDate:
		return "DATE"
	case catalog.FieldDateTime:
		return "DATETIME2"
	case catalog.FieldEmail:
		return "NVARCHAR(320)"
	default:
		if f.MaxLength > 0 {
			return fmt.Sprintf("NVARCHAR(%d)", f.MaxLength)
		}
		return "NVARCHAR(MAX)"
	}
}

func (s SQLServer) StageDDL(table string, schema []catalog.SchemaField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", quoteMSSQL(table))
	for _, f := range schema {
		fmt.Fprintf(&b, "  %s %s,\n", quoteMSSQL(f.Name), s.ColumnType(f))
	}
	b.WriteString("  etl_row_hash VARBINARY(16),\n")
	b.WriteString("  source_filename NVARCHAR(1024),\n")
	b.WriteString("  file_load_log_id BIGINT\n")
	b.WriteString(")")
	return b.String()
}

func (s SQLServer) GrainCheckSQL(table string, grain []string) string {
	return fmt.Sprintf(
		`SELECT CASE WHEN COUNT(*) = COUNT(DISTINCT CONCAT(%s)) THEN 1 ELSE 0 END AS distinct_ok FROM %s`,
		concatList(grain), quoteMSSQL(table),
	)
}

func concatList(grain []string) string {
	parts := make([]string, len(grain))
	for i, g := range grain {
		parts[i] = fmt.Sprintf("CAST(%s AS NVARCHAR(MAX))", quoteMSSQL(g))
	}
	return strings.Join(parts, ", '|', ")
}

func (s SQLServer) DuplicateExamplesSQL(table string, grain []string) string {
	cols := quoteIdentList(grain, quoteMSSQL)
	return fmt.Sprintf(
		`SELECT TOP 5 %s, COUNT(*) AS occurrence_count FROM %s GROUP BY %s HAVING COUNT(*) > 1 ORDER BY occurrence_count DESC`,
		cols, quoteMSSQL(table), cols,
	)
}

func (s SQLServer) CountInsertsSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quoteMSSQL)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE %s)`,
		quoteMSSQL(stage), quoteMSSQL(target), cond,
	)
}

func (s SQLServer) CountUpdatesSQL(target, stage string, grain []string) string {
	cond := grainEquals("t", "s", grain, quoteMSSQL)
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s s JOIN %s t ON %s WHERE s.etl_row_hash <> t.etl_row_hash`,
		quoteMSSQL(stage), quoteMSSQL(target), cond,
	)
}

// MergeSQL uses T-SQL's MERGE statement.
func (s SQLServer) MergeSQL(target, stage string, schema []catalog.SchemaField, grain []string) string {
	cond := grainEquals("target", "stage", grain, quoteMSSQL)

	updateSet := make([]string, 0, len(schema))
	for _, f := range schema {
		if isGrainField(f.Name, grain) {
			continue
		}
		updateSet = append(updateSet, fmt.Sprintf("target.%s = stage.%s", quoteMSSQL(f.Name), quoteMSSQL(f.Name)))
	}
	updateSet = append(updateSet,
		"target.\"etl_row_hash\" = stage.\"etl_row_hash\"",
		"target.\"source_filename\" = stage.\"source_filename\"",
		"target.\"file_load_log_id\" = stage.\"file_load_log_id\"",
		"target.\"etl_updated_at\" = SYSUTCDATETIME()",
	)

	cols := stageColumns(schema)
	insertCols := make([]string, len(cols))
	insertVals := make([]string, len(cols))
	for i, c := range cols {
		insertCols[i] = quoteMSSQL(c)
		insertVals[i] = "stage." + quoteMSSQL(c)
	}
	insertCols = append(insertCols, quoteMSSQL("etl_created_at"), quoteMSSQL("etl_updated_at"))
	insertVals = append(insertVals, "SYSUTCDATETIME()", "NULL")

	return fmt.Sprintf(
		`MERGE %s AS target
USING %s AS stage
ON %s
WHEN MATCHED AND stage.etl_row_hash <> target.etl_row_hash THEN
  UPDATE SET %s
WHEN NOT MATCHED THEN
  INSERT (%s) VALUES (%s);`,
		quoteMSSQL(target), quoteMSSQL(stage), cond,
		strings.Join(updateSet, ", "),
		strings.Join(insertCols, ", "), strings.Join(insertVals, ", "),
	)
}

func (s SQLServer) DLQDeleteBatchSQL(batchSize int) string {
	return fmt.Sprintf(
		`DELETE TOP (%d) FROM file_load_dlq WHERE source_filename = @p1 AND file_load_log_id < @p2`, batchSize)
}
