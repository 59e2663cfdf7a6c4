// Package audit runs the grain-uniqueness check and any source-declared
// audit query against a stage table (spec.md §4.6).
package audit

import (
	"context"
	"strings"

	"fileingest/internal/catalog"
	"fileingest/internal/dbexec"
	"fileingest/internal/dialect"
	pipeerr "fileingest/internal/errors"
)

// Auditor runs both audit operations inside independent read transactions
// (spec.md §4.6), each individually retriable by the caller.
type Auditor struct {
	db dbexec.TxQuerier
	d  dialect.Dialect
}

// New builds an Auditor bound to one dialect and connection.
func New(db dbexec.TxQuerier, d dialect.Dialect) *Auditor {
	return &Auditor{db: db, d: d}
}

// CheckGrainUniqueness runs operation 1 (spec.md §4.6). A failure returns a
// GrainValidation PipelineError carrying up to 5 duplicate exemplars.
func (a *Auditor) CheckGrainUniqueness(ctx context.Context, source catalog.DeclaredSource, stageTable string) error {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to begin grain-check transaction")
	}
	defer tx.Rollback(ctx)

	var distinctOK int
	row := tx.QueryRow(ctx, a.d.GrainCheckSQL(stageTable, source.Grain))
	if err := row.Scan(&distinctOK); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to run grain-uniqueness check")
	}
	if distinctOK == 1 {
		return nil
	}

	rows, err := tx.Query(ctx, a.d.DuplicateExamplesSQL(stageTable, source.Grain))
	if err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to fetch duplicate exemplars")
	}
	defer rows.Close()

	var exemplars []map[string]any
	for rows.Next() {
		values := make([]any, len(source.Grain)+1)
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to scan duplicate exemplar row")
		}
		exemplar := make(map[string]any, len(source.Grain)+1)
		for i, g := range source.Grain {
			field, _ := source.Field(g)
			exemplar[field.Alias()] = values[i]
		}
		exemplar["occurrence_count"] = values[len(values)-1]
		exemplars = append(exemplars, exemplar)
	}
	if err := rows.Err(); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "error iterating duplicate exemplars")
	}

	grainAliases := make([]string, len(source.Grain))
	for i, g := range source.Grain {
		field, _ := source.Field(g)
		grainAliases[i] = field.Alias()
	}

	return pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindGrainValidation, "grain is not unique across staged rows").
		WithDetail("grain_columns", grainAliases).
		WithDetail("stage_table", stageTable).
		WithDetail("exemplars", exemplars)
}

// RunDeclaredAudits runs operation 2 (spec.md §4.6): the source's optional
// audit_query, with "{table}" substituted for stageTable. Every non-zero
// integer column passes; any zero column fails.
func (a *Auditor) RunDeclaredAudits(ctx context.Context, source catalog.DeclaredSource, stageTable string) error {
	if source.AuditQuery == "" {
		return nil
	}

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to begin declared-audit transaction")
	}
	defer tx.Rollback(ctx)

	query := strings.ReplaceAll(source.AuditQuery, "{table}", stageTable)
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to run declared audit query")
	}
	defer rows.Close()

	if !rows.Next() {
		return pipeerr.New(pipeerr.FamilyFatal, pipeerr.KindAuditFailed, "declared audit query returned no rows")
	}

	fields := rows.FieldDescriptions()
	values := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to scan declared audit row")
	}
	if err := rows.Err(); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "error reading declared audit result")
	}

	var failed []string
	for i, f := range fields {
		if asInt64(values[i]) == 0 {
			failed = append(failed, string(f.Name))
		}
	}
	if len(failed) > 0 {
		return pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindAuditFailed, "one or more declared audits failed").
			WithDetail("failed_audits", failed)
	}
	return nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	default:
		return 0
	}
}
