// Package pipeline implements the per-file state machine (spec.md §4.9):
// dedupe, archive, read+validate+write, audit, publish, cleanup.
package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"fileingest/internal/audit"
	"fileingest/internal/catalog"
	"fileingest/internal/dbexec"
	"fileingest/internal/dialect"
	"fileingest/internal/dlq"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/lineage"
	"fileingest/internal/publish"
	"fileingest/internal/reader"
	"fileingest/internal/retry"
	"fileingest/internal/stage"
	"fileingest/internal/storage"
	"fileingest/internal/validate"
)

// Notifier dispatches a structured failure record, best-effort (spec.md §6
// "Notifier contract"). Implemented by internal/notify.
type Notifier interface {
	NotifyFileFailure(ctx context.Context, source catalog.DeclaredSource, filename string, err *pipeerr.PipelineError) error
}

// Runner executes one file attempt start to finish. cmd/ingest shares one
// Runner across every worker of the pool; Run keeps its per-file state
// (lineage log, reader, validator, stage writer) in locals.
type Runner struct {
	Registry  *catalog.Registry
	Router    *storage.Router
	DB        dbexec.TxQuerier
	Dialect   dialect.Dialect
	BatchSize int
	Notifier  Notifier
	Log       *zap.Logger
	Events    chan<- lineage.Event

	SourceLocation    string
	ArchiveLocation   string
	DuplicateLocation string
}

var tracer = otel.Tracer("fileingest/pipeline")

// Run processes one file named filename, sitting at SourceLocation, from
// Start to End (spec.md §4.9). It never returns an error for expected
// per-file outcomes (duplicate, no-source-match, notifiable failure) —
// those are reflected in the returned OutcomeCategory. A returned error
// means a step outside the numbered phases failed: resolving the storage
// adapter, writing the lineage log, or a storage operation on the source
// file (archiving an unmatched file, moving a duplicate, deleting it).
func (r *Runner) Run(ctx context.Context, filename string) (lineage.OutcomeCategory, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("filename", filename)))
	defer span.End()

	adapter, err := r.Router.Resolve(r.SourceLocation)
	if err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	location := joinLocation(r.SourceLocation, filename)

	log := lineage.New(r.DB, r.Events)
	if err := log.Open(ctx, filename); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}

	source, resolveErr := r.Registry.Resolve(filename)
	if resolveErr != nil {
		return r.handleResolveFailure(ctx, adapter, location, filename, log, resolveErr)
	}

	isDuplicate, err := r.checkDuplicate(ctx, source, filename)
	if err != nil {
		return r.terminalFailure(ctx, log, filename, source, err)
	}
	if isDuplicate {
		return r.handleDuplicate(ctx, adapter, location, filename, log)
	}

	stageTable := dialect.SanitizeTableName(stageStem(filename))

	if err := r.runAttempt(ctx, adapter, location, filename, source, stageTable, log); err != nil {
		return r.terminalFailure(ctx, log, filename, source, err)
	}

	if err := r.deleteSource(ctx, adapter, location); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	if err := log.Close(ctx, lineage.OutcomeSuccess, false, boolPtr(true), ""); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	return lineage.OutcomeSuccess, nil
}

// runAttempt covers ArchiveCopy through DropStageTable; any error here
// routes to the terminal failure handler by the caller.
func (r *Runner) runAttempt(ctx context.Context, adapter storage.Adapter, location, filename string, source catalog.DeclaredSource, stageTable string, log *lineage.Log) error {
	if err := r.archiveCopy(ctx, adapter, location, log); err != nil {
		return err
	}

	validator, err := r.readValidateWrite(ctx, adapter, location, filename, source, stageTable, log)
	if err != nil {
		return err
	}
	if err := validator.Finish(); err != nil {
		return err
	}

	if err := r.runAudit(ctx, source, stageTable, log); err != nil {
		return err
	}

	result, err := r.runPublish(ctx, source, stageTable, log)
	if err != nil {
		return err
	}
	if err := log.SetPublishCounts(ctx, result.Inserts, result.Updates); err != nil {
		return err
	}

	if err := dlq.New(r.DB, r.Dialect, r.BatchSize).CleanupSuperseded(ctx, filename, log.ID); err != nil {
		return err
	}

	if _, err := r.DB.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteStage(stageTable))); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to drop stage table")
	}
	return nil
}

func (r *Runner) archiveCopy(ctx context.Context, adapter storage.Adapter, location string, log *lineage.Log) error {
	ctx, span := tracer.Start(ctx, "pipeline.archive_copy")
	defer span.End()

	if err := log.PhaseStart(ctx, lineage.PhaseArchiveCopy); err != nil {
		return err
	}
	err := retry.Do(ctx, retry.Config{}, r.Log, "archive_copy", func(ctx context.Context) error {
		if err := adapter.CopyToArchive(ctx, location); err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindStorageError, err, "failed to copy file to archive")
		}
		return nil
	})
	_ = log.PhaseEnd(ctx, lineage.PhaseArchiveCopy, err == nil)
	return err
}

func (r *Runner) readValidateWrite(ctx context.Context, adapter storage.Adapter, location, filename string, source catalog.DeclaredSource, stageTable string, log *lineage.Log) (*validate.Validator, error) {
	ctx, span := tracer.Start(ctx, "pipeline.read_validate_write")
	defer span.End()

	for _, phase := range []lineage.Phase{lineage.PhaseRead, lineage.PhaseValidate, lineage.PhaseWrite} {
		if err := log.PhaseStart(ctx, phase); err != nil {
			return nil, err
		}
	}

	var validator *validate.Validator
	err := func() error {
		body, err := adapter.Stream(ctx, location)
		if err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindStorageError, err, "failed to open file stream")
		}

		kind, ok := catalog.ReaderKindOf(filename)
		if !ok {
			body.Close()
			return pipeerr.New(pipeerr.FamilyFatal, pipeerr.KindUnknownDialect, "no reader kind resolved for filename")
		}

		rd, err := reader.New(kind, source.RecordSchema, body, reader.Options{
			BatchSize: r.BatchSize,
			Gzip:      catalog.IsGzip(filename),
		})
		if err != nil {
			return err
		}
		defer rd.Close()

		validator = validate.New(source, rd.StartingRowNumber(), filename, log.ID)
		writer := stage.New(r.DB, stageTable, source.TableName, source.RecordSchema, r.BatchSize)

		if _, err := r.DB.Exec(ctx, r.Dialect.StageDDL(stageTable, source.RecordSchema)); err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to create stage table")
		}

		for {
			batch, ok, err := rd.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			vb := validator.ValidateBatch(batch)
			if err := writer.WriteBatch(ctx, vb); err != nil {
				return err
			}
		}
		if err := writer.Flush(ctx); err != nil {
			return err
		}

		_, rejected := validator.Counts()
		return log.SetCounters(ctx, rd.RowsRead(), rejected, writer.RowsWrittenToStage())
	}()

	for _, phase := range []lineage.Phase{lineage.PhaseRead, lineage.PhaseValidate, lineage.PhaseWrite} {
		_ = log.PhaseEnd(ctx, phase, err == nil)
	}
	return validator, err
}

func (r *Runner) runAudit(ctx context.Context, source catalog.DeclaredSource, stageTable string, log *lineage.Log) error {
	ctx, span := tracer.Start(ctx, "pipeline.audit")
	defer span.End()

	if err := log.PhaseStart(ctx, lineage.PhaseAudit); err != nil {
		return err
	}
	a := audit.New(r.DB, r.Dialect)
	err := retry.Do(ctx, retry.Config{}, r.Log, "audit", func(ctx context.Context) error {
		if err := a.CheckGrainUniqueness(ctx, source, stageTable); err != nil {
			return err
		}
		return a.RunDeclaredAudits(ctx, source, stageTable)
	})
	_ = log.PhaseEnd(ctx, lineage.PhaseAudit, err == nil)
	return err
}

func (r *Runner) runPublish(ctx context.Context, source catalog.DeclaredSource, stageTable string, log *lineage.Log) (publish.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.publish")
	defer span.End()

	if err := log.PhaseStart(ctx, lineage.PhasePublish); err != nil {
		return publish.Result{}, err
	}
	p := publish.New(r.DB, r.Dialect)
	var result publish.Result
	err := retry.Do(ctx, retry.Config{}, r.Log, "publish", func(ctx context.Context) error {
		var err error
		result, err = p.Publish(ctx, source, stageTable)
		return err
	})
	_ = log.PhaseEnd(ctx, lineage.PhasePublish, err == nil)
	return result, err
}

func (r *Runner) checkDuplicate(ctx context.Context, source catalog.DeclaredSource, filename string) (bool, error) {
	var exists bool
	err := retry.Do(ctx, retry.Config{}, r.Log, "check_duplicate", func(ctx context.Context) error {
		row := r.DB.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE source_filename = $1)", quoteStage(source.TableName)), filename)
		return row.Scan(&exists)
	})
	if err != nil {
		return false, pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to check for duplicate filename")
	}
	return exists, nil
}

func (r *Runner) handleDuplicate(ctx context.Context, adapter storage.Adapter, location, filename string, log *lineage.Log) (lineage.OutcomeCategory, error) {
	if err := adapter.MoveToDuplicates(ctx, location); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	if err := log.Close(ctx, lineage.OutcomeDuplicateSkipped, true, nil, pipeerr.KindDuplicateFile); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	if err := r.deleteSource(ctx, adapter, location); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	return lineage.OutcomeDuplicateSkipped, nil
}

func (r *Runner) handleResolveFailure(ctx context.Context, adapter storage.Adapter, location, filename string, log *lineage.Log, resolveErr error) (lineage.OutcomeCategory, error) {
	re, ok := resolveErr.(*catalog.ResolveError)
	if !ok || re.Ambiguous {
		return r.terminalFailure(ctx, log, filename, catalog.DeclaredSource{}, pipeerr.Wrap(pipeerr.FamilyFatal, pipeerr.KindAmbiguousSource, resolveErr, "filename matched more than one declared source"))
	}

	if err := adapter.CopyToArchive(ctx, location); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	if err := r.deleteSource(ctx, adapter, location); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	if err := log.Close(ctx, lineage.OutcomeNoSourceMatched, false, nil, pipeerr.KindNoSourceMatched); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	return lineage.OutcomeNoSourceMatched, nil
}

// terminalFailure is the jump target for any exception during the numbered
// phases (spec.md §4.9): records error_type, notifies if the family is
// notifiable and recipients are configured, then unconditionally deletes
// the source file and closes the log row. The stage table is left behind
// for forensic inspection.
func (r *Runner) terminalFailure(ctx context.Context, log *lineage.Log, filename string, source catalog.DeclaredSource, cause error) (lineage.OutcomeCategory, error) {
	var pe *pipeerr.PipelineError
	if !pipeerr.As(cause, &pe) {
		pe = pipeerr.Wrap(pipeerr.FamilyFatal, "UnknownError", cause, "unexpected error")
	}

	outcome := lineage.OutcomeUnhandledFailure
	var successPtr *bool
	if pe.Family == pipeerr.FamilyNotifiable && len(source.NotificationRecipients) > 0 && r.Notifier != nil {
		if notifyErr := r.Notifier.NotifyFileFailure(ctx, source, filename, pe); notifyErr == nil {
			outcome = lineage.OutcomeHandledFailure
			successPtr = boolPtr(true)
		} else {
			successPtr = boolPtr(false)
		}
	} else {
		successPtr = boolPtr(false)
	}

	adapter, adapterErr := r.Router.Resolve(r.SourceLocation)
	if adapterErr == nil {
		location := joinLocation(r.SourceLocation, filename)
		_ = r.deleteSource(ctx, adapter, location)
	}

	if err := log.Close(ctx, outcome, false, successPtr, pe.Kind); err != nil {
		return lineage.OutcomeUnhandledFailure, err
	}
	return outcome, nil
}

func (r *Runner) deleteSource(ctx context.Context, adapter storage.Adapter, location string) error {
	return retry.Do(ctx, retry.Config{}, r.Log, "delete_source", func(ctx context.Context) error {
		if err := adapter.Delete(ctx, location); err != nil {
			return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindStorageError, err, "failed to delete source file")
		}
		return nil
	})
}

func joinLocation(base, filename string) string {
	if base == "" {
		return filename
	}
	if base[len(base)-1] == '/' {
		return base + filename
	}
	return base + "/" + filename
}

func stageStem(filename string) string {
	stem := filename
	for i := len(stem) - 1; i >= 0; i-- {
		if stem[i] == '.' {
			return stem[:i]
		}
	}
	return stem
}

func quoteStage(name string) string { return `"` + name + `"` }

func boolPtr(b bool) *bool { return &b }
