// Package lineage owns the single file_load_log row for one file attempt,
// updated at every phase boundary (spec.md §4.11).
package lineage

import (
	"context"
	"time"

	"fileingest/internal/dbexec"
	pipeerr "fileingest/internal/errors"
)

// OutcomeCategory resolves spec.md §9's open question: the source
// conflates "pipeline success" with "failure handled" in a single boolean.
// This adds the explicit distinction instead of overloading `success`.
type OutcomeCategory string

const (
	OutcomeSuccess          OutcomeCategory = "success"
	OutcomeHandledFailure   OutcomeCategory = "handled_failure" // notifiable error, email delivered
	OutcomeUnhandledFailure OutcomeCategory = "unhandled_failure"
	OutcomeDuplicateSkipped OutcomeCategory = "duplicate_skipped"
	OutcomeNoSourceMatched  OutcomeCategory = "no_source_matched"
)

// Phase names used as column-name prefixes on file_load_log
// (<phase>_started_at / _ended_at / _success).
type Phase string

const (
	PhaseArchiveCopy Phase = "archive_copy"
	PhaseRead        Phase = "read"
	PhaseValidate    Phase = "validate"
	PhaseWrite       Phase = "write"
	PhaseAudit       Phase = "audit"
	PhasePublish     Phase = "publish"
)

// Event is published on every open/phase/close transition, consumed by the
// admin server's websocket feed.
type Event struct {
	LogID          int64
	SourceFilename string
	Phase          Phase
	Outcome        OutcomeCategory
	At             time.Time
}

// Log wraps one file_load_log row. Open assigns the id; every subsequent
// method updates that row by primary key (spec.md §4.11).
type Log struct {
	db       dbexec.Querier
	ID       int64
	Filename string
	events   chan<- Event
}

// New builds a Log writer; events may be nil if no subscriber is attached.
func New(db dbexec.Querier, events chan<- Event) *Log {
	return &Log{db: db, events: events}
}

// Open inserts the log row before any storage I/O runs (spec.md §3), with
// started_at set in UTC.
func (l *Log) Open(ctx context.Context, filename string) error {
	l.Filename = filename
	row := l.db.QueryRow(ctx,
		`INSERT INTO file_load_log (source_filename, started_at) VALUES ($1, now()) RETURNING id`,
		filename,
	)
	if err := row.Scan(&l.ID); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to open lineage log row")
	}
	l.emit(Phase(""), "")
	return nil
}

// PhaseStart records <phase>_started_at = now().
func (l *Log) PhaseStart(ctx context.Context, phase Phase) error {
	sql := `UPDATE file_load_log SET ` + string(phase) + `_started_at = now() WHERE id = $1`
	if _, err := l.db.Exec(ctx, sql, l.ID); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to record phase start")
	}
	l.emit(phase, "")
	return nil
}

// PhaseEnd records <phase>_ended_at = now() and <phase>_success.
func (l *Log) PhaseEnd(ctx context.Context, phase Phase, success bool) error {
	sql := `UPDATE file_load_log SET ` + string(phase) + `_ended_at = now(), ` + string(phase) + `_success = $2 WHERE id = $1`
	if _, err := l.db.Exec(ctx, sql, l.ID, success); err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to record phase end")
	}
	return nil
}

// SetCounters updates the running counters tracked across the
// read/validate/write phase.
func (l *Log) SetCounters(ctx context.Context, recordsRead, validationErrors, recordsWrittenToStage int) error {
	_, err := l.db.Exec(ctx,
		`UPDATE file_load_log SET records_read = $2, validation_errors = $3, records_written_to_stage = $4 WHERE id = $1`,
		l.ID, recordsRead, validationErrors, recordsWrittenToStage,
	)
	if err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to record stream counters")
	}
	return nil
}

// SetPublishCounts records the merge's insert/update counts.
func (l *Log) SetPublishCounts(ctx context.Context, inserts, updates int64) error {
	_, err := l.db.Exec(ctx,
		`UPDATE file_load_log SET publish_inserts = $2, publish_updates = $3 WHERE id = $1`,
		l.ID, inserts, updates,
	)
	if err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to record publish counts")
	}
	return nil
}

// Close records the terminal outcome (spec.md §4.9 / §9). errorType is
// empty on success.
func (l *Log) Close(ctx context.Context, outcome OutcomeCategory, duplicateSkipped bool, success *bool, errorType string) error {
	_, err := l.db.Exec(ctx,
		`UPDATE file_load_log SET ended_at = now(), success = $2, error_type = $3, duplicate_skipped = $4, outcome_category = $5 WHERE id = $1`,
		l.ID, success, nullIfEmpty(errorType), duplicateSkipped, string(outcome),
	)
	if err != nil {
		return pipeerr.Wrap(pipeerr.FamilyTransient, pipeerr.KindDatabaseError, err, "failed to close lineage log row")
	}
	l.emit("", outcome)
	return nil
}

func (l *Log) emit(phase Phase, outcome OutcomeCategory) {
	if l.events == nil {
		return
	}
	select {
	case l.events <- Event{LogID: l.ID, SourceFilename: l.Filename, Phase: phase, Outcome: outcome, At: time.Now().UTC()}:
	default:
		// Drop on a full channel; the websocket feed is best-effort, the
		// durable record is the file_load_log row itself.
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
