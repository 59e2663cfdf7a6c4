// Package errors defines the three error families the pipeline partitions
// failures into: file-notifiable, transient, and fatal (see spec §7).
package errors

import (
	"errors"
	"fmt"
)

// Family classifies how the Runner's terminal handler should treat an error.
type Family int

const (
	// FamilyNotifiable errors are per-file, non-retriable, and user-surfaced
	// via the notifier when the source declares recipients.
	FamilyNotifiable Family = iota
	// FamilyTransient errors are storage/database errors already retried by
	// internal/retry; reaching the Runner means the retry budget was spent.
	FamilyTransient
	// FamilyFatal errors are programming/config errors: no retry, no notify.
	FamilyFatal
)

func (f Family) String() string {
	switch f {
	case FamilyNotifiable:
		return "notifiable"
	case FamilyTransient:
		return "transient"
	case FamilyFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind names in spec.md §7(A), used verbatim as FileLoadLog.error_type.
const (
	KindMissingHeader             = "MissingHeader"
	KindMissingColumns            = "MissingColumns"
	KindNoDataInFile              = "NoDataInFile"
	KindGrainValidation           = "GrainValidation"
	KindAuditFailed               = "AuditFailed"
	KindValidationThresholdExceed = "ValidationThresholdExceeded"
	KindDuplicateFile             = "DuplicateFile"
	KindAmbiguousSource           = "AmbiguousSource"
	KindNoSourceMatched           = "NoSourceMatched"
	KindUnknownDialect            = "UnknownDialect"
	KindStorageError              = "StorageError"
	KindDatabaseError             = "DatabaseError"
)

// PipelineError is the structured error every phase of the pipeline returns
// instead of a bare error, so the Runner's terminal handler can decide
// whether to retry, notify, or simply record error_type and stop.
type PipelineError struct {
	Family  Family
	Kind    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// New builds a PipelineError in the given family.
func New(family Family, kind, message string) *PipelineError {
	return &PipelineError{Family: family, Kind: kind, Message: message, Details: map[string]any{}}
}

// Wrap builds a PipelineError around an underlying cause.
func Wrap(family Family, kind string, cause error, message string) *PipelineError {
	return &PipelineError{Family: family, Kind: kind, Message: message, Cause: cause, Details: map[string]any{}}
}

// WithDetail attaches a structured key/value to the error payload that gets
// rendered into the notifier templates (spec §6).
func (e *PipelineError) WithDetail(key string, value any) *PipelineError {
	e.Details[key] = value
	return e
}

// As is a thin re-export of errors.As so callers don't need a second import
// for the common case of unwrapping a PipelineError from a generic error.
func As(err error, target **PipelineError) bool {
	return errors.As(err, target)
}

// IsNotifiable reports whether err is (or wraps) a notifiable PipelineError.
func IsNotifiable(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Family == FamilyNotifiable
}
