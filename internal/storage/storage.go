// Package storage defines the Storage Adapter interface (spec.md §4.2).
// Local filesystem and the URI scheme router are implemented here; S3/GCS/
// Azure adapters are the explicit non-goal from spec.md §1 — only their
// routing contract is exercised (uri.go).
package storage

import (
	"context"
	"io"
)

// Adapter is the capability set every storage backend must provide
// (spec.md §4.2). location is treated as opaque by callers.
type Adapter interface {
	// List returns filenames at location, skipping entries beginning with
	// ".". Ordering is unspecified.
	List(ctx context.Context, location string) ([]string, error)

	// Stream opens location for reading. The returned ReadCloser must be
	// closed by the caller on every exit path (normal end, early
	// termination, or error).
	Stream(ctx context.Context, location string) (io.ReadCloser, error)

	// CopyToArchive copies location into the configured archive location.
	CopyToArchive(ctx context.Context, location string) error

	// MoveToDuplicates moves location into the configured duplicates
	// location. A destination-name collision is resolved by appending a
	// UTC YYYYMMDD_HHmmss suffix before the extension.
	MoveToDuplicates(ctx context.Context, location string) error

	// Delete removes location. Deleting an already-missing location is not
	// an error (idempotent, per spec.md §7's FileNotFound exception).
	Delete(ctx context.Context, location string) error
}
