// Package reader streams a source file into fixed-size batches of raw
// field maps (spec.md §4.3). Each variant is pull-based and releases its
// underlying byte stream on every exit path.
package reader

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/model"
)

// Reader is the per-format streaming contract (spec.md §4.3).
type Reader interface {
	// Next returns the next batch, or ok=false once the file is exhausted.
	Next(ctx context.Context) (batch model.Batch, ok bool, err error)
	// StartingRowNumber is the file_row_number of the first data record.
	StartingRowNumber() int
	// RowsRead is the count of raw records read so far.
	RowsRead() int
	// Close releases the underlying byte stream. Safe to call multiple
	// times and after a partial read.
	Close() error
}

// Options configures any Reader variant.
type Options struct {
	BatchSize int
	// Delimiter is the CSV field separator; defaults to ',' when zero.
	Delimiter rune
	// SkipRows is the number of leading non-header rows to skip (CSV/Excel).
	SkipRows int
	// SheetName selects a named Excel sheet; empty means the first sheet.
	SheetName string
	// JSONPath is the dotted path to the array of records in a JSON file;
	// empty means the document root must itself be an array.
	JSONPath string
	// Gzip indicates the body is gzip-compressed, as determined by the
	// caller from the resolved filename extension (catalog.ReaderKindOf
	// folds the trailing .gz onto the preceding extension).
	Gzip bool
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return 10000
	}
	return o.BatchSize
}

// New builds a Reader for the given ReaderKind, transparently unwrapping a
// gzip layer when opts.Gzip is set, then validating the header against the
// schema's required field names per spec.md §4.3.
func New(kind catalog.ReaderKind, schema []catalog.SchemaField, body io.ReadCloser, opts Options) (Reader, error) {
	closer := body
	var src io.Reader = body
	if opts.Gzip {
		gz, err := gzip.NewReader(body)
		if err != nil {
			body.Close()
			return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to open gzip stream")
		}
		src = gz
		closer = multiCloser{gz: gz, body: body}
	}

	switch kind {
	case catalog.ReaderCSV:
		return newCSVReader(schema, src, closer, opts)
	case catalog.ReaderJSON:
		return newJSONReader(schema, src, closer, opts)
	case catalog.ReaderExcel:
		return newExcelReader(schema, src, closer, opts)
	case catalog.ReaderParquet:
		return newParquetReader(schema, src, closer, opts)
	default:
		closer.Close()
		return nil, pipeerr.New(pipeerr.FamilyFatal, pipeerr.KindUnknownDialect, fmt.Sprintf("unsupported reader kind %v", kind))
	}
}

// multiCloser closes the gzip reader before the underlying body, so both
// layers of a .gz stream are released on every exit path.
type multiCloser struct {
	gz   *gzip.Reader
	body io.ReadCloser
}

func (m multiCloser) Close() error {
	gzErr := m.gz.Close()
	bodyErr := m.body.Close()
	if gzErr != nil {
		return gzErr
	}
	return bodyErr
}

// requiredNames returns the external-alias names the schema requires to be
// present in the file's header, case-folded for the comparison in
// checkHeader.
func requiredNames(schema []catalog.SchemaField) []string {
	names := make([]string, 0, len(schema))
	for _, f := range schema {
		names = append(names, f.Alias())
	}
	return names
}

// checkHeader validates that every required field is present in header
// (case-insensitively), raising MissingColumns with full sorted lists on
// failure, per spec.md §4.3.
func checkHeader(schema []catalog.SchemaField, header []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}

	var missing []string
	required := requiredNames(schema)
	for _, name := range required {
		if !present[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sortedRequired := append([]string(nil), required...)
	sort.Strings(sortedRequired)
	sort.Strings(missing)

	return pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindMissingColumns, "file header is missing required columns").
		WithDetail("required", sortedRequired).
		WithDetail("missing", missing)
}

// headerCaseMap builds a lookup from lower-cased header name to its
// original-cased form, so readers can key raw records by the file's actual
// header text while comparisons stay case-insensitive.
func headerCaseMap(header []string) map[string]string {
	m := make(map[string]string, len(header))
	for _, h := range header {
		m[strings.ToLower(strings.TrimSpace(h))] = h
	}
	return m
}
