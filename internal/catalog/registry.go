package catalog

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ReaderKind is the file format a DeclaredSource expects to be read with.
// Resolution (spec.md §4.1) matches a file's extension to a ReaderKind
// before filtering candidate sources, so every DeclaredSource must commit
// to exactly one.
type ReaderKind int

const (
	ReaderCSV ReaderKind = iota
	ReaderExcel
	ReaderJSON
	ReaderParquet
)

func (k ReaderKind) String() string {
	switch k {
	case ReaderCSV:
		return "csv"
	case ReaderExcel:
		return "excel"
	case ReaderJSON:
		return "json"
	case ReaderParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// extensionReaders maps a (possibly compression-combined) file extension to
// the reader kind that handles it. ".gz" is never a key on its own: it is
// always folded onto the preceding extension per spec.md §4.1.
var extensionReaders = map[string]ReaderKind{
	".csv":     ReaderCSV,
	".csv.gz":  ReaderCSV,
	".tsv":     ReaderCSV,
	".tsv.gz":  ReaderCSV,
	".xlsx":    ReaderExcel,
	".xls":     ReaderExcel,
	".json":    ReaderJSON,
	".json.gz": ReaderJSON,
	".parquet": ReaderParquet,
}

// resolvedExtension returns the (compression-combined) extension of a
// filename, e.g. "sales.csv.gz" -> ".csv.gz", "sales.csv" -> ".csv".
func resolvedExtension(filename string) string {
	base := path.Base(filename)
	ext := strings.ToLower(path.Ext(base))
	if ext == ".gz" {
		withoutGz := strings.TrimSuffix(base, path.Ext(base))
		inner := strings.ToLower(path.Ext(withoutGz))
		if inner != "" {
			return inner + ".gz"
		}
	}
	return ext
}

// ResolveError is returned by Resolve when no unique DeclaredSource applies.
type ResolveError struct {
	Filename  string
	Ambiguous bool // true = 2+ matches (fatal); false = 0 matches (archive+log)
	Matches   []string
}

func (e *ResolveError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("filename %q matches multiple declared sources: %v", e.Filename, e.Matches)
	}
	return fmt.Sprintf("filename %q matches no declared source", e.Filename)
}

// Registry resolves filenames against a fixed set of DeclaredSource catalog
// entries (spec.md §4.1). It is built once at startup and is read-only
// thereafter, safe for concurrent use by every worker.
type Registry struct {
	sources []sourceEntry
}

type sourceEntry struct {
	source DeclaredSource
	kind   ReaderKind
}

// Entry pairs one DeclaredSource with the reader kind it declares. Sources
// cannot be map keys (RecordSchema/Grain/NotificationRecipients are slices),
// so Register takes a slice of Entry instead of a map.
type Entry struct {
	Source DeclaredSource
	Kind   ReaderKind
}

// Register builds a Registry from catalog entries paired with the reader
// kind each one declares (the source catalog's "record type").
func Register(entries []Entry) (*Registry, error) {
	r := &Registry{}
	for _, e := range entries {
		if err := e.Source.Validate(); err != nil {
			return nil, err
		}
		r.sources = append(r.sources, sourceEntry{source: e.Source, kind: e.Kind})
	}
	return r, nil
}

// Resolve maps a filename to at most one DeclaredSource, per spec.md §4.1.
func (r *Registry) Resolve(filename string) (DeclaredSource, error) {
	ext := resolvedExtension(filename)
	kind, ok := extensionReaders[ext]
	if !ok {
		return DeclaredSource{}, &ResolveError{Filename: filename}
	}

	base := strings.ToLower(path.Base(filename))
	var matches []sourceEntry
	for _, entry := range r.sources {
		if entry.kind != kind {
			continue
		}
		ok, err := doublestar.Match(strings.ToLower(entry.source.FilePattern), base)
		if err != nil {
			return DeclaredSource{}, fmt.Errorf("invalid file_pattern %q for source %q: %w", entry.source.FilePattern, entry.source.Name, err)
		}
		if ok {
			matches = append(matches, entry)
		}
	}

	switch len(matches) {
	case 0:
		return DeclaredSource{}, &ResolveError{Filename: filename}
	case 1:
		return matches[0].source, nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.source.Name
		}
		return DeclaredSource{}, &ResolveError{Filename: filename, Ambiguous: true, Matches: names}
	}
}

// ReaderKindOf returns the reader kind a filename would resolve to, for
// callers (e.g. the Reader factory) that need it independent of a specific
// DeclaredSource match.
func ReaderKindOf(filename string) (ReaderKind, bool) {
	kind, ok := extensionReaders[resolvedExtension(filename)]
	return kind, ok
}

// IsGzip reports whether filename carries a trailing .gz layer that the
// Reader factory must unwrap before handing the stream to the format
// decoder.
func IsGzip(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".gz")
}
