// Package fingerprint computes the deterministic 128-bit row hash
// (etl_row_hash) used for change detection in the merge (spec.md §3, §9).
package fingerprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"fileingest/internal/catalog"
)

// domainSeparator distinguishes the second of the two xxhash digests that
// together make up the 128-bit fingerprint; see package doc below.
const domainSeparator = "\x00fileingest-row-hash-v1"

// Hash computes etl_row_hash for a record: schema fields sorted
// lexicographically by name, rendered by their default string form, joined
// with "|", with nil rendered as an empty string (spec.md §3).
//
// cespare/xxhash/v2 only produces a 64-bit digest, so the 128-bit
// fingerprint is two independent 64-bit digests of the same canonical
// string (one over the string verbatim, one with a fixed suffix appended)
// concatenated into 16 bytes. This keeps the hash host- and
// locale-independent, matching the determinism requirement in spec.md §9:
// it depends only on field name sort order and each value's default string
// form, never on map iteration order or machine byte order.
func Hash(schema []catalog.SchemaField, fields map[string]any) [16]byte {
	canonical := Canonicalize(schema, fields)

	var out [16]byte
	h1 := xxhash.Sum64String(canonical)
	h2 := xxhash.Sum64String(canonical + domainSeparator)
	for i := 0; i < 8; i++ {
		out[i] = byte(h1 >> (8 * i))
		out[8+i] = byte(h2 >> (8 * i))
	}
	return out
}

// Canonicalize renders the "value|value" string the hash is computed over
// (schema fields sorted lexicographically by name, values only, no field
// names), exported so tests can reproduce it without recomputing the hash.
func Canonicalize(schema []catalog.SchemaField, fields map[string]any) string {
	names := make([]string, 0, len(schema))
	for _, f := range schema {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		v, ok := fields[name]
		parts = append(parts, renderValue(ok, v))
	}
	return strings.Join(parts, "|")
}

func renderValue(present bool, v any) string {
	if !present || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
